package repository

import (
	"context"
	"testing"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Commit{}, &models.Branch{}, &models.ResourceVersion{}, &models.VersionDelta{}))
	require.NoError(t, db.Create(&models.Branch{
		Name:        oid.BranchName(oid.BranchMain),
		IsProtected: true,
		State:       models.BranchStateActive,
	}).Error)
	return store.New(db, nil)
}

func TestObjectTypeRepositoryCRUD(t *testing.T) {
	s := openTestStore(t)
	repo := NewObjectTypes(s)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	ot := &models.ObjectType{Name: "Employee", DisplayName: "Employee", TypeClass: "object"}
	_, err := repo.Create(ctx, main, ot, "alice", "create Employee")
	require.NoError(t, err)

	got, err := repo.Get(ctx, main, "Employee")
	require.NoError(t, err)
	assert.Equal(t, "Employee", got.DisplayName)

	ot.DisplayName = "Employee Updated"
	_, err = repo.Update(ctx, main, ot, "bob", "rename")
	require.NoError(t, err)

	got, err = repo.Get(ctx, main, "Employee")
	require.NoError(t, err)
	assert.Equal(t, "Employee Updated", got.DisplayName)

	list, err := repo.List(ctx, main)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.Delete(ctx, main, "Employee", "alice", "remove")
	require.NoError(t, err)

	_, err = repo.Get(ctx, main, "Employee")
	var nf *ocierr.NotFound
	assert.ErrorAs(t, err, &nf)

	exists, err := repo.Exists(ctx, main, "Employee")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestObjectTypeRepositoryValidation(t *testing.T) {
	s := openTestStore(t)
	repo := NewObjectTypes(s)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	bad := &models.ObjectType{Name: "1bad-name", DisplayName: "Bad"}
	_, err := repo.Create(ctx, main, bad, "alice", "create bad")
	assert.Error(t, err)
}

func TestRepositoryComposedMultiEntityTx(t *testing.T) {
	s := openTestStore(t)
	objectTypes := NewObjectTypes(s)
	properties := NewProperties(s)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)

	ot := &models.ObjectType{Name: "Employee", DisplayName: "Employee"}
	require.NoError(t, ot.Validate())
	require.NoError(t, objectTypes.StageCreate(tx, ot))

	prop := &models.Property{Name: "employeeId", DisplayName: "Employee ID", DataTypeID: "string"}
	require.NoError(t, prop.Validate())
	require.NoError(t, properties.StageCreate(tx, prop))

	_, err = tx.Commit(ctx, "alice", "bootstrap Employee schema")
	require.NoError(t, err)

	gotType, err := objectTypes.Get(ctx, main, "Employee")
	require.NoError(t, err)
	assert.Equal(t, "Employee", gotType.Name)

	gotProp, err := properties.Get(ctx, main, "employeeId")
	require.NoError(t, err)
	assert.Equal(t, "string", gotProp.DataTypeID)
}
