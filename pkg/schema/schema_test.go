package schema

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

func openTestSchema(t *testing.T) (*Schema, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Commit{}, &models.Branch{}, &models.ResourceVersion{},
		&models.VersionDelta{}, &models.OutboxEvent{},
	))
	require.NoError(t, db.Create(&models.Branch{
		Name:        oid.BranchName(oid.BranchMain),
		IsProtected: true,
		State:       models.BranchStateActive,
	}).Error)
	s := store.New(db, nil)
	return New(s), db
}

func TestCreateObjectTypeWritesOutboxEvent(t *testing.T) {
	sc, db := openTestSchema(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	hash, err := sc.CreateObjectType(ctx, main, &models.ObjectType{
		Name:        "Employee",
		DisplayName: "Employee",
	}, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, string(hash), string(events[0].CommitHash))
	assert.Equal(t, "com.foundry.oms.objecttype.created", events[0].Type)
	assert.Equal(t, models.OutboxPending, events[0].Status)
}

func TestCreateObjectTypeDuplicateRejected(t *testing.T) {
	sc, _ := openTestSchema(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := sc.CreateObjectType(ctx, main, &models.ObjectType{Name: "Employee"}, "alice")
	require.NoError(t, err)

	_, err = sc.CreateObjectType(ctx, main, &models.ObjectType{Name: "Employee"}, "alice")
	require.Error(t, err)
	var alreadyExists *ocierr.AlreadyExists
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestCreateLinkTypeRequiresKnownEndpoints(t *testing.T) {
	sc, _ := openTestSchema(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := sc.CreateLinkType(ctx, main, &models.LinkType{
		Name:           "worksAt",
		FromObjectType: "Employee",
		ToObjectType:   "Company",
	}, "alice")
	require.Error(t, err)
	var notFound *ocierr.NotFound
	require.ErrorAs(t, err, &notFound)

	_, err = sc.CreateObjectType(ctx, main, &models.ObjectType{Name: "Employee"}, "alice")
	require.NoError(t, err)
	_, err = sc.CreateObjectType(ctx, main, &models.ObjectType{Name: "Company"}, "alice")
	require.NoError(t, err)

	_, err = sc.CreateLinkType(ctx, main, &models.LinkType{
		Name:           "worksAt",
		FromObjectType: "Employee",
		ToObjectType:   "Company",
	}, "alice")
	require.NoError(t, err)
}

func TestDeleteInterfaceBlockedWhenExtended(t *testing.T) {
	sc, _ := openTestSchema(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := sc.commitWithEvent(ctx, main, "alice", "created", "create base interface", func(tx *store.Tx) (string, string, error) {
		return "interface", "Named", tx.InsertDocument("interface", "Named", map[string]interface{}{"name": "Named", "properties": []interface{}{"name"}})
	})
	require.NoError(t, err)
	_, err = sc.commitWithEvent(ctx, main, "alice", "created", "create child interface", func(tx *store.Tx) (string, string, error) {
		return "interface", "Person", tx.InsertDocument("interface", "Person", map[string]interface{}{"name": "Person", "parents": []interface{}{"Named"}})
	})
	require.NoError(t, err)

	_, err = sc.DeleteInterface(ctx, main, "Named", "alice")
	require.Error(t, err)
	var inUse *ocierr.InUse
	require.ErrorAs(t, err, &inUse)
	assert.Contains(t, inUse.ReferredBy, "Person")

	_, err = sc.DeleteInterface(ctx, main, "Person", "alice")
	require.NoError(t, err)
}

func TestBranchDocumentsRoundTrip(t *testing.T) {
	sc, _ := openTestSchema(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := sc.CreateObjectType(ctx, main, &models.ObjectType{Name: "Employee"}, "alice")
	require.NoError(t, err)

	docs, err := sc.BranchDocuments(ctx, main, "object_type")
	require.NoError(t, err)
	require.Contains(t, docs, "Employee")
	assert.Equal(t, "Employee", docs["Employee"]["name"])
}
