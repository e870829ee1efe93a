package store

import (
	"context"
	"testing"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Commit{}, &models.Branch{}, &models.ResourceVersion{}, &models.VersionDelta{}))

	require.NoError(t, db.Create(&models.Branch{
		Name:        oid.BranchName(oid.BranchMain),
		IsProtected: true,
		State:       models.BranchStateActive,
	}).Error)

	return New(db, nil)
}

func TestCreateBranch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b, err := s.CreateBranch(ctx, "feature/widgets", oid.BranchName(oid.BranchMain))
	require.NoError(t, err)
	assert.Equal(t, oid.BranchName("feature/widgets"), b.Name)
	assert.True(t, b.Head.IsZero())

	_, err = s.CreateBranch(ctx, "feature/widgets", oid.BranchName(oid.BranchMain))
	var exists *ocierr.AlreadyExists
	assert.ErrorAs(t, err, &exists)

	_, err = s.CreateBranch(ctx, "feature/ghost", "does-not-exist")
	var nf *ocierr.NotFound
	assert.ErrorAs(t, err, &nf)
}

func TestTxCommitAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Employee", map[string]interface{}{"displayName": "Employee"}))
	hash1, err := tx.Commit(ctx, "alice", "create Employee")
	require.NoError(t, err)
	assert.False(t, hash1.IsZero())

	head, err := s.BranchHead(ctx, main)
	require.NoError(t, err)
	assert.Equal(t, hash1, head)

	tx2, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx2.UpdateDocument("object_type", "Employee", map[string]interface{}{"displayName": "Employee 2"}))
	hash2, err := tx2.Commit(ctx, "bob", "rename Employee")
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash2)

	history, err := s.GetCommitHistory(ctx, main, nil, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, hash2, history[0].Hash)
	assert.Equal(t, hash1, history[1].Hash)

	versions, err := s.GetResourceHistory(ctx, main, "object_type", "Employee")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
}

func TestTxOCCConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx1, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx1.InsertDocument("object_type", "A", map[string]interface{}{"x": 1}))

	tx2, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx2.InsertDocument("object_type", "B", map[string]interface{}{"x": 2}))

	_, err = tx1.Commit(ctx, "alice", "add A")
	require.NoError(t, err)

	_, err = tx2.Commit(ctx, "bob", "add B")
	var conflict *ocierr.Conflict
	assert.ErrorAs(t, err, &conflict)
}

func TestDeleteBranchArchivesNotRemoves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBranch(ctx, "scratch", oid.BranchName(oid.BranchMain))
	require.NoError(t, err)

	ok, err := s.DeleteBranch(ctx, "scratch")
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := s.GetBranch(ctx, "scratch")
	require.NoError(t, err)
	assert.Equal(t, models.BranchStateArchived, b.State)

	ok, err = s.DeleteBranch(ctx, "no-such-branch")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteBranch(ctx, oid.BranchName(oid.BranchMain))
	var protectedErr *ocierr.ProtectedBranch
	assert.ErrorAs(t, err, &protectedErr)
}

func TestCompareBranches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Employee", map[string]interface{}{"displayName": "Employee"}))
	_, err = tx.Commit(ctx, "alice", "seed")
	require.NoError(t, err)

	_, err = s.CreateBranch(ctx, "feature/x", main)
	require.NoError(t, err)

	tx2, err := s.BeginTx(ctx, "feature/x")
	require.NoError(t, err)
	require.NoError(t, tx2.UpdateDocument("object_type", "Employee", map[string]interface{}{"displayName": "Changed"}))
	require.NoError(t, tx2.InsertDocument("object_type", "NewOne", map[string]interface{}{"displayName": "New"}))
	_, err = tx2.Commit(ctx, "bob", "branch change")
	require.NoError(t, err)

	diffs, err := s.CompareBranches(ctx, main, "feature/x")
	require.NoError(t, err)
	assert.Len(t, diffs, 2)
}
