package branch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/foundry/oms/pkg/merge"
	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeDocSource implements MergeDocSource directly over a *store.Store,
// the way pkg/schema's real implementation does, but without any
// entity-specific typing — good enough to exercise the merge driver.
type fakeDocSource struct {
	store *store.Store
}

func (f *fakeDocSource) BranchDocuments(ctx context.Context, branchName oid.BranchName, resourceType string) (map[string]merge.Document, error) {
	rows, err := f.store.QueryAt(ctx, branchName, resourceType, time.Now())
	if err != nil {
		return nil, err
	}
	out := make(map[string]merge.Document, len(rows))
	for _, rv := range rows {
		var doc merge.Document
		if err := json.Unmarshal(rv.ContentJSON, &doc); err != nil {
			return nil, err
		}
		out[rv.ResourceID] = doc
	}
	return out, nil
}

func (f *fakeDocSource) ApplyMerged(ctx context.Context, targetBranch oid.BranchName, sourceHead oid.Hash, changes map[string]merge.ResourceChanges, author, message string) (oid.Hash, error) {
	tx, err := f.store.BeginTx(ctx, targetBranch)
	if err != nil {
		return "", err
	}
	for resourceType, rc := range changes {
		existing, err := f.BranchDocuments(ctx, targetBranch, resourceType)
		if err != nil {
			return "", err
		}
		for id, doc := range rc.Merged {
			if _, ok := existing[id]; ok {
				if err := tx.UpdateDocument(resourceType, id, doc); err != nil {
					return "", err
				}
			} else {
				if err := tx.InsertDocument(resourceType, id, doc); err != nil {
					return "", err
				}
			}
		}
		for _, id := range rc.Deletions {
			if err := tx.DeleteDocument(resourceType, id); err != nil {
				return "", err
			}
		}
	}
	if tx.Empty() {
		return f.store.BranchHead(ctx, targetBranch)
	}
	tx.SetMergeParent(sourceHead)
	return tx.Commit(ctx, author, message)
}

func openTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Commit{}, &models.Branch{}, &models.ResourceVersion{}, &models.VersionDelta{}, &models.ChangeProposal{}))
	require.NoError(t, db.Create(&models.Branch{
		Name:        oid.BranchName(oid.BranchMain),
		IsProtected: true,
		State:       models.BranchStateActive,
	}).Error)
	s := store.New(db, nil)
	return New(s, db), s
}

func TestProposalLifecycle(t *testing.T) {
	svc, s := openTestService(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := svc.CreateBranch(ctx, "feature/x", main)
	require.NoError(t, err)

	tx, err := s.BeginTx(ctx, "feature/x")
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Employee", map[string]interface{}{"name": "Employee", "displayName": "Employee"}))
	_, err = tx.Commit(ctx, "alice", "add Employee")
	require.NoError(t, err)

	proposal, err := svc.CreateProposal(ctx, "Add Employee", "adds the Employee object type", "feature/x", main, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalDraft, proposal.Status)

	proposal, err = svc.ApproveProposal(ctx, proposal.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalApproved, proposal.Status)
}

func TestApproveProposalRequiresAllReviewers(t *testing.T) {
	svc, s := openTestService(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := svc.CreateBranch(ctx, "feature/z", main)
	require.NoError(t, err)

	tx, err := s.BeginTx(ctx, "feature/z")
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Team", map[string]interface{}{"name": "Team"}))
	_, err = tx.Commit(ctx, "alice", "add Team")
	require.NoError(t, err)

	proposal, err := svc.CreateProposal(ctx, "Add Team", "", "feature/z", main, "alice")
	require.NoError(t, err)
	proposal.Reviewers = []string{"bob", "carol"}
	require.NoError(t, svc.db.Save(proposal).Error)

	proposal, err = svc.ApproveProposal(ctx, proposal.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalReview, proposal.Status)

	proposal, err = svc.ApproveProposal(ctx, proposal.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalApproved, proposal.Status)
}

func TestUpdateStateOCCConflict(t *testing.T) {
	svc, s := openTestService(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := svc.CreateBranch(ctx, "feature/x", main)
	require.NoError(t, err)

	staleHead, err := s.BranchHead(ctx, "feature/x")
	require.NoError(t, err)

	tx, err := s.BeginTx(ctx, "feature/x")
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "A", map[string]interface{}{"name": "A"}))
	_, err = tx.Commit(ctx, "alice", "add A")
	require.NoError(t, err)

	err = svc.UpdateState(ctx, "feature/x", models.BranchStateReady, staleHead, "alice", "ready for review")
	assert.Error(t, err)
}

func TestMergeThreeWayNonConflicting(t *testing.T) {
	svc, s := openTestService(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Employee", map[string]interface{}{"name": "Employee", "displayName": "Employee"}))
	_, err = tx.Commit(ctx, "alice", "seed")
	require.NoError(t, err)

	_, err = svc.CreateBranch(ctx, "feature/x", main)
	require.NoError(t, err)

	tx2, err := s.BeginTx(ctx, "feature/x")
	require.NoError(t, err)
	require.NoError(t, tx2.InsertDocument("object_type", "Department", map[string]interface{}{"name": "Department", "displayName": "Department"}))
	_, err = tx2.Commit(ctx, "bob", "add Department")
	require.NoError(t, err)

	proposal, err := svc.CreateProposal(ctx, "Add Department", "", "feature/x", main, "bob")
	require.NoError(t, err)
	proposal, err = svc.ApproveProposal(ctx, proposal.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.ProposalApproved, proposal.Status)

	sourceHead, err := s.BranchHead(ctx, "feature/x")
	require.NoError(t, err)
	targetHead, err := s.BranchHead(ctx, main)
	require.NoError(t, err)

	docs := &fakeDocSource{store: s}
	outcome, err := svc.Merge(ctx, docs, proposal.ID, StrategyMerge, nil, "carol")
	require.NoError(t, err)
	assert.Empty(t, outcome.Conflicts)

	rv, err := s.GetResourceAt(ctx, main, "object_type", "Department", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Department", rv.ResourceID)

	history, err := s.GetCommitHistory(ctx, main, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.ElementsMatch(t, []string{string(targetHead), string(sourceHead)}, history[0].Parents)
}

func TestMergeSquash(t *testing.T) {
	svc, s := openTestService(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	_, err := svc.CreateBranch(ctx, "feature/y", main)
	require.NoError(t, err)

	tx, err := s.BeginTx(ctx, "feature/y")
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("object_type", "Project", map[string]interface{}{"name": "Project"}))
	_, err = tx.Commit(ctx, "dave", "add Project")
	require.NoError(t, err)

	tx2, err := s.BeginTx(ctx, "feature/y")
	require.NoError(t, err)
	require.NoError(t, tx2.UpdateDocument("object_type", "Project", map[string]interface{}{"name": "Project", "displayName": "Renamed"}))
	_, err = tx2.Commit(ctx, "dave", "rename Project")
	require.NoError(t, err)

	proposal, err := svc.CreateProposal(ctx, "Add Project", "", "feature/y", main, "dave")
	require.NoError(t, err)
	proposal, err = svc.ApproveProposal(ctx, proposal.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, models.ProposalApproved, proposal.Status)

	outcome, err := svc.Merge(ctx, nil, proposal.ID, StrategySquash, nil, "carol")
	require.NoError(t, err)
	assert.Empty(t, outcome.Conflicts)
	assert.NotEmpty(t, outcome.CommitHash)

	history, err := s.GetCommitHistory(ctx, main, nil, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
