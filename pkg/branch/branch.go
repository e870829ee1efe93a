// Package branch implements the branch service (C6): branch lifecycle,
// proposal workflow, and the merge driver that turns a ChangeProposal
// into a landed commit on its target branch.
//
// Grounded on internal/instance/instance.go's package-level
// mutex-guarded singleton idiom, generalized from one global lock into
// a set of per-branch-pair advisory locks acquired in sorted order
// (§4.6's deadlock-avoidance rule for merges).
package branch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foundry/oms/pkg/merge"
	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/store"
)

// MergeStrategy selects how Merge reconciles a proposal's source and
// target branches.
type MergeStrategy string

const (
	StrategyMerge  MergeStrategy = "MERGE"
	StrategySquash MergeStrategy = "SQUASH"
	StrategyRebase MergeStrategy = "REBASE"
)

// Service is the branch lifecycle and proposal orchestrator.
type Service struct {
	store *store.Store
	db    *gorm.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a branch Service over an already-constructed Store
// (shared with pkg/repository and pkg/schema) and the same *gorm.DB for
// proposal persistence.
func New(s *store.Store, db *gorm.DB) *Service {
	return &Service{store: s, db: db, locks: make(map[string]*sync.Mutex)}
}

func (svc *Service) lockFor(name string) *sync.Mutex {
	svc.locksMu.Lock()
	defer svc.locksMu.Unlock()
	l, ok := svc.locks[name]
	if !ok {
		l = &sync.Mutex{}
		svc.locks[name] = l
	}
	return l
}

// acquireSorted locks two branch names' advisory locks in a fixed
// (sorted) order, regardless of which is source and which is target,
// to prevent A-then-B vs B-then-A deadlocks during merges.
func (svc *Service) acquireSorted(a, b string) func() {
	names := []string{a, b}
	sort.Strings(names)
	first, second := svc.lockFor(names[0]), svc.lockFor(names[1])
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

// CreateBranch wraps store.CreateBranch; present as its own method so
// Service is the one entry point for the branch lifecycle surface the
// spec names in §4.6.
func (svc *Service) CreateBranch(ctx context.Context, name, from oid.BranchName) (*models.Branch, error) {
	release := svc.acquireSorted(string(name), string(from))
	defer release()
	return svc.store.CreateBranch(ctx, name, from)
}

// DeleteBranch wraps store.DeleteBranch under the branch's advisory
// lock.
func (svc *Service) DeleteBranch(ctx context.Context, name oid.BranchName) (bool, error) {
	lock := svc.lockFor(string(name))
	lock.Lock()
	defer lock.Unlock()
	return svc.store.DeleteBranch(ctx, name)
}

// ListBranches wraps store.ListBranches.
func (svc *Service) ListBranches(ctx context.Context) ([]models.Branch, error) {
	return svc.store.ListBranches(ctx)
}

// GetBranch wraps store.GetBranch.
func (svc *Service) GetBranch(ctx context.Context, name oid.BranchName) (*models.Branch, error) {
	return svc.store.GetBranch(ctx, name)
}

// UpdateState applies an OCC-guarded lifecycle transition: parentHead
// must match the branch's current HEAD or the call fails with
// ocierr.Conflict carrying a rebase hint (§4.6).
func (svc *Service) UpdateState(ctx context.Context, name oid.BranchName, to models.BranchState, parentHead oid.Hash, by, reason string) error {
	b, err := svc.store.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if b.Head != parentHead {
		return &ocierr.Conflict{
			Expected: string(parentHead),
			Actual:   string(b.Head),
			Hints:    []string{"refetch branch HEAD and retry update_state"},
		}
	}
	return svc.store.UpdateBranchState(ctx, name, to, by, reason)
}

// GetBranchDiff returns the resource-level diff between two branches'
// current states.
func (svc *Service) GetBranchDiff(ctx context.Context, base, compare oid.BranchName) ([]store.ResourceDiff, error) {
	return svc.store.CompareBranches(ctx, base, compare)
}

// CreateProposal opens a new ChangeProposal recording the current HEADs
// of source and target as its base for later conflict detection.
func (svc *Service) CreateProposal(ctx context.Context, title, description string, sourceBranch, targetBranch oid.BranchName, author string) (*models.ChangeProposal, error) {
	sourceHead, err := svc.store.BranchHead(ctx, sourceBranch)
	if err != nil {
		return nil, err
	}
	targetHead, err := svc.store.BranchHead(ctx, targetBranch)
	if err != nil {
		return nil, err
	}

	proposal := &models.ChangeProposal{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		BaseHash:     targetHead,
		SourceHash:   sourceHead,
		TargetHash:   targetHead,
		Status:       models.ProposalDraft,
		Author:       author,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := svc.db.WithContext(ctx).Create(proposal).Error; err != nil {
		return nil, fmt.Errorf("branch: creating proposal: %w", err)
	}
	return proposal, nil
}

// ApproveProposal records an approval from reviewer and transitions the
// proposal to APPROVED once the approval condition is satisfied: every
// named Reviewer has approved, or, when no reviewers were named,
// approval by anyone at all. Until then the proposal sits in REVIEW.
// ReadyToMerge (and therefore Merge) only accepts a proposal this
// method has actually moved to APPROVED.
func (svc *Service) ApproveProposal(ctx context.Context, proposalID, reviewer string) (*models.ChangeProposal, error) {
	proposal, err := svc.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !containsString(proposal.Approvals, reviewer) {
		proposal.Approvals = append(proposal.Approvals, reviewer)
	}
	if proposalApproved(proposal) {
		proposal.Status = models.ProposalApproved
	} else {
		proposal.Status = models.ProposalReview
	}
	proposal.UpdatedAt = time.Now()
	if err := svc.db.WithContext(ctx).Save(proposal).Error; err != nil {
		return nil, fmt.Errorf("branch: approving proposal %q: %w", proposalID, err)
	}
	return proposal, nil
}

// proposalApproved reports whether proposal's current Approvals satisfy
// its review requirement: every named Reviewer must appear in
// Approvals, or, if Reviewers is empty, at least one approval must be
// recorded.
func proposalApproved(p *models.ChangeProposal) bool {
	if len(p.Reviewers) == 0 {
		return len(p.Approvals) > 0
	}
	for _, r := range p.Reviewers {
		if !containsString(p.Approvals, r) {
			return false
		}
	}
	return true
}

// RejectProposal marks a proposal rejected; it can never be merged
// afterward.
func (svc *Service) RejectProposal(ctx context.Context, proposalID, reason string) (*models.ChangeProposal, error) {
	proposal, err := svc.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	proposal.Status = models.ProposalRejected
	proposal.Description += "\n\nRejected: " + reason
	proposal.UpdatedAt = time.Now()
	if err := svc.db.WithContext(ctx).Save(proposal).Error; err != nil {
		return nil, fmt.Errorf("branch: rejecting proposal %q: %w", proposalID, err)
	}
	return proposal, nil
}

func (svc *Service) getProposal(ctx context.Context, id string) (*models.ChangeProposal, error) {
	var proposal models.ChangeProposal
	if err := svc.db.WithContext(ctx).First(&proposal, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ocierr.NotFound{Kind: "proposal", ID: id}
		}
		return nil, fmt.Errorf("branch: looking up proposal %q: %w", id, err)
	}
	return &proposal, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// MergeDocSource reads a branch's current documents in the shape
// pkg/merge needs (type-scoped maps), decoupling the merge driver from
// any one entity's Go type.
type MergeDocSource interface {
	BranchDocuments(ctx context.Context, branch oid.BranchName, resourceType string) (map[string]merge.Document, error)
	ApplyMerged(ctx context.Context, targetBranch oid.BranchName, sourceHead oid.Hash, changes map[string]merge.ResourceChanges, author, message string) (oid.Hash, error)
}
