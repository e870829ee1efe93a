// Package store implements the version-controlled commit/branch layer
// (C1): append-only commits addressed by content hash, named mutable
// branch refs, and branch-scoped document history. It is the one
// package every other domain package (repository, schema, merge,
// branch, timetravel) ultimately reads and writes through.
//
// Grounded on the teacher's dual dialector bootstrap (internal/db/db.go)
// for how a *gorm.DB is obtained, and on pkg/docid's content-addressable
// discipline for how identity is computed — the commit DAG walk and
// per-branch commit serialization themselves are plain Go, since no
// teacher file implements a commit graph.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/models"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Store is the version store's entry point. Exactly one is constructed
// per process and shared by construction (§9's "no global mutable
// state"), passed by reference into the repository/schema/outbox
// services that need it.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger

	// branchLocks serializes Tx.Commit per branch name (§5: "a
	// per-branch commit lock serialises Tx.commit"). Lazily populated;
	// entries are never removed since the set of branches is small and
	// bounded by operator action, not request volume.
	branchLocksMu sync.Mutex
	branchLocks   map[string]*sync.Mutex
}

// New wraps an already-migrated *gorm.DB as a Store.
func New(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:          db,
		logger:      logger.Named("store"),
		branchLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(branch string) *sync.Mutex {
	s.branchLocksMu.Lock()
	defer s.branchLocksMu.Unlock()
	l, ok := s.branchLocks[branch]
	if !ok {
		l = &sync.Mutex{}
		s.branchLocks[branch] = l
	}
	return l
}

// CreateBranch creates a new branch ref pointing at from's current
// HEAD. Fails with ocierr.NotFound if "from" doesn't exist, or
// ocierr.AlreadyExists if "name" is already taken.
func (s *Store) CreateBranch(ctx context.Context, name oid.BranchName, from oid.BranchName) (*models.Branch, error) {
	var existing models.Branch
	if err := s.db.WithContext(ctx).First(&existing, "name = ?", string(name)).Error; err == nil {
		return nil, &ocierr.AlreadyExists{Kind: "branch", ID: string(name)}
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("store: looking up branch %q: %w", name, err)
	}

	var parent models.Branch
	if err := s.db.WithContext(ctx).First(&parent, "name = ?", string(from)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ocierr.NotFound{Kind: "branch", ID: string(from)}
		}
		return nil, fmt.Errorf("store: looking up parent branch %q: %w", from, err)
	}

	now := time.Now()
	branch := &models.Branch{
		Name:           name,
		Head:           parent.Head,
		ParentBranch:   &from,
		IsProtected:    name.IsProtected(),
		State:          models.BranchStateActive,
		StateChangedAt: now,
		StateChangedBy: "system",
	}
	if err := s.db.WithContext(ctx).Create(branch).Error; err != nil {
		return nil, fmt.Errorf("store: creating branch %q: %w", name, err)
	}
	// The new branch starts with a copy of each resource's latest
	// version on "from", so reads on it see from's documents.
	latest, err := s.latestVersions(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("store: reading versions of %q: %w", from, err)
	}
	for _, rv := range latest {
		rv.ID = 0
		rv.Branch = name
		if err := s.db.WithContext(ctx).Create(&rv).Error; err != nil {
			return nil, fmt.Errorf("store: copying %s/%s onto %q: %w", rv.Type, rv.ResourceID, name, err)
		}
	}
	return branch, nil
}

// DeleteBranch archives a branch ref. Commits reachable from it remain
// retained and addressable by hash (§3 Ownership: "Deleting a Branch
// archives the ref; commits are retained."). Returns false, not an
// error, if the branch doesn't exist.
func (s *Store) DeleteBranch(ctx context.Context, name oid.BranchName) (bool, error) {
	if name.IsProtected() {
		return false, &ocierr.ProtectedBranch{Branch: string(name)}
	}

	var branch models.Branch
	if err := s.db.WithContext(ctx).First(&branch, "name = ?", string(name)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("store: looking up branch %q: %w", name, err)
	}

	branch.State = models.BranchStateArchived
	branch.StateChangedAt = time.Now()
	branch.StateChangedBy = "system"
	if err := s.db.WithContext(ctx).Save(&branch).Error; err != nil {
		return false, fmt.Errorf("store: archiving branch %q: %w", name, err)
	}
	return true, nil
}

// BranchHead returns the branch's current HEAD hash. Returns
// oid.ZeroHash, nil if the branch exists but has no commits yet.
func (s *Store) BranchHead(ctx context.Context, name oid.BranchName) (oid.Hash, error) {
	var branch models.Branch
	if err := s.db.WithContext(ctx).First(&branch, "name = ?", string(name)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", &ocierr.NotFound{Kind: "branch", ID: string(name)}
		}
		return "", fmt.Errorf("store: looking up branch %q: %w", name, err)
	}
	return branch.Head, nil
}

// GetBranch returns the full branch row.
func (s *Store) GetBranch(ctx context.Context, name oid.BranchName) (*models.Branch, error) {
	var branch models.Branch
	if err := s.db.WithContext(ctx).First(&branch, "name = ?", string(name)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ocierr.NotFound{Kind: "branch", ID: string(name)}
		}
		return nil, fmt.Errorf("store: looking up branch %q: %w", name, err)
	}
	return &branch, nil
}

// ListBranches returns every branch ref, ordered by name.
func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	var branches []models.Branch
	err := s.db.WithContext(ctx).Order("name asc").Find(&branches).Error
	return branches, err
}

// UpdateBranchState applies a lifecycle transition, enforcing the
// state machine in models.CanTransition.
func (s *Store) UpdateBranchState(ctx context.Context, name oid.BranchName, to models.BranchState, by, reason string) error {
	branch, err := s.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if !models.CanTransition(branch.State, to) {
		return &ocierr.Conflict{
			Expected: string(branch.State),
			Actual:   string(branch.State),
			Hints:    []string{fmt.Sprintf("cannot transition %s -> %s", branch.State, to)},
		}
	}
	branch.State = to
	branch.StateChangedAt = time.Now()
	branch.StateChangedBy = by
	branch.StateChangedReason = reason
	return s.db.WithContext(ctx).Save(branch).Error
}

// GetCommit fetches a single commit by hash.
func (s *Store) GetCommit(ctx context.Context, hash oid.Hash) (*models.Commit, error) {
	var commit models.Commit
	if err := s.db.WithContext(ctx).First(&commit, "hash = ?", string(hash)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ocierr.NotFound{Kind: "commit", ID: string(hash)}
		}
		return nil, fmt.Errorf("store: looking up commit %q: %w", hash, err)
	}
	return &commit, nil
}

// GetCommitHistory walks the commit DAG backward from branch's HEAD,
// using iterative BFS with a visited set (§9: avoids recursion limits
// on long histories), optionally stopping once a commit timestamp
// predates "since". limit bounds the number of commits returned.
func (s *Store) GetCommitHistory(ctx context.Context, branch oid.BranchName, since *time.Time, limit int) ([]models.Commit, error) {
	head, err := s.BranchHead(ctx, branch)
	if err != nil {
		return nil, err
	}
	if head.IsZero() {
		return nil, nil
	}

	var history []models.Commit
	visited := make(map[oid.Hash]bool)
	queue := []oid.Hash{head}

	for len(queue) > 0 && (limit <= 0 || len(history) < limit) {
		h := queue[0]
		queue = queue[1:]
		if visited[h] || h.IsZero() {
			continue
		}
		visited[h] = true

		commit, err := s.GetCommit(ctx, h)
		if err != nil {
			var nf *ocierr.NotFound
			if asNotFound(err, &nf) {
				continue
			}
			return nil, err
		}

		if since != nil && commit.Timestamp.Before(*since) {
			continue
		}

		history = append(history, *commit)
		for _, p := range commit.Parents {
			queue = append(queue, oid.Hash(p))
		}
	}

	return history, nil
}

func asNotFound(err error, target **ocierr.NotFound) bool {
	nf, ok := err.(*ocierr.NotFound)
	if ok {
		*target = nf
	}
	return ok
}

// FastForward moves target's HEAD to source's HEAD. It does not check
// that source's history descends from target's current HEAD. Used by
// C6's SQUASH/REBASE strategies after replaying commits onto a temp
// branch.
func (s *Store) FastForward(ctx context.Context, source, target oid.BranchName) error {
	sourceHead, err := s.BranchHead(ctx, source)
	if err != nil {
		return err
	}
	targetBranch, err := s.GetBranch(ctx, target)
	if err != nil {
		return err
	}
	if targetBranch.IsProtected && targetBranch.Name == oid.BranchName(oid.BranchMain) {
		// main is allowed to fast-forward (that's how merges land); the
		// store makes no protected-branch check here or in Tx.Commit.
	}
	targetBranch.Head = sourceHead
	return s.db.WithContext(ctx).Save(targetBranch).Error
}
