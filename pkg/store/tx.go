package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"gorm.io/gorm"
)

// pendingOp is one buffered document mutation inside a Tx, staged in
// memory until Commit flushes it as a single database transaction.
type pendingOp struct {
	resourceType string
	resourceID   string
	op           models.ChangeType
	content      map[string]interface{}
}

// Tx buffers a set of document mutations against a single branch and
// atomically turns them into one Commit. It is not safe for concurrent
// use by multiple goroutines — callers that need concurrent writers on
// the same branch should open independent Txes; Commit serializes at
// the branch level (§5).
type Tx struct {
	store       *Store
	branch      oid.BranchName
	parent      oid.Hash
	mergeParent oid.Hash
	ops         []pendingOp
	done        bool
}

// SetMergeParent records a second parent hash for the commit this Tx
// will produce, turning it into a merge commit with
// parents=[parent, mergeParent] instead of the usual single-parent
// lineage. Used only by the merge driver landing a MERGE-strategy
// proposal; a Tx with no merge parent set commits as normal.
func (t *Tx) SetMergeParent(parent oid.Hash) {
	t.mergeParent = parent
}

// BeginTx opens a write transaction against branch, capturing its
// current HEAD as the OCC parent. The Tx is purely in-memory until
// Commit is called — no database transaction is held open across
// BeginTx/buffered writes, only across the Commit call itself.
func (s *Store) BeginTx(ctx context.Context, branch oid.BranchName) (*Tx, error) {
	b, err := s.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if b.State == models.BranchStateLockedForWrite {
		return nil, &ocierr.Conflict{Expected: string(models.BranchStateActive), Actual: string(b.State)}
	}
	return &Tx{store: s, branch: branch, parent: b.Head}, nil
}

// InsertDocument stages the creation of a new resource.
func (t *Tx) InsertDocument(resourceType, resourceID string, content map[string]interface{}) error {
	if t.done {
		return fmt.Errorf("store: tx already committed")
	}
	t.ops = append(t.ops, pendingOp{resourceType, resourceID, models.ChangeCreate, content})
	return nil
}

// UpdateDocument stages a modification to an existing resource.
func (t *Tx) UpdateDocument(resourceType, resourceID string, content map[string]interface{}) error {
	if t.done {
		return fmt.Errorf("store: tx already committed")
	}
	t.ops = append(t.ops, pendingOp{resourceType, resourceID, models.ChangeUpdate, content})
	return nil
}

// DeleteDocument stages a tombstone for a resource.
func (t *Tx) DeleteDocument(resourceType, resourceID string) error {
	if t.done {
		return fmt.Errorf("store: tx already committed")
	}
	t.ops = append(t.ops, pendingOp{resourceType, resourceID, models.ChangeDelete, nil})
	return nil
}

// Empty reports whether any operations have been staged.
func (t *Tx) Empty() bool { return len(t.ops) == 0 }

// Commit flushes the buffered operations as one new Commit, advancing
// the branch HEAD. It re-reads the branch HEAD under the branch's
// commit lock and fails with ocierr.Conflict if another Tx landed a
// commit in the meantime (OCC, §5) — the caller is expected to retry by
// opening a fresh Tx against the new HEAD.
func (t *Tx) Commit(ctx context.Context, author, message string) (oid.Hash, error) {
	return t.commit(ctx, author, message, nil)
}

// CommitWithCallback commits exactly as Commit does, but runs extra
// inside the same physical database transaction as the version rows,
// the commit row, and the branch HEAD advance, after all of those have
// been staged but before the transaction commits. A failing extra
// aborts the whole transaction, so the version-store commit and
// whatever extra writes (e.g. an outbox row) never diverge: either both
// land or neither does.
func (t *Tx) CommitWithCallback(ctx context.Context, author, message string, extra func(tx *gorm.DB, hash oid.Hash) error) (oid.Hash, error) {
	return t.commit(ctx, author, message, extra)
}

func (t *Tx) commit(ctx context.Context, author, message string, extra func(tx *gorm.DB, hash oid.Hash) error) (oid.Hash, error) {
	if t.done {
		return "", fmt.Errorf("store: tx already committed")
	}
	if len(t.ops) == 0 {
		return "", fmt.Errorf("store: commit with no staged operations")
	}

	lock := t.store.lockFor(string(t.branch))
	lock.Lock()
	defer lock.Unlock()

	var resultHash oid.Hash
	err := t.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := tx.Set("gorm:query_option", "FOR UPDATE").First(&branch, "name = ?", string(t.branch)).Error; err != nil {
			return fmt.Errorf("store: re-reading branch %q: %w", t.branch, err)
		}
		if branch.Head != t.parent {
			return &ocierr.Conflict{
				Expected: string(t.parent),
				Actual:   string(branch.Head),
				Hints:    []string{"branch advanced since tx began; retry against the new HEAD"},
			}
		}
		// The store only enforces OCC and referential validity here. No
		// protected-branch check is made on commits, neither here nor in
		// pkg/branch; only DeleteBranch refuses protected names.

		now := time.Now()
		changed := make([]models.ChangedResource, 0, len(t.ops))
		for _, op := range t.ops {
			changed = append(changed, models.ChangedResource{Type: op.resourceType, ID: op.resourceID, Op: string(op.op)})
		}

		parents := []string{}
		if !t.parent.IsZero() {
			parents = append(parents, string(t.parent))
		}
		if !t.mergeParent.IsZero() {
			parents = append(parents, string(t.mergeParent))
		}
		hash := models.ComputeCommitHash(parents, author, message, now, changed)

		for _, op := range t.ops {
			var latest models.ResourceVersion
			nextVersion := 1
			err := tx.Where("type = ? AND resource_id = ? AND branch = ?", op.resourceType, op.resourceID, string(t.branch)).
				Order("version desc").First(&latest).Error
			switch {
			case err == nil:
				nextVersion = latest.Version + 1
			case err == gorm.ErrRecordNotFound:
				nextVersion = 1
			default:
				return fmt.Errorf("store: reading prior version of %s/%s: %w", op.resourceType, op.resourceID, err)
			}

			if op.op == models.ChangeCreate && nextVersion != 1 {
				return &ocierr.AlreadyExists{Kind: op.resourceType, ID: op.resourceID}
			}
			if (op.op == models.ChangeUpdate || op.op == models.ChangeDelete) && nextVersion == 1 {
				return &ocierr.NotFound{Kind: op.resourceType, ID: op.resourceID}
			}

			contentBytes, err := json.Marshal(op.content)
			if err != nil {
				return fmt.Errorf("store: encoding content for %s/%s: %w", op.resourceType, op.resourceID, err)
			}

			versionHash := oid.ComputeHash(op.resourceType, op.resourceID, string(t.branch), fmt.Sprintf("%d", nextVersion), string(contentBytes))

			rv := models.ResourceVersion{
				Type:        op.resourceType,
				ResourceID:  op.resourceID,
				Branch:      t.branch,
				Version:     nextVersion,
				CommitHash:  hash,
				ModifiedAt:  now,
				ModifiedBy:  author,
				ChangeType:  op.op,
				ContentJSON: models.JSON(contentBytes),
				VersionHash: versionHash,
			}
			if err := tx.Create(&rv).Error; err != nil {
				return fmt.Errorf("store: inserting version of %s/%s: %w", op.resourceType, op.resourceID, err)
			}
		}

		commit := models.Commit{
			Hash:             hash,
			Parents:          parents,
			Author:           author,
			Message:          message,
			Timestamp:        now,
			ChangedResources: changed,
			TreeHash:         oid.ComputeHash(string(t.branch), fmt.Sprintf("%d", len(changed))),
		}
		if err := tx.Create(&commit).Error; err != nil {
			return fmt.Errorf("store: inserting commit: %w", err)
		}

		branch.Head = hash
		if err := tx.Save(&branch).Error; err != nil {
			return fmt.Errorf("store: advancing branch head: %w", err)
		}

		if extra != nil {
			if err := extra(tx, hash); err != nil {
				return err
			}
		}

		resultHash = hash
		return nil
	})

	if err != nil {
		return "", err
	}
	t.done = true
	return resultHash, nil
}
