package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/oid"
	"gorm.io/gorm"
)

// ResourceDiff describes one resource that differs between two
// branches' current states.
type ResourceDiff struct {
	Type       string
	ResourceID string
	InBase     bool
	InCompare  bool
	Changed    bool
}

// CompareBranches returns the set of resources whose latest version
// differs between base and compare (present in one but not the other,
// or present in both with a different version hash). Used by C6 to
// decide whether a merge is a pure fast-forward or needs three-way
// resolution.
func (s *Store) CompareBranches(ctx context.Context, base, compare oid.BranchName) ([]ResourceDiff, error) {
	baseVersions, err := s.latestVersions(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("store: reading latest versions of %q: %w", base, err)
	}
	compareVersions, err := s.latestVersions(ctx, compare)
	if err != nil {
		return nil, fmt.Errorf("store: reading latest versions of %q: %w", compare, err)
	}

	keys := make(map[string]bool)
	for k := range baseVersions {
		keys[k] = true
	}
	for k := range compareVersions {
		keys[k] = true
	}

	var diffs []ResourceDiff
	for k := range keys {
		b, inBase := baseVersions[k]
		c, inCompare := compareVersions[k]
		if inBase && inCompare && b.VersionHash == c.VersionHash {
			continue
		}
		rt, rid := splitResourceKey(k)
		diffs = append(diffs, ResourceDiff{
			Type:       rt,
			ResourceID: rid,
			InBase:     inBase && !b.IsTombstone(),
			InCompare:  inCompare && !c.IsTombstone(),
			Changed:    inBase && inCompare,
		})
	}
	return diffs, nil
}

// latestVersions returns, for every (type, resource_id) on branch, its
// highest-version ResourceVersion row, keyed by "type/resourceID".
func (s *Store) latestVersions(ctx context.Context, branch oid.BranchName) (map[string]models.ResourceVersion, error) {
	var rows []models.ResourceVersion
	// One query per resource via a correlated subquery would be cleaner
	// in raw SQL, but GORM's window-function support is dialector
	// dependent; a full scan + in-memory reduction keeps this portable
	// across postgres and sqlite.
	if err := s.db.WithContext(ctx).
		Where("branch = ?", string(branch)).
		Order("type asc, resource_id asc, version asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	latest := make(map[string]models.ResourceVersion, len(rows))
	for _, rv := range rows {
		key := rv.Type + "/" + rv.ResourceID
		latest[key] = rv
	}
	return latest, nil
}

func splitResourceKey(key string) (resourceType, resourceID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// QueryAt returns the state of every resource of resourceType on branch
// as of the given time: the highest version whose ModifiedAt is <= at,
// excluding tombstones. Used by C2, the schema service and
// CountRecords for ordinary branch-head reads (at = time.Now()); C8's
// AS_OF time-travel query uses QueryAsOf instead.
func (s *Store) QueryAt(ctx context.Context, branch oid.BranchName, resourceType string, at time.Time) ([]models.ResourceVersion, error) {
	var rows []models.ResourceVersion
	if err := s.db.WithContext(ctx).
		Where("branch = ? AND type = ? AND modified_at <= ?", string(branch), resourceType, at).
		Order("resource_id asc, version desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	var result []models.ResourceVersion
	for _, rv := range rows {
		if seen[rv.ResourceID] {
			continue
		}
		seen[rv.ResourceID] = true
		if rv.IsTombstone() {
			continue
		}
		result = append(result, rv)
	}
	return result, nil
}

// GetResourceAt returns a single resource's state as of "at" on branch,
// or gorm.ErrRecordNotFound if it doesn't exist (or was deleted) by
// that time.
func (s *Store) GetResourceAt(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, at time.Time) (*models.ResourceVersion, error) {
	var rv models.ResourceVersion
	err := s.db.WithContext(ctx).
		Where("branch = ? AND type = ? AND resource_id = ? AND modified_at <= ?", string(branch), resourceType, resourceID, at).
		Order("version desc").
		First(&rv).Error
	if err != nil {
		return nil, err
	}
	if rv.IsTombstone() {
		return nil, gorm.ErrRecordNotFound
	}
	return &rv, nil
}

// GetResourceHistory returns every version of a resource on branch,
// oldest first — the full timeline used by C8's timeline operation.
func (s *Store) GetResourceHistory(ctx context.Context, branch oid.BranchName, resourceType, resourceID string) ([]models.ResourceVersion, error) {
	var rows []models.ResourceVersion
	err := s.db.WithContext(ctx).
		Where("branch = ? AND type = ? AND resource_id = ?", string(branch), resourceType, resourceID).
		Order("version asc").
		Find(&rows).Error
	return rows, err
}

// QueryAsOf is QueryAt generalized for a single optional resourceID and
// tombstone visibility, backing C8's AS_OF operator (§4.8): the newest
// version with modified_at <= at, per (type, id?, branch). A
// tombstone is included only when includeDeleted is set (§4.8's
// tombstone-visibility rule).
func (s *Store) QueryAsOf(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, at time.Time, includeDeleted bool) ([]models.ResourceVersion, error) {
	q := s.db.WithContext(ctx).
		Where("branch = ? AND type = ? AND modified_at <= ?", string(branch), resourceType, at)
	if resourceID != "" {
		q = q.Where("resource_id = ?", resourceID)
	}
	var rows []models.ResourceVersion
	if err := q.Order("resource_id asc, version desc").Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	var result []models.ResourceVersion
	for _, rv := range rows {
		if seen[rv.ResourceID] {
			continue
		}
		seen[rv.ResourceID] = true
		if rv.IsTombstone() && !includeDeleted {
			continue
		}
		result = append(result, rv)
	}
	return result, nil
}

// QueryBetween returns every version of resourceType (optionally one
// resourceID) on branch with t1 <= modified_at <= t2, ordered by
// (resource_id, version) — C8's BETWEEN operator (§4.8).
func (s *Store) QueryBetween(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, t1, t2 time.Time) ([]models.ResourceVersion, error) {
	if t1.After(t2) {
		return nil, nil
	}
	q := s.db.WithContext(ctx).
		Where("branch = ? AND type = ? AND modified_at >= ? AND modified_at <= ?", string(branch), resourceType, t1, t2)
	if resourceID != "" {
		q = q.Where("resource_id = ?", resourceID)
	}
	var rows []models.ResourceVersion
	err := q.Order("resource_id asc, version asc").Find(&rows).Error
	return rows, err
}

// QueryAllTypesAsOf is QueryAsOf without a type filter, across every
// resource type on branch — used by C8's snapshot operation to build
// per-type counts as of a point in time.
func (s *Store) QueryAllTypesAsOf(ctx context.Context, branch oid.BranchName, at time.Time) ([]models.ResourceVersion, error) {
	var rows []models.ResourceVersion
	if err := s.db.WithContext(ctx).
		Where("branch = ? AND modified_at <= ?", string(branch), at).
		Order("type asc, resource_id asc, version desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	var result []models.ResourceVersion
	for _, rv := range rows {
		key := rv.Type + "/" + rv.ResourceID
		if seen[key] {
			continue
		}
		seen[key] = true
		if rv.IsTombstone() {
			continue
		}
		result = append(result, rv)
	}
	return result, nil
}

// CountRecords returns the number of live (non-tombstone) resources of
// entityType on branch, as of now. Backs validator.RecordCounter so the
// breaking-change impact estimate can report how many records a schema
// change would actually touch without the validator package importing
// the store directly.
func (s *Store) CountRecords(ctx context.Context, entityType, branch string) (int, error) {
	rows, err := s.QueryAt(ctx, oid.BranchName(branch), entityType, time.Now())
	if err != nil {
		return 0, fmt.Errorf("store: counting %q records on %q: %w", entityType, branch, err)
	}
	return len(rows), nil
}
