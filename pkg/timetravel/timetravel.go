// Package timetravel implements the Time-Travel Engine (C8): the
// AS_OF/BETWEEN/ALL_VERSIONS family of temporal queries plus timeline
// and snapshot reads, built entirely over pkg/store's append-only
// ResourceVersion read model.
//
// Grounded on pkg/search/hybrid.go's combinator-over-two-sources shape
// (cache vs. durable query): Engine checks the cache first, falls back
// to pkg/store, and populates the cache on a miss, the same way
// HybridSearch merges a fast and a slow source rather than picking
// one. Flexible timestamp parsing (relative refs like "-1h") uses
// github.com/araddon/dateparse, already a teacher dependency otherwise
// unused in this slice.
package timetravel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/foundry/oms/pkg/cache"
	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/store"
)

// Engine answers temporal queries over the version store, caching
// results per §4.8's key scheme.
type Engine struct {
	store *store.Store
	cache cache.Cache
	ttl   time.Duration
}

// Config configures an Engine.
type Config struct {
	Store *store.Store
	Cache cache.Cache          // optional; a no-op cache is used if nil
	TTL   time.Duration        // default 3600s, per §4.8
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewNoop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 3600 * time.Second
	}
	return &Engine{store: cfg.Store, cache: cfg.Cache, ttl: cfg.TTL}
}

// ParseTimeRef parses an absolute timestamp or one of the relative
// forms §4.8 accepts: "-Nh", "-Nd", "-Nm" (minutes), "-Nw", evaluated
// against now.
func ParseTimeRef(ref string, now time.Time) (time.Time, error) {
	if d, ok := parseRelative(ref); ok {
		return now.Add(-d), nil
	}
	t, err := dateparse.ParseAny(ref)
	if err != nil {
		return time.Time{}, fmt.Errorf("timetravel: parsing time reference %q: %w", ref, err)
	}
	return t, nil
}

func parseRelative(ref string) (time.Duration, bool) {
	if len(ref) < 3 || ref[0] != '-' {
		return 0, false
	}
	unit := ref[len(ref)-1]
	numStr := ref[1 : len(ref)-1]
	var n int
	if _, err := fmt.Sscanf(numStr, "%d", &n); err != nil {
		return 0, false
	}
	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// AsOfOptions configures AsOf.
type AsOfOptions struct {
	ResourceID     string // empty = every resource of Type
	IncludeDeleted bool
}

// AsOf returns the newest version of each matching resource with
// ModifiedAt <= at (§4.8's AS_OF operator), filtering tombstones
// unless opts.IncludeDeleted.
func (e *Engine) AsOf(ctx context.Context, branch oid.BranchName, resourceType string, at time.Time, opts AsOfOptions) ([]models.ResourceVersion, error) {
	key := cacheKey("asof", resourceType, idOrAll(opts.ResourceID), branch, at, opts.IncludeDeleted)
	return e.cached(ctx, key, func() ([]models.ResourceVersion, error) {
		return e.store.QueryAsOf(ctx, branch, resourceType, opts.ResourceID, at, opts.IncludeDeleted)
	})
}

// Before returns AsOf(t - 1ns): the state as of just before t, so a
// version written at exactly t is excluded (QueryAsOf's bound is <=).
func (e *Engine) Before(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, t time.Time) ([]models.ResourceVersion, error) {
	return e.AsOf(ctx, branch, resourceType, t.Add(-time.Nanosecond), AsOfOptions{ResourceID: resourceID})
}

// After returns every version strictly after t, oldest first.
func (e *Engine) After(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, t time.Time) ([]models.ResourceVersion, error) {
	rows, err := e.Between(ctx, branch, resourceType, resourceID, t.Add(time.Nanosecond), time.Now())
	return rows, err
}

// Between returns every version of resourceType (optionally one
// resourceID) on branch with t1 <= modified_at <= t2, ordered by
// (id, version) (§4.8's BETWEEN operator).
func (e *Engine) Between(ctx context.Context, branch oid.BranchName, resourceType, resourceID string, t1, t2 time.Time) ([]models.ResourceVersion, error) {
	key := cacheKey("between", resourceType, idOrAll(resourceID), branch, t1, t2)
	return e.cached(ctx, key, func() ([]models.ResourceVersion, error) {
		return e.store.QueryBetween(ctx, branch, resourceType, resourceID, t1, t2)
	})
}

// VersionEntry is one ALL_VERSIONS row, enriched with its neighbors
// and the duration it was live (§4.8).
type VersionEntry struct {
	models.ResourceVersion
	PreviousVersion *int
	NextVersion     *int
	VersionDuration *time.Duration // nil for the current (last) version
}

// AllVersions returns the complete version chain for one resource,
// oldest first, with version_duration/next_version/previous_version
// wired per §4.8.
func (e *Engine) AllVersions(ctx context.Context, branch oid.BranchName, resourceType, resourceID string) ([]VersionEntry, error) {
	rows, err := e.store.GetResourceHistory(ctx, branch, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	return buildChain(rows), nil
}

func buildChain(rows []models.ResourceVersion) []VersionEntry {
	entries := make([]VersionEntry, len(rows))
	for i, rv := range rows {
		entries[i] = VersionEntry{ResourceVersion: rv}
		if i > 0 {
			prev := rows[i-1].Version
			entries[i].PreviousVersion = &prev
			d := rv.ModifiedAt.Sub(rows[i-1].ModifiedAt)
			entries[i-1].VersionDuration = &d
		}
		if i < len(rows)-1 {
			next := rows[i+1].Version
			entries[i].NextVersion = &next
		}
	}
	return entries
}

// TemporalDiff describes how one resource changed between two points
// in time (§4.8's compare operator).
type TemporalDiff struct {
	Type       string
	ResourceID string
	Operation  string // created, updated, deleted, unchanged
	FromVersion *models.ResourceVersion
	ToVersion   *models.ResourceVersion
}

// Compare builds a per-type map of the latest version at t1 and t2 and
// diffs them by key presence and version hash, emitting one
// TemporalDiff per resource touched (§4.8's compare operator).
func (e *Engine) Compare(ctx context.Context, branch oid.BranchName, types []string, t1, t2 time.Time) ([]TemporalDiff, error) {
	var diffs []TemporalDiff
	for _, typ := range types {
		before, err := e.store.QueryAsOf(ctx, branch, typ, "", t1, true)
		if err != nil {
			return nil, err
		}
		after, err := e.store.QueryAsOf(ctx, branch, typ, "", t2, true)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, diffType(typ, before, after)...)
	}
	return diffs, nil
}

func diffType(typ string, before, after []models.ResourceVersion) []TemporalDiff {
	beforeByID := make(map[string]models.ResourceVersion, len(before))
	for _, rv := range before {
		beforeByID[rv.ResourceID] = rv
	}
	afterByID := make(map[string]models.ResourceVersion, len(after))
	for _, rv := range after {
		afterByID[rv.ResourceID] = rv
	}

	ids := make(map[string]bool)
	for id := range beforeByID {
		ids[id] = true
	}
	for id := range afterByID {
		ids[id] = true
	}

	var diffs []TemporalDiff
	for id := range ids {
		b, inBefore := beforeByID[id]
		a, inAfter := afterByID[id]
		d := TemporalDiff{Type: typ, ResourceID: id}

		switch {
		case !inBefore && inAfter && !a.IsTombstone():
			d.Operation = "created"
			v := a
			d.ToVersion = &v
		case inBefore && !b.IsTombstone() && (!inAfter || a.IsTombstone()):
			d.Operation = "deleted"
			v := b
			d.FromVersion = &v
		case inBefore && inAfter && b.VersionHash != a.VersionHash && !a.IsTombstone():
			d.Operation = "updated"
			bv, av := b, a
			d.FromVersion, d.ToVersion = &bv, &av
		case inBefore && inAfter && b.VersionHash == a.VersionHash:
			d.Operation = "unchanged"
			av := a
			d.ToVersion = &av
		default:
			continue // both sides tombstoned, or absent on both: nothing to report
		}
		diffs = append(diffs, d)
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].ResourceID < diffs[j].ResourceID })
	return diffs
}

// Timeline is the derived-stats view over one resource's full history
// (§4.8's timeline operation).
type Timeline struct {
	Entries              []VersionEntry
	TotalVersions        int
	TotalUpdates         int
	UniqueContributors   int
	AverageTimeBetween   time.Duration
	DeletedAt            *time.Time
}

// TimelineFor computes Timeline for one resource.
func (e *Engine) TimelineFor(ctx context.Context, branch oid.BranchName, resourceType, resourceID string) (*Timeline, error) {
	entries, err := e.AllVersions(ctx, branch, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	tl := &Timeline{Entries: entries, TotalVersions: len(entries)}
	if len(entries) == 0 {
		return tl, nil
	}

	contributors := make(map[string]bool)
	var totalGap time.Duration
	var gaps int
	for i, entry := range entries {
		contributors[entry.ModifiedBy] = true
		if entry.ChangeType == models.ChangeUpdate {
			tl.TotalUpdates++
		}
		if entry.ChangeType == models.ChangeDelete {
			t := entry.ModifiedAt
			tl.DeletedAt = &t
		}
		if i > 0 {
			totalGap += entry.ModifiedAt.Sub(entries[i-1].ModifiedAt)
			gaps++
		}
	}
	tl.UniqueContributors = len(contributors)
	if gaps > 0 {
		tl.AverageTimeBetween = totalGap / time.Duration(gaps)
	}
	return tl, nil
}

// Snapshot is the per-type resource count (and optional data dump) as
// of a point in time (§4.8's snapshot operation).
type Snapshot struct {
	Branch    oid.BranchName
	At        time.Time
	Counts    map[string]int
	Resources map[string][]models.ResourceVersion // only populated if includeData
}

// SnapshotAt builds a Snapshot for branch as of at, across every
// resource type present in the version store.
func (e *Engine) SnapshotAt(ctx context.Context, branch oid.BranchName, at time.Time, includeData bool) (*Snapshot, error) {
	rows, err := e.store.QueryAllTypesAsOf(ctx, branch, at)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Branch: branch, At: at, Counts: make(map[string]int)}
	if includeData {
		snap.Resources = make(map[string][]models.ResourceVersion)
	}
	for _, rv := range rows {
		snap.Counts[rv.Type]++
		if includeData {
			snap.Resources[rv.Type] = append(snap.Resources[rv.Type], rv)
		}
	}
	return snap, nil
}

func (e *Engine) cached(ctx context.Context, key string, produce func() ([]models.ResourceVersion, error)) ([]models.ResourceVersion, error) {
	if v, ok := e.cache.Get(ctx, key); ok {
		if rows, ok := v.([]models.ResourceVersion); ok {
			return rows, nil
		}
	}
	rows, err := produce()
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, rows, e.ttl)
	return rows, nil
}

func idOrAll(id string) string {
	if id == "" {
		return "all"
	}
	return id
}

// InvalidateBranch drops every cached temporal result touching branch
// (§4.8's cache key scheme is branch-scoped so a single pattern covers
// every operator and type). Commits do not call it; cached results on
// a branch stay until their TTL expires or this is called.
func (e *Engine) InvalidateBranch(ctx context.Context, branch oid.BranchName) {
	e.cache.DeletePattern(ctx, fmt.Sprintf("temporal:*:*:*:%s:*", branch))
}

func cacheKey(op, typ, id string, branch oid.BranchName, params ...interface{}) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, "%v|", p)
	}
	return fmt.Sprintf("temporal:%s:%s:%s:%s:%s", op, typ, id, branch, cache.HashParams(b.String()))
}
