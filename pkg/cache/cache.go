// Package cache implements the two-tier cache layer (C9): an
// in-process LRU in front of an optional remote KV tier, branch-scoped
// pattern invalidation, and best-effort semantics throughout — nothing
// in this package is ever allowed to be load-bearing for correctness.
//
// Grounded on pkg/search/hybrid.go's "check the fast source, fall back
// to the slow one" combinator shape, generalized from hybrid search's
// keyword/semantic pairing to an LRU/remote-KV pairing. No teacher LRU
// implementation exists in the retrieved slice, so the in-process tier
// is hand-rolled over container/list + a map (a justified stdlib use:
// no pack repo ships a generic LRU library, and an LRU this small isn't
// worth a dependency). Cache-key hashing uses golang.org/x/crypto/blake2s
// per the wire-level key scheme's explicit choice of hash.
package cache

import (
	"container/list"
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/blake2s"
)

// Cache is the lookup surface every caller (principally pkg/timetravel)
// uses; callers must tolerate a miss at any time.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Delete(ctx context.Context, key string)
	DeletePattern(ctx context.Context, pattern string)
}

// RemoteCache is the shared, TTL-bounded KV tier behind the in-process
// LRU. A concrete backend (Redis, Memcached, ...) implements this;
// none ships by default (see DESIGN.md's dropped-dependency notes on
// why no remote-cache client is wired as a teacher/pack dependency).
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// HashParams hashes an arbitrary parameter string into the short,
// fixed-width component of a temporal cache key.
func HashParams(params string) string {
	sum := blake2s.Sum256([]byte(params))
	return hex.EncodeToString(sum[:8])
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// LRU is a size-bounded, TTL-aware in-process cache (~1000 items by
// default, per §4.9).
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

// NewLRU constructs an in-process LRU of the given capacity (0 uses
// the §4.9 default of 1000).
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LRU{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (c *LRU) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

func (c *LRU) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

func (c *LRU) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *LRU) DeletePattern(ctx context.Context, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if matchGlob(pattern, key) {
			c.ll.Remove(el)
			delete(c.items, key)
		}
	}
}

func matchGlob(pattern, key string) bool {
	ok, err := filepath.Match(pattern, key)
	return err == nil && ok
}

// TwoTier combines an in-process LRU with an optional RemoteCache:
// lookups hit the LRU first, then the remote tier (repopulating the
// LRU on a remote hit); a miss on both is the caller's problem to
// resolve and repopulate via Set.
type TwoTier struct {
	local  *LRU
	remote RemoteCache
}

// NewTwoTier constructs a TwoTier cache. remote may be nil, in which
// case this behaves as a bare in-process LRU.
func NewTwoTier(local *LRU, remote RemoteCache) *TwoTier {
	if local == nil {
		local = NewLRU(0)
	}
	return &TwoTier{local: local, remote: remote}
}

func (t *TwoTier) Get(ctx context.Context, key string) (interface{}, bool) {
	if v, ok := t.local.Get(ctx, key); ok {
		return v, true
	}
	if t.remote == nil {
		return nil, false
	}
	raw, ok, err := t.remote.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	t.local.Set(ctx, key, raw, 0)
	return raw, true
}

func (t *TwoTier) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	t.local.Set(ctx, key, value, ttl)
	if t.remote == nil {
		return
	}
	if raw, ok := value.([]byte); ok {
		_ = t.remote.Set(ctx, key, raw, ttl)
	}
}

func (t *TwoTier) Delete(ctx context.Context, key string) {
	t.local.Delete(ctx, key)
	if t.remote != nil {
		_ = t.remote.Delete(ctx, key)
	}
}

func (t *TwoTier) DeletePattern(ctx context.Context, pattern string) {
	t.local.DeletePattern(ctx, pattern)
	if t.remote == nil {
		return
	}
	keys, err := t.remote.Keys(ctx, pattern)
	if err != nil {
		return
	}
	for _, k := range keys {
		_ = t.remote.Delete(ctx, k)
	}
}

// noop is the zero-value Cache used where no cache is configured:
// every Get misses, every Set/Delete is a no-op.
type noop struct{}

// NewNoop returns a Cache that never retains anything, so callers that
// always go through the Cache interface don't need a nil check.
func NewNoop() Cache { return noop{} }

func (noop) Get(ctx context.Context, key string) (interface{}, bool)                    { return nil, false }
func (noop) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {}
func (noop) Delete(ctx context.Context, key string)                                    {}
func (noop) DeletePattern(ctx context.Context, pattern string)                         {}
