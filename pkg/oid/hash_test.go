package oid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash_Deterministic(t *testing.T) {
	a := ComputeHash("alice", "create asset", "2026-01-01T00:00:00Z", SortedJoin([]string{"b", "a"}))
	b := ComputeHash("alice", "create asset", "2026-01-01T00:00:00Z", SortedJoin([]string{"a", "b"}))
	assert.Equal(t, a, b, "hash must not depend on pre-sort ordering of the caller's slice")
	assert.Len(t, string(a), 64)
}

func TestComputeHash_DiffersOnAnyPart(t *testing.T) {
	base := ComputeHash("alice", "msg", "t0")
	changedAuthor := ComputeHash("bob", "msg", "t0")
	changedMsg := ComputeHash("alice", "msg2", "t0")
	assert.NotEqual(t, base, changedAuthor)
	assert.NotEqual(t, base, changedMsg)
}

func TestComputeHash_NoSeparatorCollision(t *testing.T) {
	a := ComputeHash("ab", "c")
	b := ComputeHash("a", "bc")
	assert.NotEqual(t, a, b)
}

func TestHash_JSONRoundTrip(t *testing.T) {
	h := ComputeHash("x")
	data, err := h.MarshalJSON()
	require.NoError(t, err)

	var out Hash
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, h, out)
}

func TestHash_ScanValue(t *testing.T) {
	var h Hash
	require.NoError(t, h.Scan("deadbeef"))
	assert.Equal(t, Hash("deadbeef"), h)

	require.NoError(t, h.Scan([]byte("cafebabe")))
	assert.Equal(t, Hash("cafebabe"), h)

	require.NoError(t, h.Scan(nil))
	assert.True(t, h.IsZero())

	v, err := Hash("abc").Value()
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestHash_Short(t *testing.T) {
	h := Hash("0123456789abcdef0123456789abcdef")
	assert.Equal(t, "0123456789ab", h.Short())
	assert.Equal(t, Hash("short"), Hash("short").Short())
}
