package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeCommitHash_Deterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	changes := []ChangedResource{
		{Type: "object_type", ID: "Asset", Op: "create"},
		{Type: "property", ID: "Name", Op: "create"},
	}
	reordered := []ChangedResource{changes[1], changes[0]}

	h1 := ComputeCommitHash([]string{"p1"}, "alice", "create Asset", ts, changes)
	h2 := ComputeCommitHash([]string{"p1"}, "alice", "create Asset", ts, reordered)
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}

func TestComputeCommitHash_DiffersByParents(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	changes := []ChangedResource{{Type: "object_type", ID: "Asset", Op: "create"}}

	withParent := ComputeCommitHash([]string{"p1"}, "alice", "msg", ts, changes)
	noParent := ComputeCommitHash(nil, "alice", "msg", ts, changes)
	assert.NotEqual(t, withParent, noParent)
}
