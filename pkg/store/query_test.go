package store

import (
	"context"
	"testing"
	"time"

	"github.com/foundry/oms/pkg/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAsOfIncludeDeleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("asset", "A1", map[string]interface{}{"name": "v1"}))
	_, err = tx.Commit(ctx, "alice", "create A1")
	require.NoError(t, err)

	tx, err = s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteDocument("asset", "A1"))
	_, err = tx.Commit(ctx, "alice", "delete A1")
	require.NoError(t, err)

	now := time.Now()
	rows, err := s.QueryAsOf(ctx, main, "asset", "A1", now, false)
	require.NoError(t, err)
	assert.Len(t, rows, 0)

	rows, err = s.QueryAsOf(ctx, main, "asset", "A1", now, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsTombstone())
}

func TestQueryBetweenOrdersByIDThenVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	t0 := time.Now()
	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("asset", "A1", map[string]interface{}{"name": "v1"}))
	_, err = tx.Commit(ctx, "alice", "create A1")
	require.NoError(t, err)

	rows, err := s.QueryBetween(ctx, main, "asset", "", t0.Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A1", rows[0].ResourceID)
}

func TestQueryBetweenEmptyWhenRangeInverted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	rows, err := s.QueryBetween(ctx, main, "asset", "", time.Now(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestQueryAllTypesAsOfCountsEveryType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	main := oid.BranchName(oid.BranchMain)

	tx, err := s.BeginTx(ctx, main)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument("asset", "A1", map[string]interface{}{"name": "v1"}))
	require.NoError(t, tx.InsertDocument("widget", "W1", map[string]interface{}{"name": "v1"}))
	_, err = tx.Commit(ctx, "alice", "seed")
	require.NoError(t, err)

	rows, err := s.QueryAllTypesAsOf(ctx, main, time.Now())
	require.NoError(t, err)
	byType := map[string]int{}
	for _, rv := range rows {
		byType[rv.Type]++
	}
	assert.Equal(t, 1, byType["asset"])
	assert.Equal(t, 1, byType["widget"])
}
