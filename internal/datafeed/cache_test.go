package datafeed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionrun/internal/domain"
)

func testSnapshot() *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		VIX:       22.5,
		Timestamp: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		Quotes: []domain.Quote{
			{Symbol: "SPY", Open: 578, High: 582, Low: 577, Last: 580, Volume: 1_000_000},
		},
	}
}

func TestSnapshotCache_PutAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewSnapshotCache(db, time.Hour)
	ctx := context.Background()
	snap := testSnapshot()

	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	key := "optionrun:snapshot:2025-03-10"

	mock.ExpectSet(key, payload, time.Hour).SetVal("OK")
	require.NoError(t, cache.Put(ctx, snap))

	mock.ExpectGet(key).SetVal(string(payload))
	got, found, err := cache.Get(ctx, snap.Timestamp)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snap.VIX, got.VIX)
	require.Len(t, got.Quotes, 1)
	assert.Equal(t, 580.0, got.Quotes[0].Last)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotCache_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewSnapshotCache(db, time.Hour)

	mock.ExpectGet("optionrun:snapshot:2025-03-10").RedisNil()
	_, found, err := cache.Get(context.Background(), testSnapshot().Timestamp)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewSnapshotCache(db, time.Hour)

	mock.ExpectGet("optionrun:snapshot:2025-03-10").SetErr(assert.AnError)
	_, _, err := cache.Get(context.Background(), testSnapshot().Timestamp)
	assert.Error(t, err)
}

func TestCachedSource_WriteThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewSnapshotCache(db, time.Hour)
	snap := testSnapshot()

	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	mock.ExpectSet("optionrun:snapshot:2025-03-10", payload, time.Hour).SetVal("OK")

	src := NewCachedSource(SourceFunc(func(ctx context.Context) (*domain.MarketSnapshot, error) {
		return snap, nil
	}), cache)

	got, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.VIX, got.VIX)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSource_CacheFailureDoesNotFailRead(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewSnapshotCache(db, time.Hour)
	snap := testSnapshot()

	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	mock.ExpectSet("optionrun:snapshot:2025-03-10", payload, time.Hour).SetErr(assert.AnError)

	src := NewCachedSource(SourceFunc(func(ctx context.Context) (*domain.MarketSnapshot, error) {
		return snap, nil
	}), cache)

	got, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
}
