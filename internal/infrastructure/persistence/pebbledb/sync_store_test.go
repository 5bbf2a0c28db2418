package pebbledb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSyncStoreJobOrder(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	// Enqueue out of order; the drain order is did, endpoint, watermark.
	jobs := []*models.SyncJob{
		{Direction: models.DirectionPull, DID: "did:key:b", Endpoint: "https://dwn.example/1", Watermark: "00000000000000000001", MessageID: "m4"},
		{Direction: models.DirectionPull, DID: "did:key:a", Endpoint: "https://dwn.example/2", Watermark: "00000000000000000001", MessageID: "m3"},
		{Direction: models.DirectionPull, DID: "did:key:a", Endpoint: "https://dwn.example/1", Watermark: "00000000000000000002", MessageID: "m2"},
		{Direction: models.DirectionPull, DID: "did:key:a", Endpoint: "https://dwn.example/1", Watermark: "00000000000000000001", MessageID: "m1"},
	}
	for _, j := range jobs {
		require.NoError(t, store.EnqueueJob(ctx, "tenant", j))
	}

	listed, err := store.ListJobs(ctx, "tenant", models.DirectionPull)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, "m1", listed[0].MessageID)
	assert.Equal(t, "m2", listed[1].MessageID)
	assert.Equal(t, "m3", listed[2].MessageID)
	assert.Equal(t, "m4", listed[3].MessageID)
}

func TestSyncStoreDirectionsIsolated(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.EnqueueJob(ctx, "tenant", &models.SyncJob{
		Direction: models.DirectionPush, DID: "did:key:a", Endpoint: "e", Watermark: "1", MessageID: "m",
	}))

	pulls, err := store.ListJobs(ctx, "tenant", models.DirectionPull)
	require.NoError(t, err)
	assert.Empty(t, pulls)

	pushes, err := store.ListJobs(ctx, "tenant", models.DirectionPush)
	require.NoError(t, err)
	assert.Len(t, pushes, 1)
}

func TestSyncStoreEnqueueDeduplicates(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	job := &models.SyncJob{Direction: models.DirectionPull, DID: "did:key:a", Endpoint: "e", Watermark: "1", MessageID: "m"}
	require.NoError(t, store.EnqueueJob(ctx, "tenant", job))
	require.NoError(t, store.EnqueueJob(ctx, "tenant", job))

	listed, err := store.ListJobs(ctx, "tenant", models.DirectionPull)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestSyncStoreDeleteJobsAtomic(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	var jobs []*models.SyncJob
	for _, id := range []string{"m1", "m2", "m3"} {
		j := &models.SyncJob{Direction: models.DirectionPull, DID: "did:key:a", Endpoint: "e", Watermark: id, MessageID: id}
		jobs = append(jobs, j)
		require.NoError(t, store.EnqueueJob(ctx, "tenant", j))
	}

	require.NoError(t, store.DeleteJobs(ctx, "tenant", jobs[:2]))

	listed, err := store.ListJobs(ctx, "tenant", models.DirectionPull)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "m3", listed[0].MessageID)
}

func TestSyncStoreWatermarks(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	wm, err := store.GetWatermark(ctx, "tenant", "did:key:a", "e", models.DirectionPull)
	require.NoError(t, err)
	assert.Empty(t, wm)

	require.NoError(t, store.SetWatermark(ctx, "tenant", "did:key:a", "e", models.DirectionPull, "00000000000000000007"))

	wm, err = store.GetWatermark(ctx, "tenant", "did:key:a", "e", models.DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000007", wm)

	// Push and pull cursors for the same endpoint stay independent.
	wm, err = store.GetWatermark(ctx, "tenant", "did:key:a", "e", models.DirectionPush)
	require.NoError(t, err)
	assert.Empty(t, wm)
}

func TestSyncStoreAppliedLog(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	ok, err := store.IsApplied(ctx, "tenant", "did:key:a", "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.MarkApplied(ctx, "tenant", "did:key:a", "m1"))

	ok, err = store.IsApplied(ctx, "tenant", "did:key:a", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsApplied(ctx, "tenant", "did:key:b", "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncStoreRegistrationIdempotent(t *testing.T) {
	store := NewSyncStore(openTestDB(t))
	ctx := context.Background()

	first := &models.SyncRegistration{DID: "did:key:a", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Register(ctx, "tenant", first))
	require.NoError(t, store.Register(ctx, "tenant", &models.SyncRegistration{DID: "did:key:a", CreatedAt: first.CreatedAt.Add(time.Hour)}))

	regs, err := store.ListRegistrations(ctx, "tenant")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, first.CreatedAt.Unix(), regs[0].CreatedAt.Unix())
}
