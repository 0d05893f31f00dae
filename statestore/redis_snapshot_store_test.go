package statestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/logger"
)

func TestNewRedisSnapshotStoreRejectsEmptyURL(t *testing.T) {
	_, err := NewRedisSnapshotStore(RedisSnapshotStoreOptions{})
	require.Error(t, err)
}

func TestNewRedisSnapshotStoreRejectsInvalidURL(t *testing.T) {
	_, err := NewRedisSnapshotStore(RedisSnapshotStoreOptions{RedisURL: "not-a-redis-url"})
	require.Error(t, err)
}

// TestRedisSnapshotStoreSaveAndLoad exercises a live Redis connection and is
// skipped in short mode, the same convention used for connection-dependent
// cases elsewhere in this package.
func TestRedisSnapshotStoreSaveAndLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode (Redis connection required)")
	}

	store, err := NewRedisSnapshotStore(RedisSnapshotStoreOptions{
		RedisURL: "redis://localhost:6379",
		Logger:   logger.NoOpLogger{},
	})
	if err != nil {
		t.Skipf("no Redis available at localhost:6379: %v", err)
	}
	defer store.Close()

	cfg := config.Default()
	src := New(cfg, logger.NoOpLogger{})
	tx, err := src.BeginTransaction("t")
	require.NoError(t, err)
	trackID, err := src.CreateTrack("Drums", "", nil, tx)
	require.NoError(t, err)
	_, _, err = src.CreateRegion("intro", trackID, 0, 32, "", tx)
	require.NoError(t, err)
	require.NoError(t, src.Commit(tx))

	ctx := context.Background()
	compositionID := "test-composition-redis-snapshot"
	defer store.Delete(ctx, compositionID)

	require.NoError(t, store.Save(ctx, compositionID, src))

	dst := New(cfg, logger.NoOpLogger{})
	found, err := store.Load(ctx, compositionID, dst)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, src.Summarize(), dst.Summarize())
}

func TestRedisSnapshotStoreLoadMissingKeyReturnsFalse(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode (Redis connection required)")
	}

	store, err := NewRedisSnapshotStore(RedisSnapshotStoreOptions{
		RedisURL: "redis://localhost:6379",
		Logger:   logger.NoOpLogger{},
	})
	if err != nil {
		t.Skipf("no Redis available at localhost:6379: %v", err)
	}
	defer store.Close()

	dst := New(config.Default(), logger.NoOpLogger{})
	found, err := store.Load(context.Background(), "composition-that-does-not-exist", dst)
	require.NoError(t, err)
	require.False(t, found)
}
