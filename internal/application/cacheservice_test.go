package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

func newCacheServiceFixture(latest string) (*CacheService, *fakeDerivedStore, *fakeCacheStateStore, *fakeSyncStore) {
	state := newFakeCacheStateStore()
	derived := &fakeDerivedStore{state: state}
	syncStore := &fakeSyncStore{latestRun: latest}
	return NewCacheService(syncStore, state, derived), derived, state, syncStore
}

func TestCacheService_EnsureOnlyRebuildsStale(t *testing.T) {
	svc, derived, state, _ := newCacheServiceFixture("run-2")
	ctx := context.Background()
	require.NoError(t, state.PutCacheState(ctx, model.CacheState{CacheKey: model.CacheKeyIssueLinks, SyncRunID: "run-2"}))
	require.NoError(t, state.PutCacheState(ctx, model.CacheState{CacheKey: model.CacheKeyFilterOptions, SyncRunID: "run-1"}))

	res, err := svc.Ensure(ctx, false)

	require.NoError(t, err)
	assert.Equal(t, "run-2", res.SyncRunID)
	assert.Equal(t, []string{model.CacheKeyFilterOptions, model.CacheKeyPullRequestLinks}, res.Refreshed)
	assert.Equal(t, res.Refreshed, derived.rebuilds)

	// Second call finds everything current.
	res, err = svc.Ensure(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, res.Refreshed)
}

func TestCacheService_EnsureErrors(t *testing.T) {
	t.Run("sync store", func(t *testing.T) {
		svc, derived, _, syncStore := newCacheServiceFixture("run-1")
		syncStore.err = errors.New("db gone")

		_, err := svc.Ensure(context.Background(), false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "latest sync run")
		assert.Empty(t, derived.rebuilds)
	})

	t.Run("rebuild", func(t *testing.T) {
		svc, derived, state, _ := newCacheServiceFixture("run-1")
		derived.rebuildErr = errors.New("disk full")

		_, err := svc.Ensure(context.Background(), false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "rebuild cache "+model.CacheKeyFilterOptions)
		st, getErr := state.GetCacheState(context.Background(), model.CacheKeyFilterOptions)
		require.NoError(t, getErr)
		assert.Nil(t, st, "a failed rebuild leaves no state record")
	})
}

func TestCacheService_States(t *testing.T) {
	svc, _, state, _ := newCacheServiceFixture("run-1")
	ctx := context.Background()

	states, err := svc.States(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	require.NoError(t, state.PutCacheState(ctx, model.CacheState{CacheKey: model.CacheKeyPullRequestLinks, SyncRunID: "run-1", ItemCount: 4}))
	require.NoError(t, state.PutCacheState(ctx, model.CacheState{CacheKey: model.CacheKeyStatusAutomation, SyncRunID: "run-1"}))

	states, err = svc.States(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1, "only derived lookup caches are reported")
	assert.Equal(t, model.CacheKeyPullRequestLinks, states[0].CacheKey)
	assert.Equal(t, 4, states[0].ItemCount)
}
