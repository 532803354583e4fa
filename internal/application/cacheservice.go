package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// DerivedCacheKeys lists the lookup caches rebuilt from raw tables.
var DerivedCacheKeys = []string{
	model.CacheKeyFilterOptions,
	model.CacheKeyIssueLinks,
	model.CacheKeyPullRequestLinks,
}

// CacheRefreshResult reports which caches one Ensure call rebuilt.
type CacheRefreshResult struct {
	SyncRunID  string
	Refreshed  []string
	ItemCounts map[string]int
}

// CacheService keeps the derived lookup caches in step with the latest
// completed sync run.
type CacheService struct {
	syncStore  driven.SyncConfigStore
	stateStore driven.CacheStateStore
	caches     driven.DerivedCacheStore
	mu         sync.Mutex
	logger     *slog.Logger
}

// NewCacheService creates a new CacheService.
func NewCacheService(syncStore driven.SyncConfigStore, stateStore driven.CacheStateStore, caches driven.DerivedCacheStore) *CacheService {
	return &CacheService{
		syncStore:  syncStore,
		stateStore: stateStore,
		caches:     caches,
		logger:     slog.Default(),
	}
}

// Ensure rebuilds every cache whose stored sync run is not the latest one, or
// every cache when force is set. Each rebuild is atomic in the store.
func (s *CacheService) Ensure(ctx context.Context, force bool) (CacheRefreshResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.syncStore.LatestCompletedSyncRunID(ctx)
	if err != nil {
		return CacheRefreshResult{}, fmt.Errorf("latest sync run: %w", err)
	}

	res := CacheRefreshResult{SyncRunID: latest, ItemCounts: make(map[string]int)}
	for _, key := range DerivedCacheKeys {
		state, err := s.stateStore.GetCacheState(ctx, key)
		if err != nil {
			return res, fmt.Errorf("get cache state %s: %w", key, err)
		}
		if !force && !state.IsStale(latest) {
			continue
		}

		n, err := s.caches.RebuildCache(ctx, key, latest)
		if err != nil {
			return res, fmt.Errorf("rebuild cache %s: %w", key, err)
		}
		res.Refreshed = append(res.Refreshed, key)
		res.ItemCounts[key] = n
		s.logger.Info("derived cache rebuilt", "cache_key", key, "sync_run_id", latest, "items", n)
	}
	return res, nil
}

// States returns the stored state of every derived cache that has been built.
func (s *CacheService) States(ctx context.Context) ([]model.CacheState, error) {
	var out []model.CacheState
	for _, key := range DerivedCacheKeys {
		state, err := s.stateStore.GetCacheState(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get cache state %s: %w", key, err)
		}
		if state != nil {
			out = append(out, *state)
		}
	}
	return out, nil
}
