package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// ErrUnknownCacheKey is returned by RebuildCache for keys it cannot build.
var ErrUnknownCacheKey = errors.New("unknown cache key")

// CacheStateStore defines the driven port for cache state records.
// GetCacheState returns (nil, nil) when no record exists.
type CacheStateStore interface {
	GetCacheState(ctx context.Context, key string) (*model.CacheState, error)
	PutCacheState(ctx context.Context, state model.CacheState) error
}

// DerivedCacheStore defines the driven port for the derived lookup caches.
type DerivedCacheStore interface {
	// RebuildCache replaces every row of the cache named by key and stamps its
	// state record with syncRunID, all in one transaction. Returns the number
	// of rows written.
	RebuildCache(ctx context.Context, key string, syncRunID string) (int, error)
	ListFilterOptions(ctx context.Context) ([]model.FilterOption, error)
	ListLinkedPullRequests(ctx context.Context, issueID string) ([]model.LinkedItem, error)
	ListLinkedIssues(ctx context.Context, pullRequestID string) ([]model.LinkedItem, error)
}
