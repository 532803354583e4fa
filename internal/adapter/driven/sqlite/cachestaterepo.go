package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CacheStateStore = (*CacheStateRepo)(nil)

// CacheStateRepo stores one state record per cache key in activity_cache_state.
type CacheStateRepo struct {
	db *DB
}

// NewCacheStateRepo creates a new CacheStateRepo backed by the given DB.
func NewCacheStateRepo(db *DB) *CacheStateRepo {
	return &CacheStateRepo{db: db}
}

const upsertCacheStateQuery = `
	INSERT INTO activity_cache_state (cache_key, sync_run_id, item_count, generated_at, metadata)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		sync_run_id = excluded.sync_run_id,
		item_count = excluded.item_count,
		generated_at = excluded.generated_at,
		metadata = excluded.metadata
`

// GetCacheState returns the record for key. Returns nil, nil if none exists.
func (r *CacheStateRepo) GetCacheState(ctx context.Context, key string) (*model.CacheState, error) {
	const query = `
		SELECT cache_key, sync_run_id, item_count, generated_at, metadata
		FROM activity_cache_state
		WHERE cache_key = ?
	`

	var s model.CacheState
	var generatedAt string
	var metadata sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(
		&s.CacheKey, &s.SyncRunID, &s.ItemCount, &generatedAt, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache state %s: %w", key, err)
	}

	if s.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		s.Metadata = json.RawMessage(metadata.String)
	}
	return &s, nil
}

// PutCacheState inserts or replaces the record for state.CacheKey. A zero
// GeneratedAt is stamped with the current time.
func (r *CacheStateRepo) PutCacheState(ctx context.Context, state model.CacheState) error {
	if state.GeneratedAt.IsZero() {
		state.GeneratedAt = time.Now()
	}
	var metadata any
	if len(state.Metadata) > 0 {
		metadata = string(state.Metadata)
	}

	_, err := r.db.Writer.ExecContext(ctx, upsertCacheStateQuery,
		state.CacheKey, state.SyncRunID, state.ItemCount, formatTime(state.GeneratedAt), metadata,
	)
	if err != nil {
		return fmt.Errorf("put cache state %s: %w", state.CacheKey, err)
	}
	return nil
}
