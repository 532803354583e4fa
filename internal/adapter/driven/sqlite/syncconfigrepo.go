package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SyncConfigStore = (*SyncConfigRepo)(nil)

// SyncConfigRepo reads the sync pipeline's single-row configuration, its run
// history and the holiday calendars.
type SyncConfigRepo struct {
	db *DB
}

// NewSyncConfigRepo creates a new SyncConfigRepo backed by the given DB.
func NewSyncConfigRepo(db *DB) *SyncConfigRepo {
	return &SyncConfigRepo{db: db}
}

// GetSyncConfig returns the configuration row, or a zero value when the sync
// pipeline has not written one yet.
func (r *SyncConfigRepo) GetSyncConfig(ctx context.Context) (model.SyncConfig, error) {
	const query = `
		SELECT timezone, holiday_calendar_codes, excluded_repository_ids, excluded_user_ids,
		       target_project, last_successful_sync_at
		FROM sync_config
		WHERE id = 1
	`

	var cfg model.SyncConfig
	var codes, repos, users, lastSync sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(
		&cfg.Timezone, &codes, &repos, &users, &cfg.TargetProject, &lastSync,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncConfig{}, nil
	}
	if err != nil {
		return model.SyncConfig{}, fmt.Errorf("get sync config: %w", err)
	}

	cfg.HolidayCalendarCodes = decodeIDs(codes)
	cfg.ExcludedRepositoryIDs = decodeIDs(repos)
	cfg.ExcludedUserIDs = decodeIDs(users)
	if cfg.LastSuccessfulSyncAt, err = parseNullTime(lastSync); err != nil {
		return model.SyncConfig{}, fmt.Errorf("parse last_successful_sync_at: %w", err)
	}
	return cfg, nil
}

// ListHolidayDates returns the raw holiday strings of the given calendars.
func (r *SyncConfigRepo) ListHolidayDates(ctx context.Context, calendarCodes []string) ([]string, error) {
	if len(calendarCodes) == 0 {
		return nil, nil
	}

	const query = `
		SELECT DISTINCT holiday_date
		FROM holiday_calendars
		WHERE calendar_code IN (SELECT value FROM json_each(?))
		ORDER BY holiday_date
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, encodeIDs(calendarCodes))
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holidays: %w", err)
	}

	return dates, nil
}

// LatestCompletedSyncRunID returns the most recently completed sync run, or ""
// when no run has completed.
func (r *SyncConfigRepo) LatestCompletedSyncRunID(ctx context.Context) (string, error) {
	const query = `
		SELECT id FROM sync_runs
		WHERE status = 'completed' AND completed_at IS NOT NULL
		ORDER BY completed_at DESC, id DESC
		LIMIT 1
	`

	var id string
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest sync run: %w", err)
	}
	return id, nil
}
