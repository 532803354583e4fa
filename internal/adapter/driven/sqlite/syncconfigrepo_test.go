package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncConfigRepo_EmptyStore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncConfigRepo(db)
	ctx := context.Background()

	cfg, err := repo.GetSyncConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.Timezone)
	assert.True(t, cfg.LastSuccessfulSyncAt.IsZero())

	runID, err := repo.LatestCompletedSyncRunID(ctx)
	require.NoError(t, err)
	assert.Empty(t, runID)
}

func TestSyncConfigRepo_GetSyncConfig(t *testing.T) {
	db := setupTestDB(t)
	mustExec(t, db, `
		INSERT INTO sync_config (id, timezone, holiday_calendar_codes, excluded_repository_ids, excluded_user_ids, target_project, last_successful_sync_at)
		VALUES (1, 'Europe/Berlin', '["de"]', '["R_9"]', '[]', 'PVT_1', ?)`, formatTime(fixtureNow))
	repo := NewSyncConfigRepo(db)

	cfg, err := repo.GetSyncConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, []string{"de"}, cfg.HolidayCalendarCodes)
	assert.Equal(t, []string{"R_9"}, cfg.ExcludedRepositoryIDs)
	assert.Nil(t, cfg.ExcludedUserIDs)
	assert.Equal(t, "PVT_1", cfg.TargetProject)
	assert.True(t, cfg.LastSuccessfulSyncAt.Equal(fixtureNow))
}

func TestSyncConfigRepo_HolidaysAndRuns(t *testing.T) {
	db := setupTestDB(t)
	mustExec(t, db, `INSERT INTO holiday_calendars (calendar_code, holiday_date) VALUES
		('de', '2026-01-01'), ('de', '2026-12-25'), ('us', '2026-07-04'), ('us', '2026-12-25')`)
	seedSyncRun(t, db, "run-1", "completed", fixtureNow.Add(-2*time.Hour))
	seedSyncRun(t, db, "run-2", "completed", fixtureNow.Add(-time.Hour))
	seedSyncRun(t, db, "run-3", "failed", fixtureNow)
	repo := NewSyncConfigRepo(db)
	ctx := context.Background()

	dates, err := repo.ListHolidayDates(ctx, []string{"de", "us"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-01", "2026-07-04", "2026-12-25"}, dates)

	none, err := repo.ListHolidayDates(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	runID, err := repo.LatestCompletedSyncRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", runID)
}
