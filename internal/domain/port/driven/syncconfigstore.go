package driven

import (
	"context"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// SyncConfigStore defines the driven port for the sync pipeline's configuration
// and run history.
type SyncConfigStore interface {
	// GetSyncConfig returns the sync configuration, or a zero value when none exists.
	GetSyncConfig(ctx context.Context) (model.SyncConfig, error)
	// ListHolidayDates returns the raw holiday strings of the given calendars.
	ListHolidayDates(ctx context.Context, calendarCodes []string) ([]string, error)
	// LatestCompletedSyncRunID returns "" when no sync run has completed.
	LatestCompletedSyncRunID(ctx context.Context) (string, error)
}
