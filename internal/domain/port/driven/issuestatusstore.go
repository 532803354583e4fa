package driven

import (
	"context"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// IssueStatusStore defines the driven port for the derived issue status history.
// The history is append-only; inserts never duplicate an existing
// (issue, status, source, occurred_at) row.
type IssueStatusStore interface {
	// ListActivityEvents returns activity-sourced events, optionally limited to
	// issueIDs (nil means all issues), ordered by occurrence.
	ListActivityEvents(ctx context.Context, issueIDs []string) ([]model.IssueStatusEvent, error)
	// ListPullRequestIssueLinks returns every PR-to-issue link ordered by PR creation.
	ListPullRequestIssueLinks(ctx context.Context) ([]model.PullRequestIssueLink, error)
	// InsertInProgressEvents appends in_progress events for issues that have no
	// activity in_progress event yet. Returns the number of rows inserted.
	InsertInProgressEvents(ctx context.Context, events []model.IssueStatusEvent) (int, error)
	// InsertDoneEvents appends done events that are not already present.
	InsertDoneEvents(ctx context.Context, events []model.IssueStatusEvent) (int, error)
}
