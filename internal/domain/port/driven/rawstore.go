package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// RawStore defines the driven port for reading the raw entity tables written
// by the sync pipeline. All methods are read-only.
type RawStore interface {
	ListOpenPullRequests(ctx context.Context) ([]model.PullRequestRecord, error)
	// ListIssues returns issues with their raw project timeline. When openOnly
	// is false closed issues are included; a non-nil ids limits the result to
	// those issues.
	ListIssues(ctx context.Context, openOnly bool, ids []string) ([]model.IssueRecord, error)
	ListPendingReviewRequests(ctx context.Context) ([]model.ReviewRequestRecord, error)
	// ListCommentsOnOpenItems returns comments created at or after since on
	// items that are still open.
	ListCommentsOnOpenItems(ctx context.Context, since time.Time) ([]model.CommentRecord, error)
	// ListUserResponses returns, per subject and user, the latest comment,
	// review or reaction (on the subject or one of its comments).
	ListUserResponses(ctx context.Context) ([]model.UserResponse, error)
	ListAllUsers(ctx context.Context) ([]model.User, error)
	// ListRepositoryMaintainers maps repository ID to maintainer user IDs.
	ListRepositoryMaintainers(ctx context.Context) (map[string][]string, error)
}
