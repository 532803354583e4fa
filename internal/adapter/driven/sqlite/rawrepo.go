package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RawStore = (*RawRepo)(nil)

// RawRepo reads the raw entity tables the sync pipeline writes. Assignee and
// reviewer lists come from the materialized activity row of the same item.
type RawRepo struct {
	db *DB
}

// NewRawRepo creates a new RawRepo backed by the given DB.
func NewRawRepo(db *DB) *RawRepo {
	return &RawRepo{db: db}
}

// ListOpenPullRequests returns every open pull request.
func (r *RawRepo) ListOpenPullRequests(ctx context.Context) ([]model.PullRequestRecord, error) {
	const query = `
		SELECT pr.id, pr.repository_id, pr.author_id,
		       COALESCE(ai.assignee_ids, '[]'), COALESCE(ai.reviewer_ids, '[]'),
		       pr.state, pr.merged, pr.created_at, pr.updated_at, pr.closed_at, pr.merged_at
		FROM pull_requests pr
		LEFT JOIN activity_items ai ON ai.id = pr.id
		WHERE pr.state = 'open'
		ORDER BY pr.created_at, pr.id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query open pull requests: %w", err)
	}
	defer rows.Close()

	var prs []model.PullRequestRecord
	for rows.Next() {
		var pr model.PullRequestRecord
		var assignees, reviewers sql.NullString
		var merged int
		var createdAt, updatedAt string
		var closedAt, mergedAt sql.NullString
		if err := rows.Scan(
			&pr.ID, &pr.RepositoryID, &pr.AuthorID, &assignees, &reviewers,
			&pr.State, &merged, &createdAt, &updatedAt, &closedAt, &mergedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		pr.AssigneeIDs = decodeIDs(assignees)
		pr.ReviewerIDs = decodeIDs(reviewers)
		pr.Merged = merged == 1
		if pr.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if pr.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		if pr.ClosedAt, err = parseNullTime(closedAt); err != nil {
			return nil, fmt.Errorf("parse closed_at: %w", err)
		}
		if pr.MergedAt, err = parseNullTime(mergedAt); err != nil {
			return nil, fmt.Errorf("parse merged_at: %w", err)
		}
		prs = append(prs, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, nil
}

// ListIssues returns issues with their raw project timeline.
func (r *RawRepo) ListIssues(ctx context.Context, openOnly bool, ids []string) ([]model.IssueRecord, error) {
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT i.id, i.repository_id, i.author_id, COALESCE(ai.assignee_ids, '[]'),
		       i.state, i.created_at, i.updated_at, i.closed_at, i.project_timeline
		FROM issues i
		LEFT JOIN activity_items ai ON ai.id = i.id
		WHERE (? = 0 OR i.state = 'open')
		  AND (? = 0 OR i.id IN (SELECT value FROM json_each(?)))
		ORDER BY i.created_at, i.id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, boolInt(openOnly), boolInt(ids != nil), encodeIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []model.IssueRecord
	for rows.Next() {
		var issue model.IssueRecord
		var assignees, closedAt, timeline sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(
			&issue.ID, &issue.RepositoryID, &issue.AuthorID, &assignees,
			&issue.State, &createdAt, &updatedAt, &closedAt, &timeline,
		); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.AssigneeIDs = decodeIDs(assignees)
		if timeline.Valid && timeline.String != "" {
			issue.ProjectTimeline = json.RawMessage(timeline.String)
		}
		if issue.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		if issue.ClosedAt, err = parseNullTime(closedAt); err != nil {
			return nil, fmt.Errorf("parse closed_at: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}

	return issues, nil
}

// ListPendingReviewRequests returns review requests that were not removed.
// Whether the reviewer has responded since is decided by the attention engine.
func (r *RawRepo) ListPendingReviewRequests(ctx context.Context) ([]model.ReviewRequestRecord, error) {
	const query = `
		SELECT rr.id, rr.pull_request_id, rr.reviewer_id, rr.requested_at
		FROM review_requests rr
		JOIN pull_requests pr ON pr.id = rr.pull_request_id
		WHERE rr.removed_at IS NULL AND pr.state = 'open'
		ORDER BY rr.requested_at, rr.id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query review requests: %w", err)
	}
	defer rows.Close()

	var requests []model.ReviewRequestRecord
	for rows.Next() {
		var rr model.ReviewRequestRecord
		var requestedAt string
		if err := rows.Scan(&rr.ID, &rr.PullRequestID, &rr.ReviewerID, &requestedAt); err != nil {
			return nil, fmt.Errorf("scan review request: %w", err)
		}
		if rr.RequestedAt, err = parseTime(requestedAt); err != nil {
			return nil, fmt.Errorf("parse requested_at: %w", err)
		}
		requests = append(requests, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review requests: %w", err)
	}

	return requests, nil
}

// ListCommentsOnOpenItems returns comments on open items created at or after
// since. A zero since returns all of them.
func (r *RawRepo) ListCommentsOnOpenItems(ctx context.Context, since time.Time) ([]model.CommentRecord, error) {
	const query = `
		SELECT c.id, c.subject_id, c.author_id, c.body, c.created_at
		FROM comments c
		JOIN activity_items ai ON ai.id = c.subject_id
		WHERE ai.status = 'open' AND (? IS NULL OR julianday(c.created_at) >= julianday(?))
		ORDER BY julianday(c.created_at), c.id
	`

	sinceArg := formatTime(since)
	rows, err := r.db.Reader.QueryContext(ctx, query, sinceArg, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []model.CommentRecord
	for rows.Next() {
		var c model.CommentRecord
		var createdAt string
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.AuthorID, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// ListUserResponses folds comments, reviews and reactions into the latest
// response time per subject and user.
func (r *RawRepo) ListUserResponses(ctx context.Context) ([]model.UserResponse, error) {
	const query = `
		SELECT subject_id, user_id, MAX(at) FROM (
			SELECT subject_id, author_id AS user_id, created_at AS at FROM comments
			UNION ALL
			SELECT pull_request_id, author_id, submitted_at FROM reviews
			UNION ALL
			SELECT subject_id, user_id, created_at FROM reactions
		)
		GROUP BY subject_id, user_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query user responses: %w", err)
	}
	defer rows.Close()

	var responses []model.UserResponse
	for rows.Next() {
		var resp model.UserResponse
		var at string
		if err := rows.Scan(&resp.SubjectID, &resp.UserID, &at); err != nil {
			return nil, fmt.Errorf("scan user response: %w", err)
		}
		if resp.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse response time: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user responses: %w", err)
	}

	return responses, nil
}

// ListAllUsers returns every known user ordered by login.
func (r *RawRepo) ListAllUsers(ctx context.Context) ([]model.User, error) {
	return queryUsers(ctx, r.db.Reader, `SELECT id, login, name, is_bot FROM users ORDER BY login`)
}

// ListRepositoryMaintainers maps repository ID to maintainer user IDs.
func (r *RawRepo) ListRepositoryMaintainers(ctx context.Context) (map[string][]string, error) {
	const query = `SELECT repository_id, user_id FROM repository_maintainers ORDER BY repository_id, user_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query repository maintainers: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var repoID, userID string
		if err := rows.Scan(&repoID, &userID); err != nil {
			return nil, fmt.Errorf("scan repository maintainer: %w", err)
		}
		out[repoID] = append(out[repoID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repository maintainers: %w", err)
	}

	return out, nil
}
