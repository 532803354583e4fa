package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivityStore = (*ActivityRepo)(nil)

// ActivityRepo is the SQLite implementation of the ActivityStore port. It only
// reads; activity_items is maintained by the sync pipeline.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates a new ActivityRepo backed by the given DB.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

const activityColumns = `
	ai.id, ai.item_type, ai.number, ai.repository_id, ai.repository_name, ai.author_id,
	ai.title, ai.body, ai.url, ai.status,
	ai.assignee_ids, ai.reviewer_ids, ai.mentioned_ids, ai.commenter_ids, ai.reactor_ids, ai.label_keys,
	ai.issue_type_id, ai.issue_type_name, ai.milestone_id, ai.milestone_title,
	ai.tracked_issues_count, ai.tracked_in_issues_count,
	ai.created_at, ai.updated_at, ai.closed_at, ai.merged_at`

func predicateFor(q driven.ActivityQuery) Predicate {
	return BuildActivityPredicate(q.Filter, q.Attention, q.ProjectStatusIDs, q.ExcludedRepositoryIDs)
}

// ListItems returns one window of the filtered feed in the filter's sort order.
func (r *ActivityRepo) ListItems(ctx context.Context, q driven.ActivityQuery) ([]model.ActivityItem, error) {
	p := predicateFor(q)
	order, _ := orderBy(q.Filter.Sort)
	query := `SELECT ` + activityColumns + `
		FROM activity_items ai
		WHERE ` + p.SQL() + `
		ORDER BY ` + order + `
		LIMIT ? OFFSET ?`

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args := append(append([]any{}, p.Args...), limit, q.Offset)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity items: %w", err)
	}
	defer rows.Close()

	var items []model.ActivityItem
	for rows.Next() {
		item, err := scanActivityItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity items: %w", err)
	}

	return items, nil
}

// CountItems returns the number of items matching the filter.
func (r *ActivityRepo) CountItems(ctx context.Context, q driven.ActivityQuery) (int, error) {
	p := predicateFor(q)
	query := `SELECT COUNT(*) FROM activity_items ai WHERE ` + p.SQL()

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, p.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity items: %w", err)
	}
	return n, nil
}

// JumpIndex numbers the filtered feed with one window-function pass and keeps
// the first row of every page.
func (r *ActivityRepo) JumpIndex(ctx context.Context, q driven.ActivityQuery, perPage int) ([]model.JumpEntry, error) {
	if perPage <= 0 {
		return nil, fmt.Errorf("jump index: per page must be positive, got %d", perPage)
	}

	p := predicateFor(q)
	order, column := orderBy(q.Filter.Sort)
	query := `
		SELECT rn / ? + 1, id, sort_value FROM (
			SELECT ai.id AS id, ` + column + ` AS sort_value,
			       ROW_NUMBER() OVER (ORDER BY ` + order + `) - 1 AS rn
			FROM activity_items ai
			WHERE ` + p.SQL() + `
		)
		WHERE rn % ? = 0
		ORDER BY rn`

	args := append([]any{perPage}, p.Args...)
	args = append(args, perPage)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jump index: %w", err)
	}
	defer rows.Close()

	var entries []model.JumpEntry
	for rows.Next() {
		var e model.JumpEntry
		var sortValue string
		if err := rows.Scan(&e.Page, &e.FirstItemID, &sortValue); err != nil {
			return nil, fmt.Errorf("scan jump entry: %w", err)
		}
		if e.SortValue, err = parseTime(sortValue); err != nil {
			return nil, fmt.Errorf("parse sort value: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jump index: %w", err)
	}

	return entries, nil
}

// GetItem returns a single item. Returns nil, nil if it does not exist.
func (r *ActivityRepo) GetItem(ctx context.Context, id string) (*model.ActivityItem, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_items ai WHERE ai.id = ?`

	item, err := scanActivityItem(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity item %s: %w", id, err)
	}
	return item, nil
}

// ListComments returns an item's comments oldest first.
func (r *ActivityRepo) ListComments(ctx context.Context, subjectID string) ([]model.ItemComment, error) {
	const query = `
		SELECT id, subject_id, author_id, body, created_at, updated_at
		FROM comments
		WHERE subject_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query comments for %s: %w", subjectID, err)
	}
	defer rows.Close()

	var comments []model.ItemComment
	for rows.Next() {
		var c model.ItemComment
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.AuthorID, &c.Body, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// GetRawPayload returns the stored REST payload of an issue or pull request.
func (r *ActivityRepo) GetRawPayload(ctx context.Context, id string) (json.RawMessage, error) {
	const query = `
		SELECT data FROM issues WHERE id = ?
		UNION ALL
		SELECT data FROM pull_requests WHERE id = ?
		LIMIT 1
	`

	var data sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, query, id, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get raw payload %s: %w", id, err)
	}
	return json.RawMessage(data.String), nil
}

// GetProjectOverride returns the manual project fields of an issue, or nil.
func (r *ActivityRepo) GetProjectOverride(ctx context.Context, issueID string) (*model.ProjectOverride, error) {
	const query = `
		SELECT issue_id, priority, weight, start_date, target_date, updated_at
		FROM activity_issue_project_overrides
		WHERE issue_id = ?
	`

	var o model.ProjectOverride
	var weight sql.NullInt64
	var updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, issueID).Scan(
		&o.IssueID, &o.Priority, &weight, &o.StartDate, &o.TargetDate, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project override %s: %w", issueID, err)
	}
	if weight.Valid {
		w := int(weight.Int64)
		o.Weight = &w
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &o, nil
}

// ListUsers returns the users with the given IDs, ordered by login.
func (r *ActivityRepo) ListUsers(ctx context.Context, ids []string) ([]model.User, error) {
	const query = `
		SELECT id, login, name, is_bot
		FROM users
		WHERE id IN (SELECT value FROM json_each(?))
		ORDER BY login
	`
	return queryUsers(ctx, r.db.Reader, query, encodeIDs(ids))
}

func queryUsers(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var isBot int
		if err := rows.Scan(&u.ID, &u.Login, &u.Name, &isBot); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsBot = isBot == 1
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func scanActivityItem(s scanner) (*model.ActivityItem, error) {
	var item model.ActivityItem
	var itemType, status string
	var assignees, reviewers, mentioned, commenters, reactors, labels sql.NullString
	var createdAt, updatedAt string
	var closedAt, mergedAt sql.NullString

	err := s.Scan(
		&item.ID, &itemType, &item.Number, &item.RepositoryID, &item.RepositoryName, &item.AuthorID,
		&item.Title, &item.Body, &item.URL, &status,
		&assignees, &reviewers, &mentioned, &commenters, &reactors, &labels,
		&item.IssueTypeID, &item.IssueTypeName, &item.MilestoneID, &item.MilestoneTitle,
		&item.TrackedIssuesCount, &item.TrackedInIssuesCount,
		&createdAt, &updatedAt, &closedAt, &mergedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Type = model.ItemType(itemType)
	item.Status = model.ItemStatus(status)
	item.AssigneeIDs = decodeIDs(assignees)
	item.ReviewerIDs = decodeIDs(reviewers)
	item.MentionedIDs = decodeIDs(mentioned)
	item.CommenterIDs = decodeIDs(commenters)
	item.ReactorIDs = decodeIDs(reactors)
	item.LabelKeys = decodeIDs(labels)

	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if item.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	if item.MergedAt, err = parseNullTime(mergedAt); err != nil {
		return nil, fmt.Errorf("parse merged_at: %w", err)
	}

	return &item, nil
}
