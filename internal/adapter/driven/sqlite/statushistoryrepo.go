package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IssueStatusStore = (*StatusHistoryRepo)(nil)

// StatusHistoryRepo is the SQLite implementation of the IssueStatusStore port
// over activity_issue_status_history.
type StatusHistoryRepo struct {
	db  *DB
	now func() time.Time
}

// NewStatusHistoryRepo creates a new StatusHistoryRepo backed by the given DB.
func NewStatusHistoryRepo(db *DB) *StatusHistoryRepo {
	return &StatusHistoryRepo{db: db, now: time.Now}
}

// ListActivityEvents returns activity-sourced events in occurrence order.
func (r *StatusHistoryRepo) ListActivityEvents(ctx context.Context, issueIDs []string) ([]model.IssueStatusEvent, error) {
	if issueIDs != nil && len(issueIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT issue_id, status, source, occurred_at
		FROM activity_issue_status_history
		WHERE source = ?
		  AND (? = 0 OR issue_id IN (SELECT value FROM json_each(?)))
		ORDER BY issue_id, occurred_at, id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query,
		string(model.StatusSourceActivity), boolInt(issueIDs != nil), encodeIDs(issueIDs))
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var events []model.IssueStatusEvent
	for rows.Next() {
		var ev model.IssueStatusEvent
		var status, source, occurredAt string
		if err := rows.Scan(&ev.IssueID, &status, &source, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		ev.Status = model.IssueStatus(status)
		ev.Source = model.StatusSource(source)
		if ev.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return events, nil
}

// ListPullRequestIssueLinks returns every PR-to-issue link ordered by PR creation.
func (r *StatusHistoryRepo) ListPullRequestIssueLinks(ctx context.Context) ([]model.PullRequestIssueLink, error) {
	const query = `
		SELECT pri.pull_request_id, pri.issue_id, pr.created_at, pr.merged, pr.merged_at
		FROM pull_request_issues pri
		JOIN pull_requests pr ON pr.id = pri.pull_request_id
		ORDER BY pr.created_at, pr.id, pri.issue_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pull request links: %w", err)
	}
	defer rows.Close()

	var links []model.PullRequestIssueLink
	for rows.Next() {
		var l model.PullRequestIssueLink
		var createdAt string
		var merged int
		var mergedAt sql.NullString
		if err := rows.Scan(&l.PullRequestID, &l.IssueID, &createdAt, &merged, &mergedAt); err != nil {
			return nil, fmt.Errorf("scan pull request link: %w", err)
		}
		l.Merged = merged == 1
		if l.PRCreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if l.MergedAt, err = parseNullTime(mergedAt); err != nil {
			return nil, fmt.Errorf("parse merged_at: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull request links: %w", err)
	}

	return links, nil
}

// InsertInProgressEvents appends in_progress events for issues that have no
// activity in_progress event yet. The batch commits as one transaction.
func (r *StatusHistoryRepo) InsertInProgressEvents(ctx context.Context, events []model.IssueStatusEvent) (int, error) {
	const query = `
		INSERT OR IGNORE INTO activity_issue_status_history (issue_id, status, source, occurred_at, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM activity_issue_status_history
			WHERE issue_id = ? AND status = ? AND source = ?
		)
	`
	return r.insert(ctx, events, func(tx *sql.Tx, ev model.IssueStatusEvent, createdAt any) (sql.Result, error) {
		return tx.ExecContext(ctx, query,
			ev.IssueID, string(ev.Status), string(ev.Source), formatTime(ev.OccurredAt), createdAt,
			ev.IssueID, string(model.IssueStatusInProgress), string(model.StatusSourceActivity),
		)
	})
}

// InsertDoneEvents appends done events that are not already present.
func (r *StatusHistoryRepo) InsertDoneEvents(ctx context.Context, events []model.IssueStatusEvent) (int, error) {
	const query = `
		INSERT OR IGNORE INTO activity_issue_status_history (issue_id, status, source, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	return r.insert(ctx, events, func(tx *sql.Tx, ev model.IssueStatusEvent, createdAt any) (sql.Result, error) {
		return tx.ExecContext(ctx, query,
			ev.IssueID, string(ev.Status), string(ev.Source), formatTime(ev.OccurredAt), createdAt,
		)
	})
}

func (r *StatusHistoryRepo) insert(
	ctx context.Context,
	events []model.IssueStatusEvent,
	exec func(tx *sql.Tx, ev model.IssueStatusEvent, createdAt any) (sql.Result, error),
) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	createdAt := formatTime(r.now())
	inserted := 0
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, ev := range events {
			if ev.OccurredAt.IsZero() {
				continue
			}
			res, err := exec(tx, ev, createdAt)
			if err != nil {
				return fmt.Errorf("insert %s event for issue %s: %w", ev.Status, ev.IssueID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("check rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
