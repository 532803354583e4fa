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
var _ driven.DerivedCacheStore = (*DerivedCacheRepo)(nil)

// DerivedCacheRepo rebuilds and reads the lookup caches derived from raw
// tables: filter options and both directions of the issue/PR link map.
type DerivedCacheRepo struct {
	db  *DB
	now func() time.Time
}

// NewDerivedCacheRepo creates a new DerivedCacheRepo backed by the given DB.
func NewDerivedCacheRepo(db *DB) *DerivedCacheRepo {
	return &DerivedCacheRepo{db: db, now: time.Now}
}

// cacheRebuild is the delete + insert-select pair of one cache.
type cacheRebuild struct {
	clear    string
	populate string
}

var cacheRebuilds = map[string]cacheRebuild{
	model.CacheKeyFilterOptions: {
		clear: `DELETE FROM activity_filter_options`,
		populate: `
			INSERT INTO activity_filter_options (kind, value, label, item_count)
			SELECT 'repository', r.id, r.name_with_owner,
			       (SELECT COUNT(*) FROM activity_items ai WHERE ai.repository_id = r.id)
			FROM repositories r
			UNION ALL
			SELECT 'label', j.value, j.value, COUNT(*)
			FROM activity_items ai, json_each(ai.label_keys) j
			GROUP BY j.value
			UNION ALL
			SELECT 'user', u.id, u.login,
			       (SELECT COUNT(*) FROM activity_items ai WHERE ai.author_id = u.id)
			FROM users u
			WHERE u.is_bot = 0
			UNION ALL
			SELECT 'issue_type', ai.issue_type_id, MAX(ai.issue_type_name), COUNT(*)
			FROM activity_items ai
			WHERE ai.issue_type_id <> ''
			GROUP BY ai.issue_type_id
			UNION ALL
			SELECT 'milestone', ai.milestone_id, MAX(ai.milestone_title), COUNT(*)
			FROM activity_items ai
			WHERE ai.milestone_id <> ''
			GROUP BY ai.milestone_id
		`,
	},
	model.CacheKeyIssueLinks: {
		clear: `DELETE FROM activity_issue_links`,
		populate: `
			INSERT INTO activity_issue_links (issue_id, pull_request_id, pr_number, pr_repository_id, pr_state)
			SELECT pri.issue_id, pr.id, pr.number, pr.repository_id,
			       CASE WHEN pr.merged = 1 THEN 'merged' ELSE pr.state END
			FROM pull_request_issues pri
			JOIN pull_requests pr ON pr.id = pri.pull_request_id
		`,
	},
	model.CacheKeyPullRequestLinks: {
		clear: `DELETE FROM activity_pull_request_links`,
		populate: `
			INSERT INTO activity_pull_request_links (pull_request_id, issue_id, issue_number, issue_repository_id, issue_state)
			SELECT pri.pull_request_id, i.id, i.number, i.repository_id, i.state
			FROM pull_request_issues pri
			JOIN issues i ON i.id = pri.issue_id
		`,
	},
}

// RebuildCache replaces every row of one cache and stamps its state record in
// a single writer transaction, so readers see the old or the new generation.
func (r *DerivedCacheRepo) RebuildCache(ctx context.Context, key, syncRunID string) (int, error) {
	rebuild, ok := cacheRebuilds[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", driven.ErrUnknownCacheKey, key)
	}

	var count int
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, rebuild.clear); err != nil {
			return fmt.Errorf("clear cache %s: %w", key, err)
		}
		res, err := tx.ExecContext(ctx, rebuild.populate)
		if err != nil {
			return fmt.Errorf("populate cache %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		count = int(n)

		if _, err := tx.ExecContext(ctx, upsertCacheStateQuery,
			key, syncRunID, count, formatTime(r.now()), nil,
		); err != nil {
			return fmt.Errorf("stamp cache state %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListFilterOptions returns every option grouped by kind and ordered by label.
func (r *DerivedCacheRepo) ListFilterOptions(ctx context.Context) ([]model.FilterOption, error) {
	const query = `
		SELECT kind, value, label, item_count
		FROM activity_filter_options
		ORDER BY kind, lower(label), value
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query filter options: %w", err)
	}
	defer rows.Close()

	var options []model.FilterOption
	for rows.Next() {
		var o model.FilterOption
		var kind string
		if err := rows.Scan(&kind, &o.Value, &o.Label, &o.ItemCount); err != nil {
			return nil, fmt.Errorf("scan filter option: %w", err)
		}
		o.Kind = model.FilterOptionKind(kind)
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter options: %w", err)
	}

	return options, nil
}

// ListLinkedPullRequests returns the pull requests linked to an issue.
func (r *DerivedCacheRepo) ListLinkedPullRequests(ctx context.Context, issueID string) ([]model.LinkedItem, error) {
	const query = `
		SELECT pull_request_id, pr_number, pr_repository_id, pr_state
		FROM activity_issue_links
		WHERE issue_id = ?
		ORDER BY pr_number
	`
	return r.queryLinks(ctx, query, issueID)
}

// ListLinkedIssues returns the issues a pull request references.
func (r *DerivedCacheRepo) ListLinkedIssues(ctx context.Context, pullRequestID string) ([]model.LinkedItem, error) {
	const query = `
		SELECT issue_id, issue_number, issue_repository_id, issue_state
		FROM activity_pull_request_links
		WHERE pull_request_id = ?
		ORDER BY issue_number
	`
	return r.queryLinks(ctx, query, pullRequestID)
}

func (r *DerivedCacheRepo) queryLinks(ctx context.Context, query, id string) ([]model.LinkedItem, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query links for %s: %w", id, err)
	}
	defer rows.Close()

	var links []model.LinkedItem
	for rows.Next() {
		var l model.LinkedItem
		if err := rows.Scan(&l.ID, &l.Number, &l.RepositoryID, &l.State); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}
