package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

var fixtureNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// mustExec runs a seeding statement on the writer and fails the test on error.
func mustExec(t *testing.T, db *DB, query string, args ...any) {
	t.Helper()
	_, err := db.Writer.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

// makeItem returns an open item of the given type updated hoursAgo before
// fixtureNow. Callers adjust the fields they care about.
func makeItem(id string, typ model.ItemType, hoursAgo int) model.ActivityItem {
	at := fixtureNow.Add(-time.Duration(hoursAgo) * time.Hour)
	return model.ActivityItem{
		ID:             id,
		Type:           typ,
		Number:         hoursAgo + 1,
		RepositoryID:   "R_1",
		RepositoryName: "octo/app",
		AuthorID:       "U_author",
		Title:          "Item " + id,
		Status:         model.ItemStatusOpen,
		CreatedAt:      at.Add(-24 * time.Hour),
		UpdatedAt:      at,
	}
}

func seedItem(t *testing.T, db *DB, it model.ActivityItem) {
	t.Helper()
	mustExec(t, db, `
		INSERT INTO activity_items (
			id, item_type, number, repository_id, repository_name, author_id, title, body, url, status,
			assignee_ids, reviewer_ids, mentioned_ids, commenter_ids, reactor_ids, label_keys,
			issue_type_id, issue_type_name, milestone_id, milestone_title,
			tracked_issues_count, tracked_in_issues_count, created_at, updated_at, closed_at, merged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, string(it.Type), it.Number, it.RepositoryID, it.RepositoryName, it.AuthorID,
		it.Title, it.Body, it.URL, string(it.Status),
		encodeIDs(it.AssigneeIDs), encodeIDs(it.ReviewerIDs), encodeIDs(it.MentionedIDs),
		encodeIDs(it.CommenterIDs), encodeIDs(it.ReactorIDs), encodeIDs(it.LabelKeys),
		it.IssueTypeID, it.IssueTypeName, it.MilestoneID, it.MilestoneTitle,
		it.TrackedIssuesCount, it.TrackedInIssuesCount,
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt), formatTime(it.ClosedAt), formatTime(it.MergedAt),
	)
}

func seedRepository(t *testing.T, db *DB, id, name string, maintainerIDs ...string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO repositories (id, name_with_owner) VALUES (?, ?)`, id, name)
	for _, u := range maintainerIDs {
		mustExec(t, db, `INSERT INTO repository_maintainers (repository_id, user_id) VALUES (?, ?)`, id, u)
	}
}

func seedUser(t *testing.T, db *DB, id, login string, bot bool) {
	t.Helper()
	mustExec(t, db, `INSERT INTO users (id, login, is_bot) VALUES (?, ?, ?)`, id, login, boolInt(bot))
}

func seedIssue(t *testing.T, db *DB, id, state string, number int, timeline string) {
	t.Helper()
	var tl any
	if timeline != "" {
		tl = timeline
	}
	mustExec(t, db, `
		INSERT INTO issues (id, repository_id, number, author_id, title, state, created_at, updated_at, data, project_timeline)
		VALUES (?, 'R_1', ?, 'U_author', ?, ?, ?, ?, ?, ?)`,
		id, number, "Issue "+id, state,
		formatTime(fixtureNow.Add(-72*time.Hour)), formatTime(fixtureNow.Add(-time.Hour)),
		`{"id":"`+id+`","kind":"issue"}`, tl,
	)
}

func seedPullRequest(t *testing.T, db *DB, id, state string, merged bool, number int, createdAt, mergedAt time.Time) {
	t.Helper()
	mustExec(t, db, `
		INSERT INTO pull_requests (id, repository_id, number, author_id, title, state, merged, created_at, updated_at, merged_at, data)
		VALUES (?, 'R_1', ?, 'U_author', ?, ?, ?, ?, ?, ?, ?)`,
		id, number, "PR "+id, state, boolInt(merged),
		formatTime(createdAt), formatTime(createdAt), formatTime(mergedAt),
		`{"id":"`+id+`","kind":"pull_request"}`,
	)
}

func seedLink(t *testing.T, db *DB, prID, issueID string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO pull_request_issues (pull_request_id, issue_id) VALUES (?, ?)`, prID, issueID)
}

func seedComment(t *testing.T, db *DB, id, subjectID, authorID, body string, at time.Time) {
	t.Helper()
	mustExec(t, db, `
		INSERT INTO comments (id, subject_id, author_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, subjectID, authorID, body, formatTime(at), formatTime(at),
	)
}

func seedSyncRun(t *testing.T, db *DB, id, status string, completedAt time.Time) {
	t.Helper()
	mustExec(t, db, `INSERT INTO sync_runs (id, status, started_at, completed_at) VALUES (?, ?, ?, ?)`,
		id, status, formatTime(completedAt.Add(-time.Minute)), formatTime(completedAt))
}

// itemIDs returns the IDs of items in order.
func itemIDs(items []model.ActivityItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}
