package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// seedFeed writes a small mixed feed. Update order, newest first:
// PR_1, I_1, PR_2, I_2, D_1.
func seedFeed(t *testing.T, db *DB) {
	t.Helper()
	seedRepository(t, db, "R_1", "octo/app", "U_maint")
	seedRepository(t, db, "R_2", "octo/lib")

	pr1 := makeItem("PR_1", model.ItemTypePullRequest, 1)
	pr1.AuthorID = "U_alice"
	pr1.ReviewerIDs = []string{"U_bob"}
	pr1.LabelKeys = []string{"bug"}
	seedItem(t, db, pr1)

	i1 := makeItem("I_1", model.ItemTypeIssue, 2)
	i1.AssigneeIDs = []string{"U_bob"}
	i1.Title = "Crash at 100% load"
	i1.MilestoneID = "M_1"
	seedItem(t, db, i1)

	pr2 := makeItem("PR_2", model.ItemTypePullRequest, 3)
	pr2.AuthorID = "U_bob"
	pr2.Status = model.ItemStatusMerged
	pr2.MergedAt = pr2.UpdatedAt
	seedItem(t, db, pr2)

	i2 := makeItem("I_2", model.ItemTypeIssue, 4)
	i2.LabelKeys = []string{"bug", "ui"}
	seedItem(t, db, i2)

	d1 := makeItem("D_1", model.ItemTypeDiscussion, 5)
	d1.RepositoryID = "R_2"
	d1.RepositoryName = "octo/lib"
	seedItem(t, db, d1)
}

func TestActivityRepo_ListItems_SortAndPaging(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	repo := NewActivityRepo(db)
	ctx := context.Background()

	all, err := repo.ListItems(ctx, driven.ActivityQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"PR_1", "I_1", "PR_2", "I_2", "D_1"}, itemIDs(all))

	window, err := repo.ListItems(ctx, driven.ActivityQuery{
		Filter: model.ActivityFilter{Sort: model.SortUpdatedAsc},
		Offset: 1,
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"I_2", "PR_2"}, itemIDs(window))

	n, err := repo.CountItems(ctx, driven.ActivityQuery{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestActivityRepo_ListItems_MixedTimestampLayouts(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"A", "B", "C"} {
		seedItem(t, db, makeItem(id, model.ItemTypeIssue, 1))
	}
	// The sync pipeline wrote B and C in layouts that do not sort as text.
	mustExec(t, db, `UPDATE activity_items SET updated_at = ? WHERE id = ?`, "2026-03-10T12:00:00.000Z", "A")
	mustExec(t, db, `UPDATE activity_items SET updated_at = ? WHERE id = ?`, "2026-03-10 12:30:00", "B")
	mustExec(t, db, `UPDATE activity_items SET updated_at = ? WHERE id = ?`, "2026-03-10T14:45:00+02:00", "C")
	repo := NewActivityRepo(db)
	ctx := context.Background()
	at := func(hour, minute int) time.Time { return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		filter model.ActivityFilter
		want   []string
	}{
		{"newest first", model.ActivityFilter{}, []string{"C", "B", "A"}},
		{"oldest first", model.ActivityFilter{Sort: model.SortUpdatedAsc}, []string{"A", "B", "C"}},
		{"updated from", model.ActivityFilter{UpdatedFrom: at(12, 15)}, []string{"C", "B"}},
		{"updated to", model.ActivityFilter{UpdatedTo: at(12, 40)}, []string{"B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.ListItems(ctx, driven.ActivityQuery{Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(items))
		})
	}

	items, err := repo.ListItems(ctx, driven.ActivityQuery{Filter: model.ActivityFilter{Sort: model.SortUpdatedAsc}})
	require.NoError(t, err)
	assert.True(t, items[2].UpdatedAt.Equal(at(12, 45)), "offset layouts parse to UTC")
}

func TestActivityRepo_ListItems_Filters(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	seedComment(t, db, "C_1", "I_2", "U_alice", "Needs a Snapshot test", fixtureNow)
	seedComment(t, db, "C_2", "PR_1", "U_bob", "Ärger mit Überlauf im Parser", fixtureNow)
	repo := NewActivityRepo(db)
	ctx := context.Background()

	tests := []struct {
		name     string
		filter   model.ActivityFilter
		excluded []string
		want     []string
	}{
		{
			name:   "types",
			filter: model.ActivityFilter{Types: []model.ItemType{model.ItemTypeIssue}},
			want:   []string{"I_1", "I_2"},
		},
		{
			name:   "labels overlap",
			filter: model.ActivityFilter{LabelKeys: []string{"ui", "missing"}},
			want:   []string{"I_2"},
		},
		{
			name:   "milestone",
			filter: model.ActivityFilter{MilestoneIDs: []string{"M_1"}},
			want:   []string{"I_1"},
		},
		{
			name:   "base status",
			filter: model.ActivityFilter{Statuses: []string{"merged"}},
			want:   []string{"PR_2"},
		},
		{
			name:   "search matches title literally",
			filter: model.ActivityFilter{Search: "100%"},
			want:   []string{"I_1"},
		},
		{
			name:   "search matches comment bodies",
			filter: model.ActivityFilter{Search: "snapshot"},
			want:   []string{"I_2"},
		},
		{
			name:   "search folds non-ASCII case",
			filter: model.ActivityFilter{Search: "ÄRGER MIT über"},
			want:   []string{"PR_1"},
		},
		{
			name:     "excluded repositories",
			excluded: []string{"R_1"},
			want:     []string{"D_1"},
		},
		{
			name:   "maintainer",
			filter: model.ActivityFilter{People: model.PeopleFilters{MaintainerIDs: []string{"U_maint"}}},
			want:   []string{"PR_1", "I_1", "PR_2", "I_2"},
		},
		{
			name: "different people sets are ANDed",
			filter: model.ActivityFilter{People: model.PeopleFilters{
				AuthorIDs:   []string{"U_alice"},
				ReviewerIDs: []string{"U_bob"},
			}},
			want: []string{"PR_1"},
		},
		{
			name: "synced people sets are ORed",
			filter: model.ActivityFilter{People: model.PeopleFilters{
				AuthorIDs:   []string{"U_bob"},
				AssigneeIDs: []string{"U_bob"},
			}},
			want: []string{"I_1", "PR_2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.ListItems(ctx, driven.ActivityQuery{
				Filter:                tt.filter,
				ExcludedRepositoryIDs: tt.excluded,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(items))
		})
	}
}

func TestActivityRepo_ProjectStatusesAreIssueOnly(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	repo := NewActivityRepo(db)

	items, err := repo.ListItems(context.Background(), driven.ActivityQuery{
		Filter: model.ActivityFilter{Statuses: []string{"in_progress"}},
		ProjectStatusIDs: map[model.IssueStatus][]string{
			model.IssueStatusInProgress: {"I_2", "PR_1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"I_2"}, itemIDs(items))
}

func TestActivityRepo_AttentionFilters(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	repo := NewActivityRepo(db)
	ctx := context.Background()

	sets := model.AttentionSets{
		StaleOpenPRs: []model.ItemAge{{ItemID: "PR_1"}},
		BacklogIssues: []model.ItemAge{
			{ItemID: "I_1"},
			{ItemID: "I_2"},
		},
		Roles: map[string]model.ItemRoles{
			"PR_1": {Type: model.ItemTypePullRequest, AuthorID: "U_alice"},
			"I_1":  {Type: model.ItemTypeIssue, AssigneeIDs: []string{"U_bob"}},
			"I_2":  {Type: model.ItemTypeIssue, MaintainerIDs: []string{"U_maint"}},
		},
	}

	tests := []struct {
		name   string
		filter model.ActivityFilter
		want   []string
	}{
		{
			name:   "category",
			filter: model.ActivityFilter{Attention: []model.AttentionCategory{model.AttentionBacklogIssues}},
			want:   []string{"I_1", "I_2"},
		},
		{
			name:   "no attention",
			filter: model.ActivityFilter{Attention: []model.AttentionCategory{model.AttentionNone}},
			want:   []string{"PR_2", "D_1"},
		},
		{
			name: "category or no attention",
			filter: model.ActivityFilter{Attention: []model.AttentionCategory{
				model.AttentionStalePRs, model.AttentionNone,
			}},
			want: []string{"PR_1", "PR_2", "D_1"},
		},
		{
			name: "category refined by person role",
			filter: model.ActivityFilter{
				Attention: []model.AttentionCategory{model.AttentionBacklogIssues},
				People:    model.PeopleFilters{AssigneeIDs: []string{"U_bob"}},
			},
			want: []string{"I_1"},
		},
		{
			name: "empty category matches nothing",
			filter: model.ActivityFilter{
				Attention: []model.AttentionCategory{model.AttentionUnansweredMention},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.ListItems(ctx, driven.ActivityQuery{Filter: tt.filter, Attention: sets})
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(items))
		})
	}
}

func TestActivityRepo_MyTodo(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	repo := NewActivityRepo(db)
	ctx := context.Background()

	bob, err := repo.ListItems(ctx, driven.ActivityQuery{
		Filter: model.ActivityFilter{MyTodo: true, ViewerID: "U_bob"},
	})
	require.NoError(t, err)
	// Assigned open issue plus the open PR bob reviews. PR_2 is merged.
	assert.Equal(t, []string{"PR_1", "I_1"}, itemIDs(bob))

	maint, err := repo.ListItems(ctx, driven.ActivityQuery{
		Filter: model.ActivityFilter{MyTodo: true, ViewerID: "U_maint"},
		Attention: model.AttentionSets{
			UnansweredMentions: []model.MentionDetail{{SubjectID: "D_1", TargetID: "U_maint"}},
		},
	})
	require.NoError(t, err)
	// Unassigned issue in a maintained repository plus the unanswered mention.
	assert.Equal(t, []string{"I_2", "D_1"}, itemIDs(maint))
}

func TestActivityRepo_JumpIndex(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	repo := NewActivityRepo(db)

	entries, err := repo.JumpIndex(context.Background(), driven.ActivityQuery{}, 2)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].Page)
	assert.Equal(t, "PR_1", entries[0].FirstItemID)
	assert.Equal(t, 2, entries[1].Page)
	assert.Equal(t, "PR_2", entries[1].FirstItemID)
	assert.Equal(t, 3, entries[2].Page)
	assert.Equal(t, "D_1", entries[2].FirstItemID)
	assert.True(t, entries[2].SortValue.Equal(fixtureNow.Add(-5*time.Hour)))

	_, err = repo.JumpIndex(context.Background(), driven.ActivityQuery{}, 0)
	assert.Error(t, err)
}

func TestActivityRepo_GetItemAndDetails(t *testing.T) {
	db := setupTestDB(t)
	seedFeed(t, db)
	seedIssue(t, db, "I_1", "open", 1, "")
	seedComment(t, db, "C_2", "I_1", "U_bob", "second", fixtureNow)
	seedComment(t, db, "C_1", "I_1", "U_alice", "first", fixtureNow.Add(-time.Minute))
	seedUser(t, db, "U_alice", "alice", false)
	seedUser(t, db, "U_bob", "bob", false)
	repo := NewActivityRepo(db)
	ctx := context.Background()

	item, err := repo.GetItem(ctx, "I_1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, model.ItemTypeIssue, item.Type)
	assert.Equal(t, []string{"U_bob"}, item.AssigneeIDs)
	assert.Nil(t, item.ReviewerIDs)
	assert.True(t, item.ClosedAt.IsZero())

	missing, err := repo.GetItem(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	comments, err := repo.ListComments(ctx, "I_1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "C_1", comments[0].ID)

	payload, err := repo.GetRawPayload(ctx, "I_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"I_1","kind":"issue"}`, string(payload))

	none, err := repo.GetRawPayload(ctx, "D_1")
	require.NoError(t, err)
	assert.Nil(t, none)

	users, err := repo.ListUsers(ctx, []string{"U_bob", "U_alice", "U_ghost"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
