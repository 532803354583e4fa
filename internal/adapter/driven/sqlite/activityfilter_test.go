package sqlite

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

const (
	authorClause   = "ai.author_id IN (SELECT value FROM json_each(?))"
	assigneeClause = "EXISTS (SELECT 1 FROM json_each(ai.assignee_ids) j WHERE j.value IN (SELECT value FROM json_each(?)))"
)

func TestPredicate_EmptyMatchesAll(t *testing.T) {
	p := BuildActivityPredicate(model.ActivityFilter{}, model.AttentionSets{}, nil, nil)

	assert.True(t, p.IsEmpty())
	assert.Equal(t, "1 = 1", p.SQL())
	assert.Empty(t, p.Args)
}

func TestPredicate_JoinSkipsEmptyParts(t *testing.T) {
	got := and(Predicate{}, where("a = ?", 1), Predicate{}, where("b = ?", 2))

	want := Predicate{Clause: "(a = ?) AND (b = ?)", Args: []any{1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("and() mismatch (-want +got):\n%s", diff)
	}

	single := or(Predicate{}, where("a = ?", 1))
	if diff := cmp.Diff(where("a = ?", 1), single); diff != "" {
		t.Errorf("or() with one part mismatch (-want +got):\n%s", diff)
	}
}

func TestPeoplePredicate_DifferentSetsAreANDed(t *testing.T) {
	got := peoplePredicate(model.PeopleFilters{
		AuthorIDs:   []string{"U1"},
		AssigneeIDs: []string{"U2"},
	})

	want := Predicate{
		Clause: "(" + authorClause + ") AND (" + assigneeClause + ")",
		Args:   []any{`["U1"]`, `["U2"]`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("peoplePredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestPeoplePredicate_SyncedSetsCollapseToOR(t *testing.T) {
	got := peoplePredicate(model.PeopleFilters{
		AuthorIDs:   []string{"U1", "U2"},
		AssigneeIDs: []string{"U2", "U1", "U1"},
	})

	want := Predicate{
		Clause: "(" + authorClause + ") OR (" + assigneeClause + ")",
		Args:   []any{`["U1","U2"]`, `["U2","U1","U1"]`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("peoplePredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestPeoplePredicate_SingleRoleIsPlain(t *testing.T) {
	got := peoplePredicate(model.PeopleFilters{AuthorIDs: []string{"U1"}})

	if diff := cmp.Diff(Predicate{Clause: authorClause, Args: []any{`["U1"]`}}, got); diff != "" {
		t.Errorf("peoplePredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusPredicate_BaseORProject(t *testing.T) {
	f := model.ActivityFilter{Statuses: []string{"merged", "in_progress", "done"}}
	ids := map[model.IssueStatus][]string{
		model.IssueStatusInProgress: {"I_2", "I_1"},
		model.IssueStatusDone:       {"I_1", "I_3"},
	}

	got := statusPredicate(f, ids)

	want := Predicate{
		Clause: "(ai.status IN (SELECT value FROM json_each(?))) OR ((ai.item_type = ?) AND (ai.id IN (SELECT value FROM json_each(?))))",
		Args:   []any{`["merged"]`, "issue", `["I_1","I_2","I_3"]`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statusPredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchPredicate_EscapesWildcards(t *testing.T) {
	got := searchPredicate("  100%_Done\\ ")

	assert.Contains(t, got.Clause, `ESCAPE '\'`)
	assert.Equal(t, []any{`%100\%\_done\\%`, `%100\%\_done\\%`, `%100\%\_done\\%`}, got.Args)
	assert.True(t, searchPredicate("   ").IsEmpty())
}

func TestAttentionPredicate_RefinesByPeople(t *testing.T) {
	sets := model.AttentionSets{
		StuckReviewRequests: []model.ReviewRequestDetail{
			{PullRequestID: "PR_1", ReviewerID: "U1"},
			{PullRequestID: "PR_2", ReviewerID: "U2"},
		},
	}
	f := model.ActivityFilter{
		Attention: []model.AttentionCategory{model.AttentionReviewRequests},
		People:    model.PeopleFilters{ReviewerIDs: []string{"U1"}},
	}

	assert.True(t, attentionRefinesPeople(f))

	got := BuildActivityPredicate(f, sets, nil, nil)
	want := Predicate{Clause: "ai.id IN (SELECT value FROM json_each(?))", Args: []any{`["PR_1"]`}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildActivityPredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestAttentionPredicate_NoAttentionOnlyKeepsPeopleClauses(t *testing.T) {
	f := model.ActivityFilter{
		Attention: []model.AttentionCategory{model.AttentionNone},
		People:    model.PeopleFilters{AuthorIDs: []string{"U1"}},
	}
	sets := model.AttentionSets{
		BacklogIssues: []model.ItemAge{{ItemID: "I_9"}},
	}

	assert.False(t, attentionRefinesPeople(f))

	got := BuildActivityPredicate(f, sets, nil, nil)
	want := Predicate{
		Clause: "(" + authorClause + ") AND (NOT (ai.id IN (SELECT value FROM json_each(?))))",
		Args:   []any{`["U1"]`, `["I_9"]`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildActivityPredicate mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		sort       model.SortOrder
		wantOrder  string
		wantColumn string
	}{
		{"", "julianday(ai.updated_at) DESC, ai.id DESC", "ai.updated_at"},
		{model.SortUpdatedAsc, "julianday(ai.updated_at) ASC, ai.id ASC", "ai.updated_at"},
		{model.SortCreatedDesc, "julianday(ai.created_at) DESC, ai.id DESC", "ai.created_at"},
		{model.SortCreatedAsc, "julianday(ai.created_at) ASC, ai.id ASC", "ai.created_at"},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			order, column := orderBy(tt.sort)
			assert.Equal(t, tt.wantOrder, order)
			assert.Equal(t, tt.wantColumn, column)
		})
	}
}
