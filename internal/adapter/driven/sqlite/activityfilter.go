package sqlite

import (
	"slices"
	"strings"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// Predicate is one parameterized SQL condition over activity_items (aliased
// ai). Clause never contains caller values; every value travels in Args.
// The zero Predicate matches everything.
type Predicate struct {
	Clause string
	Args   []any
}

// IsEmpty reports whether p places no constraint.
func (p Predicate) IsEmpty() bool {
	return p.Clause == ""
}

// SQL returns a clause usable after WHERE.
func (p Predicate) SQL() string {
	if p.IsEmpty() {
		return "1 = 1"
	}
	return p.Clause
}

func where(clause string, args ...any) Predicate {
	return Predicate{Clause: clause, Args: args}
}

// and joins the non-empty parts with AND.
func and(parts ...Predicate) Predicate {
	return join(" AND ", parts)
}

// or joins the non-empty parts with OR. Empty parts are skipped, not treated
// as match-all.
func or(parts ...Predicate) Predicate {
	return join(" OR ", parts)
}

func not(p Predicate) Predicate {
	if p.IsEmpty() {
		return p
	}
	return Predicate{Clause: "NOT (" + p.Clause + ")", Args: p.Args}
}

func join(op string, parts []Predicate) Predicate {
	var kept []Predicate
	for _, p := range parts {
		if !p.IsEmpty() {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Predicate{}
	case 1:
		return kept[0]
	}

	clauses := make([]string, 0, len(kept))
	var args []any
	for _, p := range kept {
		clauses = append(clauses, "("+p.Clause+")")
		args = append(args, p.Args...)
	}
	return Predicate{Clause: strings.Join(clauses, op), Args: args}
}

// inSet matches rows whose scalar column is one of values.
func inSet[T ~string](column string, values []T) Predicate {
	return where(column+" IN (SELECT value FROM json_each(?))", encodeIDs(values))
}

// overlaps matches rows whose JSON array column shares a value with values.
func overlaps(column string, values []string) Predicate {
	return where(
		"EXISTS (SELECT 1 FROM json_each("+column+") j WHERE j.value IN (SELECT value FROM json_each(?)))",
		encodeIDs(values),
	)
}

// maintainedBy matches items in a repository any of userIDs maintains.
func maintainedBy(userIDs []string) Predicate {
	return where(
		"ai.repository_id IN (SELECT rm.repository_id FROM repository_maintainers rm WHERE rm.user_id IN (SELECT value FROM json_each(?)))",
		encodeIDs(userIDs),
	)
}

// BuildActivityPredicate compiles a filter into one predicate. The pieces are
// applied in a fixed order: excluded repositories first, then the scalar
// dimensions, statuses, search, dates, people, attention and my_todo.
func BuildActivityPredicate(
	f model.ActivityFilter,
	sets model.AttentionSets,
	statusIDs map[model.IssueStatus][]string,
	excludedRepositoryIDs []string,
) Predicate {
	var parts []Predicate

	if len(excludedRepositoryIDs) > 0 {
		parts = append(parts, not(inSet("ai.repository_id", excludedRepositoryIDs)))
	}
	if len(f.Types) > 0 {
		parts = append(parts, inSet("ai.item_type", f.Types))
	}
	if len(f.RepositoryIDs) > 0 {
		parts = append(parts, inSet("ai.repository_id", f.RepositoryIDs))
	}
	if len(f.LabelKeys) > 0 {
		parts = append(parts, overlaps("ai.label_keys", f.LabelKeys))
	}
	if len(f.IssueTypeIDs) > 0 {
		parts = append(parts, inSet("ai.issue_type_id", f.IssueTypeIDs))
	}
	if len(f.MilestoneIDs) > 0 {
		parts = append(parts, inSet("ai.milestone_id", f.MilestoneIDs))
	}

	parts = append(parts,
		statusPredicate(f, statusIDs),
		searchPredicate(f.Search),
	)
	if !f.UpdatedFrom.IsZero() {
		parts = append(parts, where("julianday(ai.updated_at) >= julianday(?)", formatTime(f.UpdatedFrom)))
	}
	if !f.UpdatedTo.IsZero() {
		parts = append(parts, where("julianday(ai.updated_at) <= julianday(?)", formatTime(f.UpdatedTo)))
	}

	if attentionRefinesPeople(f) {
		parts = append(parts, attentionPredicate(f, sets))
	} else {
		parts = append(parts, peoplePredicate(f.People), attentionPredicate(f, sets))
	}

	if f.MyTodo {
		parts = append(parts, myTodoPredicate(f.ViewerID, sets))
	}

	return and(parts...)
}

// statusPredicate ORs base lifecycle statuses with the issue-only project
// statuses resolved by the application layer.
func statusPredicate(f model.ActivityFilter, statusIDs map[model.IssueStatus][]string) Predicate {
	base, project := f.SplitStatuses()
	if len(base) == 0 && len(project) == 0 {
		return Predicate{}
	}

	var baseMatch, projectMatch Predicate
	if len(base) > 0 {
		baseMatch = inSet("ai.status", base)
	}
	if len(project) > 0 {
		var ids []string
		for _, s := range project {
			ids = append(ids, statusIDs[s]...)
		}
		slices.Sort(ids)
		projectMatch = and(
			where("ai.item_type = ?", string(model.ItemTypeIssue)),
			inSet("ai.id", slices.Compact(ids)),
		)
	}
	return or(baseMatch, projectMatch)
}

// searchPredicate matches title, body or any comment body case-insensitively.
func searchPredicate(search string) Predicate {
	search = strings.TrimSpace(search)
	if search == "" {
		return Predicate{}
	}
	pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
	return where(
		foldFunc+`(ai.title) LIKE ? ESCAPE '\' OR `+foldFunc+`(ai.body) LIKE ? ESCAPE '\' OR EXISTS (SELECT 1 FROM comments c WHERE c.subject_id = ai.id AND `+foldFunc+`(c.body) LIKE ? ESCAPE '\')`,
		pattern, pattern, pattern,
	)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// peopleRole pairs a people filter with the predicate that tests one role.
type peopleRole struct {
	ids   []string
	match func(ids []string) Predicate
}

func peopleRoles(p model.PeopleFilters) []peopleRole {
	roles := []peopleRole{
		{p.AuthorIDs, func(ids []string) Predicate { return inSet("ai.author_id", ids) }},
		{p.AssigneeIDs, func(ids []string) Predicate { return overlaps("ai.assignee_ids", ids) }},
		{p.ReviewerIDs, func(ids []string) Predicate { return overlaps("ai.reviewer_ids", ids) }},
		{p.MentionedIDs, func(ids []string) Predicate { return overlaps("ai.mentioned_ids", ids) }},
		{p.CommenterIDs, func(ids []string) Predicate { return overlaps("ai.commenter_ids", ids) }},
		{p.ReactorIDs, func(ids []string) Predicate { return overlaps("ai.reactor_ids", ids) }},
		{p.MaintainerIDs, maintainedBy},
	}
	return slices.DeleteFunc(roles, func(r peopleRole) bool { return len(r.ids) == 0 })
}

// peoplePredicate ANDs one clause per populated role. When at least two roles
// are populated and every one of them selects the same set of people, the
// caller picked "these people, in any role", so the clauses are ORed instead.
func peoplePredicate(p model.PeopleFilters) Predicate {
	roles := peopleRoles(p)
	if len(roles) == 0 {
		return Predicate{}
	}

	parts := make([]Predicate, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, r.match(r.ids))
	}
	if len(roles) >= 2 && sameSets(roles) {
		return or(parts...)
	}
	return and(parts...)
}

func sameSets(roles []peopleRole) bool {
	first := normalizedSet(roles[0].ids)
	for _, r := range roles[1:] {
		if !slices.Equal(first, normalizedSet(r.ids)) {
			return false
		}
	}
	return true
}

func normalizedSet(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// attentionRefinesPeople reports whether the attention filter absorbs the
// people filters. That happens when at least one computed category is
// selected; each category is then narrowed to items where a selected person
// plays the role the category cares about.
func attentionRefinesPeople(f model.ActivityFilter) bool {
	if f.People.Empty() {
		return false
	}
	for _, c := range f.Attention {
		if c != model.AttentionNone {
			return true
		}
	}
	return false
}

// attentionPredicate unions the selected categories. With no_attention it
// also admits every item outside all six categories.
func attentionPredicate(f model.ActivityFilter, sets model.AttentionSets) Predicate {
	if !f.HasAttention() {
		return Predicate{}
	}

	people := f.People.AllIDs()
	selected := make(map[string]struct{})
	var categories, withNone bool
	for _, c := range f.Attention {
		if c == model.AttentionNone {
			withNone = true
			continue
		}
		categories = true
		for _, id := range sets.IDsForPeople(c, people) {
			selected[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var match Predicate
	if categories {
		match = inSet("ai.id", ids)
	}
	if !withNone {
		return match
	}
	return or(match, not(inSet("ai.id", sets.AllIDs())))
}

// myTodoPredicate selects the viewer's work: open issues they own, open PRs
// they author or review, and items with a mention of them still unanswered.
func myTodoPredicate(viewerID string, sets model.AttentionSets) Predicate {
	viewer := []string{viewerID}

	issues := and(
		where("ai.item_type = ?", string(model.ItemTypeIssue)),
		where("ai.status = ?", string(model.ItemStatusOpen)),
		or(
			overlaps("ai.assignee_ids", viewer),
			and(where("json_array_length(ai.assignee_ids) = 0"), maintainedBy(viewer)),
		),
	)
	prs := and(
		where("ai.item_type = ?", string(model.ItemTypePullRequest)),
		where("ai.status = ?", string(model.ItemStatusOpen)),
		or(
			where("ai.author_id = ?", viewerID),
			overlaps("ai.reviewer_ids", viewer),
		),
	)
	parts := []Predicate{issues, prs}
	if mentions := sets.MentionIDsFor(viewerID); len(mentions) > 0 {
		parts = append(parts, inSet("ai.id", mentions))
	}
	return or(parts...)
}

// orderBy returns the ORDER BY list and the sort column for a sort order. Ties
// break on id in the same direction. Timestamps order through julianday() since
// the sync pipeline may store them in more than one text layout.
func orderBy(s model.SortOrder) (order, column string) {
	switch s {
	case model.SortUpdatedAsc:
		return "julianday(ai.updated_at) ASC, ai.id ASC", "ai.updated_at"
	case model.SortCreatedDesc:
		return "julianday(ai.created_at) DESC, ai.id DESC", "ai.created_at"
	case model.SortCreatedAsc:
		return "julianday(ai.created_at) ASC, ai.id ASC", "ai.created_at"
	default:
		return "julianday(ai.updated_at) DESC, ai.id DESC", "ai.updated_at"
	}
}
