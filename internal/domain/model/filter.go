package model

import (
	"errors"
	"fmt"
	"time"
)

// SortOrder selects the activity feed ordering.
type SortOrder string

const (
	SortUpdatedDesc SortOrder = "updated_desc"
	SortUpdatedAsc  SortOrder = "updated_asc"
	SortCreatedDesc SortOrder = "created_desc"
	SortCreatedAsc  SortOrder = "created_asc"
)

// PeopleFilters selects items by the people involved. Each role is an
// independent list of user IDs.
type PeopleFilters struct {
	AuthorIDs     []string `json:"author_ids,omitempty"`
	AssigneeIDs   []string `json:"assignee_ids,omitempty"`
	ReviewerIDs   []string `json:"reviewer_ids,omitempty"`
	MentionedIDs  []string `json:"mentioned_ids,omitempty"`
	CommenterIDs  []string `json:"commenter_ids,omitempty"`
	ReactorIDs    []string `json:"reactor_ids,omitempty"`
	MaintainerIDs []string `json:"maintainer_ids,omitempty"`
}

// Empty reports whether no people filter is populated.
func (p PeopleFilters) Empty() bool {
	return len(p.AuthorIDs) == 0 && len(p.AssigneeIDs) == 0 && len(p.ReviewerIDs) == 0 &&
		len(p.MentionedIDs) == 0 && len(p.CommenterIDs) == 0 && len(p.ReactorIDs) == 0 &&
		len(p.MaintainerIDs) == 0
}

// AllIDs returns the union of every populated role, in first-seen order.
func (p PeopleFilters) AllIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{p.AuthorIDs, p.AssigneeIDs, p.ReviewerIDs, p.MentionedIDs, p.CommenterIDs, p.ReactorIDs, p.MaintainerIDs} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// ActivityFilter holds every criterion of an activity feed query.
// Every field is optional.
type ActivityFilter struct {
	Types         []ItemType          `json:"types,omitempty"`
	RepositoryIDs []string            `json:"repository_ids,omitempty"`
	LabelKeys     []string            `json:"label_keys,omitempty"`
	IssueTypeIDs  []string            `json:"issue_type_ids,omitempty"`
	MilestoneIDs  []string            `json:"milestone_ids,omitempty"`
	Statuses      []string            `json:"statuses,omitempty"`
	Attention     []AttentionCategory `json:"attention,omitempty"`
	People        PeopleFilters       `json:"people"`
	Search        string              `json:"search,omitempty"`
	UpdatedFrom   time.Time           `json:"updated_from,omitempty"`
	UpdatedTo     time.Time           `json:"updated_to,omitempty"`

	// MyTodo selects the caller's to-do list; requires ViewerID.
	MyTodo   bool   `json:"my_todo,omitempty"`
	ViewerID string `json:"viewer_id,omitempty"`

	Thresholds           AttentionThresholds `json:"thresholds"`
	UseMentionClassifier bool                `json:"use_mention_classifier,omitempty"`

	Sort SortOrder `json:"sort,omitempty"`
}

// ErrInvalidFilterValue is wrapped by Validate for every rejected value.
var ErrInvalidFilterValue = errors.New("invalid filter value")

// Validate rejects malformed filter values before any query runs.
func (f ActivityFilter) Validate() error {
	for _, t := range f.Types {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown item type %q", ErrInvalidFilterValue, t)
		}
	}
	for _, s := range f.Statuses {
		switch ItemStatus(s) {
		case ItemStatusOpen, ItemStatusClosed, ItemStatusMerged:
			continue
		}
		if !IsProjectStatus(s) {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidFilterValue, s)
		}
	}
	for _, a := range f.Attention {
		if !ValidAttentionFilter(a) {
			return fmt.Errorf("%w: unknown attention filter %q", ErrInvalidFilterValue, a)
		}
	}
	switch f.Sort {
	case "", SortUpdatedDesc, SortUpdatedAsc, SortCreatedDesc, SortCreatedAsc:
	default:
		return fmt.Errorf("%w: unknown sort %q", ErrInvalidFilterValue, f.Sort)
	}
	if f.MyTodo && f.ViewerID == "" {
		return fmt.Errorf("%w: my_todo requires a viewer", ErrInvalidFilterValue)
	}
	if !f.UpdatedFrom.IsZero() && !f.UpdatedTo.IsZero() && f.UpdatedFrom.After(f.UpdatedTo) {
		return fmt.Errorf("%w: updated_from is after updated_to", ErrInvalidFilterValue)
	}
	if f.Thresholds.StalePRDays < 0 || f.Thresholds.IdlePRDays < 0 || f.Thresholds.ReviewRequestDays < 0 ||
		f.Thresholds.BacklogIssueDays < 0 || f.Thresholds.StalledIssueDays < 0 || f.Thresholds.UnansweredMentionDays < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidFilterValue)
	}
	return nil
}

// SplitStatuses separates base lifecycle statuses from issue-only project statuses.
func (f ActivityFilter) SplitStatuses() (base []ItemStatus, project []IssueStatus) {
	for _, s := range f.Statuses {
		switch ItemStatus(s) {
		case ItemStatusOpen, ItemStatusClosed, ItemStatusMerged:
			base = append(base, ItemStatus(s))
			continue
		}
		if IsProjectStatus(s) {
			project = append(project, IssueStatus(s))
		}
	}
	return base, project
}

// HasAttention reports whether any attention filter is selected.
func (f ActivityFilter) HasAttention() bool {
	return len(f.Attention) > 0
}
