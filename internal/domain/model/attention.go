package model

import (
	"sort"
	"time"
)

// AttentionCategory names one attention set. The string values double as
// filter keys.
type AttentionCategory string

const (
	AttentionStalePRs          AttentionCategory = "pr_open_too_long"
	AttentionIdlePRs           AttentionCategory = "pr_inactive"
	AttentionReviewRequests    AttentionCategory = "review_requests_pending"
	AttentionBacklogIssues     AttentionCategory = "issue_backlog"
	AttentionStalledIssues     AttentionCategory = "issue_stalled"
	AttentionUnansweredMention AttentionCategory = "unanswered_mentions"

	// AttentionNone is a filter-only key selecting items outside every set.
	AttentionNone AttentionCategory = "no_attention"
)

// AttentionCategories lists the six computed categories in display order.
var AttentionCategories = []AttentionCategory{
	AttentionStalePRs,
	AttentionIdlePRs,
	AttentionReviewRequests,
	AttentionBacklogIssues,
	AttentionStalledIssues,
	AttentionUnansweredMention,
}

// ValidAttentionFilter reports whether c is a computed category or no_attention.
func ValidAttentionFilter(c AttentionCategory) bool {
	if c == AttentionNone {
		return true
	}
	for _, known := range AttentionCategories {
		if c == known {
			return true
		}
	}
	return false
}

// MentionDecision is a manual override of an unanswered mention.
type MentionDecision string

const (
	MentionDecisionSuppress MentionDecision = "suppress"
	MentionDecisionForce    MentionDecision = "force"
	MentionDecisionClear    MentionDecision = "clear"
)

// Valid reports whether d is a known decision.
func (d MentionDecision) Valid() bool {
	switch d {
	case MentionDecisionSuppress, MentionDecisionForce, MentionDecisionClear:
		return true
	}
	return false
}

// ItemRoles records who plays which part on an item in an attention set. It
// backs role-aware refinement of attention filters by person.
type ItemRoles struct {
	Type          ItemType
	AuthorID      string
	AssigneeIDs   []string
	ReviewerIDs   []string
	MaintainerIDs []string
}

// ItemAge is the age detail for stale/idle PRs and backlog/stalled issues.
type ItemAge struct {
	ItemID    string
	Since     time.Time
	AgeDays   int
	Threshold int
}

// ReviewRequestDetail describes a review request still waiting for the reviewer.
type ReviewRequestDetail struct {
	PullRequestID string
	ReviewerID    string
	RequestedAt   time.Time
	WaitingDays   int
}

// MentionDetail describes a mention the target user has not answered.
type MentionDetail struct {
	CommentID           string
	SubjectID           string
	TargetID            string
	AuthorID            string
	MentionedAt         time.Time
	WaitingDays         int
	RequiresResponse    *bool // Classifier verdict, nil when unclassified.
	Override            MentionDecision
	ManualDecisionStale bool
}

// AttentionSets is the full output of one attention computation. It is never
// persisted; callers may cache it briefly.
type AttentionSets struct {
	GeneratedAt time.Time

	StaleOpenPRs            []ItemAge
	IdleOpenPRs             []ItemAge
	BacklogIssues           []ItemAge
	StalledInProgressIssues []ItemAge
	StuckReviewRequests     []ReviewRequestDetail
	UnansweredMentions      []MentionDetail

	// SuppressedMentions are mentions a manual suppress decision hid. They are
	// kept for display only and belong to no category.
	SuppressedMentions []MentionDetail

	Roles map[string]ItemRoles
}

// IDs returns the sorted, de-duplicated item IDs of a category.
func (s AttentionSets) IDs(c AttentionCategory) []string {
	seen := make(map[string]struct{})
	add := func(id string) { seen[id] = struct{}{} }

	switch c {
	case AttentionStalePRs:
		for _, a := range s.StaleOpenPRs {
			add(a.ItemID)
		}
	case AttentionIdlePRs:
		for _, a := range s.IdleOpenPRs {
			add(a.ItemID)
		}
	case AttentionBacklogIssues:
		for _, a := range s.BacklogIssues {
			add(a.ItemID)
		}
	case AttentionStalledIssues:
		for _, a := range s.StalledInProgressIssues {
			add(a.ItemID)
		}
	case AttentionReviewRequests:
		for _, r := range s.StuckReviewRequests {
			add(r.PullRequestID)
		}
	case AttentionUnansweredMention:
		for _, m := range s.UnansweredMentions {
			add(m.SubjectID)
		}
	}
	return sortedKeys(seen)
}

// AllIDs returns the union of every category.
func (s AttentionSets) AllIDs() []string {
	seen := make(map[string]struct{})
	for _, c := range AttentionCategories {
		for _, id := range s.IDs(c) {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// IDsForPeople returns the item IDs of category c where at least one of
// userIDs plays the role that category cares about.
func (s AttentionSets) IDsForPeople(c AttentionCategory, userIDs []string) []string {
	if len(userIDs) == 0 {
		return s.IDs(c)
	}
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}

	seen := make(map[string]struct{})
	switch c {
	case AttentionReviewRequests:
		for _, r := range s.StuckReviewRequests {
			if want[r.ReviewerID] {
				seen[r.PullRequestID] = struct{}{}
			}
		}
	case AttentionUnansweredMention:
		for _, m := range s.UnansweredMentions {
			if want[m.TargetID] {
				seen[m.SubjectID] = struct{}{}
			}
		}
	case AttentionStalePRs, AttentionIdlePRs:
		for _, id := range s.IDs(c) {
			r := s.Roles[id]
			if want[r.AuthorID] || anyIn(r.AssigneeIDs, want) || anyIn(r.ReviewerIDs, want) || anyIn(r.MaintainerIDs, want) {
				seen[id] = struct{}{}
			}
		}
	case AttentionBacklogIssues, AttentionStalledIssues:
		for _, id := range s.IDs(c) {
			if anyIn(s.Roles[id].issueOwners(), want) {
				seen[id] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// MentionIDsFor returns the subjects carrying an unanswered mention of userID.
func (s AttentionSets) MentionIDsFor(userID string) []string {
	return s.IDsForPeople(AttentionUnansweredMention, []string{userID})
}

// Flags returns the categories an item belongs to.
func (s AttentionSets) Flags(itemID string) []AttentionCategory {
	var flags []AttentionCategory
	for _, c := range AttentionCategories {
		for _, id := range s.IDs(c) {
			if id == itemID {
				flags = append(flags, c)
				break
			}
		}
	}
	return flags
}

// issueOwners picks who answers for an issue: its assignees, else the
// repository maintainers, else the author.
func (r ItemRoles) issueOwners() []string {
	if len(r.AssigneeIDs) > 0 {
		return r.AssigneeIDs
	}
	if len(r.MaintainerIDs) > 0 {
		return r.MaintainerIDs
	}
	if r.AuthorID != "" {
		return []string{r.AuthorID}
	}
	return nil
}

func anyIn(ids []string, want map[string]bool) bool {
	for _, id := range ids {
		if want[id] {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
