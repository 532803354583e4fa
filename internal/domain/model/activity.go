package model

import "time"

// ItemType distinguishes the three kinds of activity items.
type ItemType string

const (
	ItemTypeIssue       ItemType = "issue"
	ItemTypePullRequest ItemType = "pull_request"
	ItemTypeDiscussion  ItemType = "discussion"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeIssue, ItemTypePullRequest, ItemTypeDiscussion:
		return true
	}
	return false
}

// ItemStatus is the base lifecycle state stored on every activity item.
type ItemStatus string

const (
	ItemStatusOpen   ItemStatus = "open"
	ItemStatusClosed ItemStatus = "closed"
	ItemStatusMerged ItemStatus = "merged"
)

// ActivityItem is one denormalized row of the activity feed. Rows are written
// by the sync pipeline and are read-only here.
type ActivityItem struct {
	ID             string
	Type           ItemType
	Number         int
	RepositoryID   string
	RepositoryName string
	AuthorID       string
	Title          string
	Body           string
	URL            string
	Status         ItemStatus

	AssigneeIDs  []string
	ReviewerIDs  []string
	MentionedIDs []string
	CommenterIDs []string
	ReactorIDs   []string
	LabelKeys    []string

	IssueTypeID          string
	IssueTypeName        string
	MilestoneID          string
	MilestoneTitle       string
	TrackedIssuesCount   int
	TrackedInIssuesCount int

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time // Zero when still open.
	MergedAt  time.Time // Zero unless merged.
}

// ItemComment is a comment attached to an activity item.
type ItemComment struct {
	ID        string
	SubjectID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkedItem is one side of an issue <-> pull request link, read from the link caches.
type LinkedItem struct {
	ID           string
	Number       int
	RepositoryID string
	State        string
}

// ProjectOverride holds manually entered project fields for an issue.
type ProjectOverride struct {
	IssueID    string
	Priority   string
	Weight     *int
	StartDate  string
	TargetDate string
	UpdatedAt  time.Time
}
