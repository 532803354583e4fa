package model

import (
	"encoding/json"
	"time"
)

// PullRequestRecord is the slice of a raw pull request the attention engine
// and the automation job need.
type PullRequestRecord struct {
	ID           string
	RepositoryID string
	AuthorID     string
	AssigneeIDs  []string
	ReviewerIDs  []string
	State        string
	Merged       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     time.Time
	MergedAt     time.Time
}

// IssueRecord is the slice of a raw issue used for attention and status
// resolution. ProjectTimeline is the raw board timeline payload.
type IssueRecord struct {
	ID              string
	RepositoryID    string
	AuthorID        string
	AssigneeIDs     []string
	State           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        time.Time
	ProjectTimeline json.RawMessage
}

// ReviewRequestRecord is an outstanding review request.
type ReviewRequestRecord struct {
	ID            string
	PullRequestID string
	ReviewerID    string
	RequestedAt   time.Time
}

// CommentRecord is a comment scanned for mentions.
type CommentRecord struct {
	ID        string
	SubjectID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// UserResponse is the latest time a user responded on a subject (comment,
// review or reaction).
type UserResponse struct {
	SubjectID string
	UserID    string
	At        time.Time
}

// User is a GitHub account known to the store.
type User struct {
	ID    string
	Login string
	Name  string
	IsBot bool
}

// PullRequestIssueLink joins a pull request to an issue it references.
type PullRequestIssueLink struct {
	PullRequestID string
	IssueID       string
	PRCreatedAt   time.Time
	Merged        bool
	MergedAt      time.Time
}

// SyncConfig is the read-only sync configuration.
type SyncConfig struct {
	Timezone              string
	HolidayCalendarCodes  []string
	ExcludedRepositoryIDs []string
	ExcludedUserIDs       []string
	TargetProject         string
	LastSuccessfulSyncAt  time.Time // Zero when no sync completed yet.
}

// MentionOverride is a manual decision about a mention.
type MentionOverride struct {
	CommentID    string
	TargetUserID string
	Decision     MentionDecision
	DecidedBy    string
	DecidedAt    time.Time
}

// MentionClassification is a stored classifier verdict about a mention.
type MentionClassification struct {
	CommentID        string
	TargetUserID     string
	RequiresResponse bool
	Reason           string
	Model            string
	ClassifiedAt     time.Time
}

// MentionKey identifies a mention of one user in one comment.
type MentionKey struct {
	CommentID    string
	TargetUserID string
}
