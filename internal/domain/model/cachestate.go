package model

import (
	"encoding/json"
	"time"
)

// Cache keys of the derived caches tracked in activity_cache_state.
const (
	CacheKeyFilterOptions    = "activity-filter-options"
	CacheKeyIssueLinks       = "activity-issue-links"
	CacheKeyPullRequestLinks = "activity-pull-request-links"
	CacheKeyStatusAutomation = "issue-status-automation"
)

// CacheState records which sync generation a derived cache was built from.
type CacheState struct {
	CacheKey    string
	SyncRunID   string
	ItemCount   int
	GeneratedAt time.Time
	Metadata    json.RawMessage
}

// IsStale reports whether the cache must be rebuilt for latestRunID.
func (c *CacheState) IsStale(latestRunID string) bool {
	return c == nil || c.SyncRunID != latestRunID
}

// AutomationRunStatus is the outcome of a status automation run.
type AutomationRunStatus string

const (
	AutomationSucceeded AutomationRunStatus = "success"
	AutomationFailed    AutomationRunStatus = "failed"
)

// AutomationState is the metadata persisted for the status automation cache key.
type AutomationState struct {
	Status               AutomationRunStatus `json:"status"`
	RunID                string              `json:"runId"`
	InsertedInProgress   int                 `json:"insertedInProgress"`
	InsertedDone         int                 `json:"insertedDone"`
	LastSuccessfulSyncAt string              `json:"lastSuccessfulSyncAt"`
	Trigger              string              `json:"trigger"`
	LastSuccessAt        string              `json:"lastSuccessAt,omitempty"`
	Error                string              `json:"error,omitempty"`
}

// FilterOptionKind groups filter option enumerations.
type FilterOptionKind string

const (
	FilterOptionRepository FilterOptionKind = "repository"
	FilterOptionLabel      FilterOptionKind = "label"
	FilterOptionUser       FilterOptionKind = "user"
	FilterOptionIssueType  FilterOptionKind = "issue_type"
	FilterOptionMilestone  FilterOptionKind = "milestone"
)

// FilterOption is one selectable value of a filter dimension.
type FilterOption struct {
	Kind      FilterOptionKind
	Value     string
	Label     string
	ItemCount int
}
