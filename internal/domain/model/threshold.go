package model

// AttentionThresholds holds the per-category thresholds, all in business days.
type AttentionThresholds struct {
	StalePRDays           int `json:"stale_pr_days"`
	IdlePRDays            int `json:"idle_pr_days"`
	ReviewRequestDays     int `json:"review_request_days"`
	BacklogIssueDays      int `json:"backlog_issue_days"`
	StalledIssueDays      int `json:"stalled_issue_days"`
	UnansweredMentionDays int `json:"unanswered_mention_days"`
}

// Default thresholds in business days.
const (
	defaultStalePRDays           = 20
	defaultIdlePRDays            = 10
	defaultReviewRequestDays     = 5
	defaultBacklogIssueDays      = 40
	defaultStalledIssueDays      = 20
	defaultUnansweredMentionDays = 5
)

// DefaultAttentionThresholds returns the hard-coded defaults used when neither
// the caller nor the thresholds file sets a value.
func DefaultAttentionThresholds() AttentionThresholds {
	return AttentionThresholds{
		StalePRDays:           defaultStalePRDays,
		IdlePRDays:            defaultIdlePRDays,
		ReviewRequestDays:     defaultReviewRequestDays,
		BacklogIssueDays:      defaultBacklogIssueDays,
		StalledIssueDays:      defaultStalledIssueDays,
		UnansweredMentionDays: defaultUnansweredMentionDays,
	}
}

// Merge returns t with every positive field of override applied on top.
func (t AttentionThresholds) Merge(override AttentionThresholds) AttentionThresholds {
	if override.StalePRDays > 0 {
		t.StalePRDays = override.StalePRDays
	}
	if override.IdlePRDays > 0 {
		t.IdlePRDays = override.IdlePRDays
	}
	if override.ReviewRequestDays > 0 {
		t.ReviewRequestDays = override.ReviewRequestDays
	}
	if override.BacklogIssueDays > 0 {
		t.BacklogIssueDays = override.BacklogIssueDays
	}
	if override.StalledIssueDays > 0 {
		t.StalledIssueDays = override.StalledIssueDays
	}
	if override.UnansweredMentionDays > 0 {
		t.UnansweredMentionDays = override.UnansweredMentionDays
	}
	return t
}

// Normalize fills non-positive fields with defaults and clamps the
// unanswered-mention threshold to its floor.
func (t AttentionThresholds) Normalize() AttentionThresholds {
	n := DefaultAttentionThresholds().Merge(t)
	if n.UnansweredMentionDays < defaultUnansweredMentionDays {
		n.UnansweredMentionDays = defaultUnansweredMentionDays
	}
	return n
}
