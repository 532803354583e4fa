package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Timeline entry type names written by the sync pipeline.
const (
	timelineAddedToProject = "AddedToProjectV2Event"
	timelineStatusChanged  = "ProjectV2ItemStatusChangedEvent"
)

// projectTimelineV1 is the versioned envelope of an issue's board timeline.
// Version 0 payloads are a bare JSON array of entries.
type projectTimelineV1 struct {
	Version int                    `json:"version"`
	Items   []projectTimelineEntry `json:"items"`
}

// projectTimelineEntry is one raw board timeline entry. Every field is
// optional; entries missing a timestamp or a known status are skipped.
type projectTimelineEntry struct {
	Type      string `json:"__typename"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status"`
	Project   struct {
		Title string `json:"title"`
	} `json:"project"`
}

// DecodeProjectTimeline turns a raw board timeline into status events for
// targetProject (any project when targetProject is empty). It never fails:
// malformed payloads and entries resolve to "not tracked" or are skipped.
func DecodeProjectTimeline(issueID string, raw json.RawMessage, targetProject string) (events []model.IssueStatusEvent, tracked bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	var entries []projectTimelineEntry
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			slog.Debug("skipping malformed project timeline", "issue_id", issueID, "error", err)
			return nil, false
		}
	} else {
		var envelope projectTimelineV1
		if err := json.Unmarshal(raw, &envelope); err != nil {
			slog.Debug("skipping malformed project timeline", "issue_id", issueID, "error", err)
			return nil, false
		}
		entries = envelope.Items
	}

	for _, entry := range entries {
		if targetProject != "" && !strings.EqualFold(strings.TrimSpace(entry.Project.Title), targetProject) {
			continue
		}
		switch entry.Type {
		case timelineAddedToProject:
			tracked = true
		case timelineStatusChanged:
			tracked = true
			at, err := parseTimestamp(entry.CreatedAt)
			if err != nil {
				continue
			}
			status, ok := model.ParseIssueStatus(entry.Status)
			if !ok {
				continue
			}
			events = append(events, model.IssueStatusEvent{
				IssueID:    issueID,
				Status:     status,
				OccurredAt: at,
				Source:     model.StatusSourceTodoProject,
			})
		}
	}
	return events, tracked
}

// parseTimestamp accepts RFC 3339 timestamps with or without fractional seconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, s)
}

// StatusResolver resolves issue lifecycle status from the board timeline and
// the derived activity history. It is the single place status precedence is
// applied.
type StatusResolver struct {
	rawStore    driven.RawStore
	statusStore driven.IssueStatusStore
	logger      *slog.Logger
}

// NewStatusResolver creates a new StatusResolver.
func NewStatusResolver(rawStore driven.RawStore, statusStore driven.IssueStatusStore) *StatusResolver {
	return &StatusResolver{
		rawStore:    rawStore,
		statusStore: statusStore,
		logger:      slog.Default(),
	}
}

// ResolveIssues resolves the given issues. Issues without any status data map
// to no_status.
func (r *StatusResolver) ResolveIssues(ctx context.Context, issues []model.IssueRecord, targetProject string) (map[string]model.IssueStatusResolution, error) {
	out := make(map[string]model.IssueStatusResolution, len(issues))
	if len(issues) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}

	activity, err := r.statusStore.ListActivityEvents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list activity status events: %w", err)
	}
	byIssue := make(map[string][]model.IssueStatusEvent, len(issues))
	for _, ev := range activity {
		byIssue[ev.IssueID] = append(byIssue[ev.IssueID], ev)
	}

	for _, issue := range issues {
		projectEvents, tracked := DecodeProjectTimeline(issue.ID, issue.ProjectTimeline, targetProject)
		out[issue.ID] = model.ResolveIssueStatus(model.ResolverInput{
			Tracked:        tracked,
			ProjectEvents:  projectEvents,
			ActivityEvents: byIssue[issue.ID],
		})
	}
	return out, nil
}

// ResolveByIDs loads and resolves the issues with the given IDs. IDs that are
// not issues are ignored.
func (r *StatusResolver) ResolveByIDs(ctx context.Context, ids []string, targetProject string) (map[string]model.IssueStatusResolution, error) {
	if len(ids) == 0 {
		return map[string]model.IssueStatusResolution{}, nil
	}
	issues, err := r.rawStore.ListIssues(ctx, false, ids)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return r.ResolveIssues(ctx, issues, targetProject)
}

// IDsByDisplayStatus resolves every issue and groups issue IDs by display
// status. Only the requested statuses are returned.
func (r *StatusResolver) IDsByDisplayStatus(ctx context.Context, statuses []model.IssueStatus, targetProject string) (map[model.IssueStatus][]string, error) {
	out := make(map[model.IssueStatus][]string, len(statuses))
	if len(statuses) == 0 {
		return out, nil
	}
	want := make(map[model.IssueStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
		out[s] = []string{}
	}

	issues, err := r.rawStore.ListIssues(ctx, false, nil)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	resolved, err := r.ResolveIssues(ctx, issues, targetProject)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		status := resolved[issue.ID].DisplayStatus
		if want[status] {
			out[status] = append(out[status], issue.ID)
		}
	}
	return out, nil
}
