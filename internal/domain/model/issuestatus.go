package model

import (
	"sort"
	"strings"
	"time"
)

// IssueStatus is a normalized issue lifecycle state.
type IssueStatus string

const (
	IssueStatusNone       IssueStatus = ""
	IssueStatusNoStatus   IssueStatus = "no_status"
	IssueStatusTodo       IssueStatus = "todo"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusDone       IssueStatus = "done"
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusCanceled   IssueStatus = "canceled"
)

// ProjectStatuses lists the issue-only statuses a filter may select.
var ProjectStatuses = []IssueStatus{
	IssueStatusTodo,
	IssueStatusInProgress,
	IssueStatusDone,
	IssueStatusPending,
	IssueStatusCanceled,
}

// IsProjectStatus reports whether s is one of the selectable project statuses.
func IsProjectStatus(s string) bool {
	for _, ps := range ProjectStatuses {
		if string(ps) == s {
			return true
		}
	}
	return false
}

// StatusSource names the event stream an issue status came from.
type StatusSource string

const (
	StatusSourceNone        StatusSource = "none"
	StatusSourceTodoProject StatusSource = "todo_project"
	StatusSourceActivity    StatusSource = "activity"
)

// IssueStatusEvent is one entry of an append-only status timeline.
type IssueStatusEvent struct {
	IssueID    string
	Status     IssueStatus
	OccurredAt time.Time
	Source     StatusSource
}

// projectStatusNames maps lower-cased project board option names to statuses.
var projectStatusNames = map[string]IssueStatus{
	"todo":        IssueStatusTodo,
	"to do":       IssueStatusTodo,
	"backlog":     IssueStatusTodo,
	"in progress": IssueStatusInProgress,
	"in_progress": IssueStatusInProgress,
	"doing":       IssueStatusInProgress,
	"done":        IssueStatusDone,
	"completed":   IssueStatusDone,
	"pending":     IssueStatusPending,
	"on hold":     IssueStatusPending,
	"blocked":     IssueStatusPending,
	"waiting":     IssueStatusPending,
	"canceled":    IssueStatusCanceled,
	"cancelled":   IssueStatusCanceled, //nolint:misspell // board option spelling
	"won't do":    IssueStatusCanceled,
	"no status":   IssueStatusNoStatus,
	"no_status":   IssueStatusNoStatus,
}

// ParseIssueStatus maps a status name (board option or stored value) to an
// IssueStatus. The second return value is false for unknown names.
func ParseIssueStatus(name string) (IssueStatus, bool) {
	s, ok := projectStatusNames[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// ResolverInput carries both status timelines of a single issue.
type ResolverInput struct {
	// Tracked is true when the issue was ever added to the target project,
	// even if the board never assigned it a status.
	Tracked        bool
	ProjectEvents  []IssueStatusEvent
	ActivityEvents []IssueStatusEvent
}

// IssueStatusResolution is the merged lifecycle view of an issue.
type IssueStatusResolution struct {
	DisplayStatus    IssueStatus
	Source           StatusSource
	TodoStatus       IssueStatus
	TodoStatusAt     time.Time
	ActivityStatus   IssueStatus
	ActivityStatusAt time.Time
	Locked           bool
	TimelineSource   StatusSource
	StartedAt        time.Time // Zero when work has not started.
	CompletedAt      time.Time // Zero when work has not completed.
}

// WorkStarted reports whether the chosen timeline shows the issue in progress
// or completed.
func (r IssueStatusResolution) WorkStarted() bool {
	return !r.StartedAt.IsZero()
}

// lockingStatuses are board statuses that pin an issue to the project board.
var lockingStatuses = map[IssueStatus]bool{
	IssueStatusInProgress: true,
	IssueStatusDone:       true,
	IssueStatusPending:    true,
}

// ResolveIssueStatus merges the project board timeline and the derived activity
// timeline into one display status. Malformed events (zero time, empty status)
// are ignored.
func ResolveIssueStatus(in ResolverInput) IssueStatusResolution {
	project := cleanTimeline(in.ProjectEvents)
	activity := cleanTimeline(in.ActivityEvents)

	res := IssueStatusResolution{
		Source:         StatusSourceNone,
		TimelineSource: StatusSourceNone,
	}

	if n := len(project); n > 0 {
		res.TodoStatus = project[n-1].Status
		res.TodoStatusAt = project[n-1].OccurredAt
	} else if in.Tracked {
		res.TodoStatus = IssueStatusNoStatus
	}

	if n := len(activity); n > 0 {
		res.ActivityStatus = activity[n-1].Status
		res.ActivityStatusAt = activity[n-1].OccurredAt
	}

	// Once the board has pinned an issue it keeps ownership, including after a
	// regression back to todo.
	for _, ev := range project {
		if lockingStatuses[ev.Status] {
			res.Locked = true
			break
		}
	}

	hasTodo := res.TodoStatus != IssueStatusNone
	hasActivity := res.ActivityStatus != IssueStatusNone

	switch {
	case hasTodo && (res.Locked || !hasActivity):
		res.DisplayStatus, res.Source = res.TodoStatus, StatusSourceTodoProject
	case hasActivity && !res.Locked:
		res.DisplayStatus, res.Source = res.ActivityStatus, StatusSourceActivity
	case hasTodo:
		res.DisplayStatus, res.Source = res.TodoStatus, StatusSourceTodoProject
	default:
		res.DisplayStatus, res.Source = IssueStatusNoStatus, StatusSourceNone
	}

	var timeline []IssueStatusEvent
	switch {
	case res.Locked:
		res.TimelineSource, timeline = StatusSourceTodoProject, project
	case len(activity) > 0:
		res.TimelineSource, timeline = StatusSourceActivity, activity
	case len(project) > 0:
		res.TimelineSource, timeline = StatusSourceTodoProject, project
	}

	res.StartedAt, res.CompletedAt = workTimestamps(timeline)
	return res
}

// workTimestamps scans a timeline forward and returns when the latest stretch
// of work started and when it completed. Re-entering in_progress restarts the
// clock. A regression to todo or no_status voids both.
func workTimestamps(timeline []IssueStatusEvent) (started, completed time.Time) {
	for _, ev := range timeline {
		switch ev.Status {
		case IssueStatusInProgress:
			started = ev.OccurredAt
			completed = time.Time{}
		case IssueStatusDone:
			if !started.IsZero() && completed.IsZero() {
				completed = ev.OccurredAt
			}
		case IssueStatusTodo, IssueStatusNoStatus:
			started, completed = time.Time{}, time.Time{}
		}
	}
	return started, completed
}

// cleanTimeline drops malformed events and returns a copy ordered by time.
// The sort is stable so events sharing a timestamp keep their input order.
func cleanTimeline(events []IssueStatusEvent) []IssueStatusEvent {
	out := make([]IssueStatusEvent, 0, len(events))
	for _, ev := range events {
		if ev.OccurredAt.IsZero() || ev.Status == IssueStatusNone {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}
