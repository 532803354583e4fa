package httphandler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/application"
	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// parseFilter reads an activity filter from query parameters. List parameters
// accept comma-separated values, repeated keys, or both.
func parseFilter(q url.Values) (model.ActivityFilter, error) {
	f := model.ActivityFilter{
		RepositoryIDs: listParam(q, "repository"),
		LabelKeys:     listParam(q, "label"),
		IssueTypeIDs:  listParam(q, "issue_type"),
		MilestoneIDs:  listParam(q, "milestone"),
		Statuses:      listParam(q, "status"),
		People: model.PeopleFilters{
			AuthorIDs:     listParam(q, "author"),
			AssigneeIDs:   listParam(q, "assignee"),
			ReviewerIDs:   listParam(q, "reviewer"),
			MentionedIDs:  listParam(q, "mentioned"),
			CommenterIDs:  listParam(q, "commenter"),
			ReactorIDs:    listParam(q, "reactor"),
			MaintainerIDs: listParam(q, "maintainer"),
		},
		Search:   strings.TrimSpace(q.Get("q")),
		ViewerID: q.Get("viewer"),
		Sort:     model.SortOrder(q.Get("sort")),
	}
	for _, t := range listParam(q, "type") {
		f.Types = append(f.Types, model.ItemType(t))
	}
	for _, a := range listParam(q, "attention") {
		f.Attention = append(f.Attention, model.AttentionCategory(a))
	}

	var err error
	if f.UpdatedFrom, err = timeParam(q, "updated_from"); err != nil {
		return model.ActivityFilter{}, err
	}
	if f.UpdatedTo, err = timeParam(q, "updated_to"); err != nil {
		return model.ActivityFilter{}, err
	}
	if f.MyTodo, err = boolParam(q, "my_todo"); err != nil {
		return model.ActivityFilter{}, err
	}
	if f.UseMentionClassifier, err = boolParam(q, "use_mention_classifier"); err != nil {
		return model.ActivityFilter{}, err
	}

	thresholds := []struct {
		name string
		dst  *int
	}{
		{"stale_pr_days", &f.Thresholds.StalePRDays},
		{"idle_pr_days", &f.Thresholds.IdlePRDays},
		{"review_request_days", &f.Thresholds.ReviewRequestDays},
		{"backlog_issue_days", &f.Thresholds.BacklogIssueDays},
		{"stalled_issue_days", &f.Thresholds.StalledIssueDays},
		{"unanswered_mention_days", &f.Thresholds.UnansweredMentionDays},
	}
	for _, th := range thresholds {
		if *th.dst, err = intParam(q, th.name); err != nil {
			return model.ActivityFilter{}, err
		}
	}
	return f, nil
}

// parsePagination reads page, per_page and prefetch_pages. Missing or zero
// values fall back to defaults in Pagination.Normalize.
func parsePagination(q url.Values) (model.Pagination, error) {
	var p model.Pagination
	var err error
	if p.Page, err = intParam(q, "page"); err != nil {
		return model.Pagination{}, err
	}
	if p.PerPage, err = intParam(q, "per_page"); err != nil {
		return model.Pagination{}, err
	}
	if p.PrefetchPages, err = intParam(q, "prefetch_pages"); err != nil {
		return model.Pagination{}, err
	}
	return p, nil
}

func listParam(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func intParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", application.ErrInvalidFilter, key)
	}
	return n, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", application.ErrInvalidFilter, key)
	}
	return b, nil
}

// timeParam accepts RFC 3339 timestamps and bare YYYY-MM-DD dates (UTC midnight).
func timeParam(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp or date", application.ErrInvalidFilter, key)
}
