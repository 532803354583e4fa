package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/application"
	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeInvalidID           = "invalid_id"
	codeInvalidFilter       = "invalid_filter"
	codeInvalidToken        = "invalid_token"
	codeNotFound            = "not_found"
	codeFingerprintMismatch = "filter_fingerprint_mismatch"
	codeTokenExpired        = "token_expired"
	codeInternal            = "internal_error"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"internal_error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code, code
// and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ActivityItemResponse is the JSON representation of one feed entry.
type ActivityItemResponse struct {
	ID                   string               `json:"id"`
	Type                 string               `json:"type"`
	Number               int                  `json:"number"`
	RepositoryID         string               `json:"repository_id"`
	RepositoryName       string               `json:"repository_name"`
	AuthorID             string               `json:"author_id"`
	Title                string               `json:"title"`
	URL                  string               `json:"url"`
	Status               string               `json:"status"`
	AssigneeIDs          []string             `json:"assignee_ids"`
	ReviewerIDs          []string             `json:"reviewer_ids"`
	MentionedIDs         []string             `json:"mentioned_ids"`
	CommenterIDs         []string             `json:"commenter_ids"`
	ReactorIDs           []string             `json:"reactor_ids"`
	LabelKeys            []string             `json:"label_keys"`
	IssueTypeID          string               `json:"issue_type_id,omitempty"`
	IssueTypeName        string               `json:"issue_type_name,omitempty"`
	MilestoneID          string               `json:"milestone_id,omitempty"`
	MilestoneTitle       string               `json:"milestone_title,omitempty"`
	TrackedIssuesCount   int                  `json:"tracked_issues_count"`
	TrackedInIssuesCount int                  `json:"tracked_in_issues_count"`
	CreatedAt            string               `json:"created_at"`
	UpdatedAt            string               `json:"updated_at"`
	ClosedAt             string               `json:"closed_at,omitempty"`
	MergedAt             string               `json:"merged_at,omitempty"`
	Attention            []string             `json:"attention"`
	IssueStatus          *IssueStatusResponse `json:"issue_status,omitempty"`
}

// IssueStatusResponse is the JSON representation of a resolved issue status.
type IssueStatusResponse struct {
	DisplayStatus    string `json:"display_status"`
	Source           string `json:"source"`
	TodoStatus       string `json:"todo_status,omitempty"`
	TodoStatusAt     string `json:"todo_status_at,omitempty"`
	ActivityStatus   string `json:"activity_status,omitempty"`
	ActivityStatusAt string `json:"activity_status_at,omitempty"`
	Locked           bool   `json:"locked"`
	TimelineSource   string `json:"timeline_source"`
	StartedAt        string `json:"started_at,omitempty"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

// PageInfoResponse describes the page window returned by a list call.
type PageInfoResponse struct {
	Page           int    `json:"page"`
	PerPage        int    `json:"per_page"`
	RequestedPages int    `json:"requested_pages"`
	BufferedPages  int    `json:"buffered_pages"`
	HasMore        bool   `json:"has_more"`
	Token          string `json:"token"`
}

// CacheStateResponse is the JSON representation of a derived cache generation.
type CacheStateResponse struct {
	CacheKey    string `json:"cache_key"`
	SyncRunID   string `json:"sync_run_id"`
	ItemCount   int    `json:"item_count"`
	GeneratedAt string `json:"generated_at"`
}

// CacheMetadataResponse tells clients how fresh a page is.
type CacheMetadataResponse struct {
	AttentionGeneratedAt string                 `json:"attention_generated_at"`
	Caches               []CacheStateResponse   `json:"caches"`
	Automation           *model.AutomationState `json:"automation,omitempty"`
}

// ActivityPageResponse is the body of GET /api/v1/activity.
type ActivityPageResponse struct {
	Items         []ActivityItemResponse   `json:"items"`
	Prefetched    [][]ActivityItemResponse `json:"prefetched"`
	PageInfo      PageInfoResponse         `json:"page_info"`
	CacheMetadata CacheMetadataResponse    `json:"cache_metadata"`
}

// JumpEntryResponse is one page of the jump index.
type JumpEntryResponse struct {
	Page        int    `json:"page"`
	FirstItemID string `json:"first_item_id"`
	SortValue   string `json:"sort_value"`
}

// SummaryResponse is the body of GET /api/v1/activity/summary.
type SummaryResponse struct {
	TotalCount int                 `json:"total_count"`
	TotalPages int                 `json:"total_pages"`
	PerPage    int                 `json:"per_page"`
	JumpIndex  []JumpEntryResponse `json:"jump_index"`
}

// FilterOptionResponse is one selectable filter value.
type FilterOptionResponse struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	ItemCount int    `json:"item_count"`
}

// FilterOptionsResponse is the body of GET /api/v1/activity/filters.
type FilterOptionsResponse struct {
	Repositories []FilterOptionResponse `json:"repositories"`
	Labels       []FilterOptionResponse `json:"labels"`
	Users        []FilterOptionResponse `json:"users"`
	IssueTypes   []FilterOptionResponse `json:"issue_types"`
	Milestones   []FilterOptionResponse `json:"milestones"`
	ItemTypes    []string               `json:"item_types"`
	Statuses     []string               `json:"statuses"`
	Attention    []string               `json:"attention"`
	Sorts        []string               `json:"sorts"`
}

// CommentResponse is one comment on an item, with rendered HTML.
type CommentResponse struct {
	ID          string `json:"id"`
	AuthorID    string `json:"author_id"`
	AuthorLogin string `json:"author_login,omitempty"`
	Body        string `json:"body"`
	BodyHTML    string `json:"body_html"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// UserResponse is an account referenced by an item detail.
type UserResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	IsBot bool   `json:"is_bot"`
}

// LinkedItemResponse is a pull request or issue linked to the item.
type LinkedItemResponse struct {
	ID           string `json:"id"`
	Number       int    `json:"number"`
	RepositoryID string `json:"repository_id"`
	State        string `json:"state"`
}

// ProjectOverrideResponse holds manual project fields for an issue.
type ProjectOverrideResponse struct {
	Priority   string `json:"priority,omitempty"`
	Weight     *int   `json:"weight,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	TargetDate string `json:"target_date,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// ReviewRequestResponse is a pending review request past its threshold.
type ReviewRequestResponse struct {
	ReviewerID  string `json:"reviewer_id"`
	RequestedAt string `json:"requested_at"`
	WaitingDays int    `json:"waiting_days"`
}

// MentionResponse is an unanswered or suppressed mention.
type MentionResponse struct {
	CommentID           string `json:"comment_id"`
	TargetID            string `json:"target_id"`
	AuthorID            string `json:"author_id"`
	MentionedAt         string `json:"mentioned_at"`
	WaitingDays         int    `json:"waiting_days"`
	RequiresResponse    *bool  `json:"requires_response,omitempty"`
	Override            string `json:"override,omitempty"`
	ManualDecisionStale bool   `json:"manual_decision_stale"`
}

// PayloadLabelResponse is a label decoded from the raw GitHub payload.
type PayloadLabelResponse struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// PayloadResponse carries fields only present in the raw GitHub payload.
type PayloadResponse struct {
	HTMLURL         string                 `json:"html_url,omitempty"`
	Labels          []PayloadLabelResponse `json:"labels"`
	MilestoneTitle  string                 `json:"milestone_title,omitempty"`
	MilestoneDueOn  string                 `json:"milestone_due_on,omitempty"`
	Locked          bool                   `json:"locked"`
	StateReason     string                 `json:"state_reason,omitempty"`
	Draft           bool                   `json:"draft"`
	HeadRef         string                 `json:"head_ref,omitempty"`
	BaseRef         string                 `json:"base_ref,omitempty"`
	Additions       int                    `json:"additions"`
	Deletions       int                    `json:"deletions"`
	ChangedFiles    int                    `json:"changed_files"`
	ReactionTotal   int                    `json:"reaction_total"`
	ReactionsByKind map[string]int         `json:"reactions_by_kind,omitempty"`
}

// ItemDetailResponse is the body of GET /api/v1/activity/items/{id}.
type ItemDetailResponse struct {
	Item               ActivityItemResponse     `json:"item"`
	Body               string                   `json:"body"`
	BodyHTML           string                   `json:"body_html"`
	Comments           []CommentResponse        `json:"comments"`
	Users              []UserResponse           `json:"users"`
	LinkedPullRequests []LinkedItemResponse     `json:"linked_pull_requests"`
	LinkedIssues       []LinkedItemResponse     `json:"linked_issues"`
	ProjectOverride    *ProjectOverrideResponse `json:"project_override,omitempty"`
	ReviewRequests     []ReviewRequestResponse  `json:"review_requests"`
	Mentions           []MentionResponse        `json:"mentions"`
	SuppressedMentions []MentionResponse        `json:"suppressed_mentions"`
	Payload            *PayloadResponse         `json:"payload,omitempty"`
}

// AutomationResponse is the body of POST /api/v1/activity/automation.
type AutomationResponse struct {
	Processed          bool                   `json:"processed"`
	RunID              string                 `json:"run_id,omitempty"`
	InsertedInProgress int                    `json:"inserted_in_progress"`
	InsertedDone       int                    `json:"inserted_done"`
	State              *model.AutomationState `json:"state,omitempty"`
}

// CacheRefreshResponse is the body of POST /api/v1/activity/caches/refresh.
type CacheRefreshResponse struct {
	SyncRunID  string         `json:"sync_run_id"`
	Refreshed  []string       `json:"refreshed"`
	ItemCounts map[string]int `json:"item_counts"`
}

// MentionDecisionRequest is the body of PUT /api/v1/activity/mentions/{commentID}/{userID}.
type MentionDecisionRequest struct {
	Decision  string `json:"decision"`
	DecidedBy string `json:"decided_by"`
}

// MentionDecisionResponse echoes a stored mention decision.
type MentionDecisionResponse struct {
	CommentID    string `json:"comment_id"`
	TargetUserID string `json:"target_user_id"`
	Decision     string `json:"decision"`
	DecidedBy    string `json:"decided_by"`
	DecidedAt    string `json:"decided_at"`
}

// HealthResponse is the JSON response for the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}

// --- Conversion helpers ---

// nonNil keeps empty lists as [] rather than null in responses.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toActivityItemResponse(v application.ActivityItemView) ActivityItemResponse {
	resp := ActivityItemResponse{
		ID:                   v.ID,
		Type:                 string(v.Type),
		Number:               v.Number,
		RepositoryID:         v.RepositoryID,
		RepositoryName:       v.RepositoryName,
		AuthorID:             v.AuthorID,
		Title:                v.Title,
		URL:                  v.URL,
		Status:               string(v.Status),
		AssigneeIDs:          nonNil(v.AssigneeIDs),
		ReviewerIDs:          nonNil(v.ReviewerIDs),
		MentionedIDs:         nonNil(v.MentionedIDs),
		CommenterIDs:         nonNil(v.CommenterIDs),
		ReactorIDs:           nonNil(v.ReactorIDs),
		LabelKeys:            nonNil(v.LabelKeys),
		IssueTypeID:          v.IssueTypeID,
		IssueTypeName:        v.IssueTypeName,
		MilestoneID:          v.MilestoneID,
		MilestoneTitle:       v.MilestoneTitle,
		TrackedIssuesCount:   v.TrackedIssuesCount,
		TrackedInIssuesCount: v.TrackedInIssuesCount,
		CreatedAt:            formatTime(v.CreatedAt),
		UpdatedAt:            formatTime(v.UpdatedAt),
		ClosedAt:             formatTime(v.ClosedAt),
		MergedAt:             formatTime(v.MergedAt),
		Attention:            make([]string, 0, len(v.Attention)),
	}
	for _, a := range v.Attention {
		resp.Attention = append(resp.Attention, string(a))
	}
	if s := v.IssueStatus; s != nil {
		resp.IssueStatus = &IssueStatusResponse{
			DisplayStatus:    string(s.DisplayStatus),
			Source:           string(s.Source),
			TodoStatus:       string(s.TodoStatus),
			TodoStatusAt:     formatTime(s.TodoStatusAt),
			ActivityStatus:   string(s.ActivityStatus),
			ActivityStatusAt: formatTime(s.ActivityStatusAt),
			Locked:           s.Locked,
			TimelineSource:   string(s.TimelineSource),
			StartedAt:        formatTime(s.StartedAt),
			CompletedAt:      formatTime(s.CompletedAt),
		}
	}
	return resp
}

func toActivityItemResponses(views []application.ActivityItemView) []ActivityItemResponse {
	out := make([]ActivityItemResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toActivityItemResponse(v))
	}
	return out
}

func toActivityPageResponse(p application.ActivityPage) ActivityPageResponse {
	resp := ActivityPageResponse{
		Items:      toActivityItemResponses(p.Items),
		Prefetched: make([][]ActivityItemResponse, 0, len(p.Prefetched)),
		PageInfo: PageInfoResponse{
			Page:           p.PageInfo.Page,
			PerPage:        p.PageInfo.PerPage,
			RequestedPages: p.PageInfo.RequestedPages,
			BufferedPages:  p.PageInfo.BufferedPages,
			HasMore:        p.PageInfo.HasMore,
			Token:          p.PageInfo.Token,
		},
		CacheMetadata: CacheMetadataResponse{
			AttentionGeneratedAt: formatTime(p.CacheMetadata.AttentionGeneratedAt),
			Caches:               make([]CacheStateResponse, 0, len(p.CacheMetadata.Caches)),
			Automation:           p.CacheMetadata.Automation,
		},
	}
	for _, page := range p.Prefetched {
		resp.Prefetched = append(resp.Prefetched, toActivityItemResponses(page))
	}
	for _, c := range p.CacheMetadata.Caches {
		resp.CacheMetadata.Caches = append(resp.CacheMetadata.Caches, CacheStateResponse{
			CacheKey:    c.CacheKey,
			SyncRunID:   c.SyncRunID,
			ItemCount:   c.ItemCount,
			GeneratedAt: formatTime(c.GeneratedAt),
		})
	}
	return resp
}

func toSummaryResponse(s application.ActivitySummary) SummaryResponse {
	resp := SummaryResponse{
		TotalCount: s.TotalCount,
		TotalPages: s.TotalPages,
		PerPage:    s.PerPage,
		JumpIndex:  make([]JumpEntryResponse, 0, len(s.JumpIndex)),
	}
	for _, j := range s.JumpIndex {
		resp.JumpIndex = append(resp.JumpIndex, JumpEntryResponse{
			Page:        j.Page,
			FirstItemID: j.FirstItemID,
			SortValue:   formatTime(j.SortValue),
		})
	}
	return resp
}

func toFilterOptionResponses(opts []model.FilterOption) []FilterOptionResponse {
	out := make([]FilterOptionResponse, 0, len(opts))
	for _, o := range opts {
		out = append(out, FilterOptionResponse{Value: o.Value, Label: o.Label, ItemCount: o.ItemCount})
	}
	return out
}

func toFilterOptionsResponse(o application.FilterOptions) FilterOptionsResponse {
	resp := FilterOptionsResponse{
		Repositories: toFilterOptionResponses(o.Repositories),
		Labels:       toFilterOptionResponses(o.Labels),
		Users:        toFilterOptionResponses(o.Users),
		IssueTypes:   toFilterOptionResponses(o.IssueTypes),
		Milestones:   toFilterOptionResponses(o.Milestones),
		ItemTypes:    make([]string, 0, len(o.ItemTypes)),
		Statuses:     nonNil(o.Statuses),
		Attention:    make([]string, 0, len(o.Attention)),
		Sorts:        make([]string, 0, len(o.Sorts)),
	}
	for _, t := range o.ItemTypes {
		resp.ItemTypes = append(resp.ItemTypes, string(t))
	}
	for _, a := range o.Attention {
		resp.Attention = append(resp.Attention, string(a))
	}
	for _, s := range o.Sorts {
		resp.Sorts = append(resp.Sorts, string(s))
	}
	return resp
}

func toLinkedItemResponses(links []model.LinkedItem) []LinkedItemResponse {
	out := make([]LinkedItemResponse, 0, len(links))
	for _, l := range links {
		out = append(out, LinkedItemResponse{ID: l.ID, Number: l.Number, RepositoryID: l.RepositoryID, State: l.State})
	}
	return out
}

func toMentionResponses(mentions []model.MentionDetail) []MentionResponse {
	out := make([]MentionResponse, 0, len(mentions))
	for _, m := range mentions {
		out = append(out, MentionResponse{
			CommentID:           m.CommentID,
			TargetID:            m.TargetID,
			AuthorID:            m.AuthorID,
			MentionedAt:         formatTime(m.MentionedAt),
			WaitingDays:         m.WaitingDays,
			RequiresResponse:    m.RequiresResponse,
			Override:            string(m.Override),
			ManualDecisionStale: m.ManualDecisionStale,
		})
	}
	return out
}

func toPayloadResponse(p *application.ItemPayload) *PayloadResponse {
	if p == nil {
		return nil
	}
	resp := &PayloadResponse{
		HTMLURL:         p.HTMLURL,
		Labels:          make([]PayloadLabelResponse, 0, len(p.Labels)),
		MilestoneTitle:  p.MilestoneTitle,
		MilestoneDueOn:  formatTime(p.MilestoneDueOn),
		Locked:          p.Locked,
		StateReason:     p.StateReason,
		Draft:           p.Draft,
		HeadRef:         p.HeadRef,
		BaseRef:         p.BaseRef,
		Additions:       p.Additions,
		Deletions:       p.Deletions,
		ChangedFiles:    p.ChangedFiles,
		ReactionTotal:   p.ReactionTotal,
		ReactionsByKind: p.ReactionsByKind,
	}
	for _, l := range p.Labels {
		resp.Labels = append(resp.Labels, PayloadLabelResponse{Name: l.Name, Color: l.Color, Description: l.Description})
	}
	return resp
}

// toItemDetailResponse renders bodies to sanitized HTML and flattens the user
// map into a list ordered by first reference.
func toItemDetailResponse(d application.ItemDetail) ItemDetailResponse {
	resp := ItemDetailResponse{
		Item:               toActivityItemResponse(d.Item),
		Body:               d.Item.Body,
		BodyHTML:           renderMarkdown(d.Item.Body),
		Comments:           make([]CommentResponse, 0, len(d.Comments)),
		Users:              make([]UserResponse, 0, len(d.Users)),
		LinkedPullRequests: toLinkedItemResponses(d.LinkedPullRequests),
		LinkedIssues:       toLinkedItemResponses(d.LinkedIssues),
		ReviewRequests:     make([]ReviewRequestResponse, 0, len(d.ReviewRequests)),
		Mentions:           toMentionResponses(d.Mentions),
		SuppressedMentions: toMentionResponses(d.SuppressedMentions),
		Payload:            toPayloadResponse(d.Payload),
	}

	seen := make(map[string]bool, len(d.Users))
	addUser := func(id string) {
		u, ok := d.Users[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		resp.Users = append(resp.Users, UserResponse{ID: u.ID, Login: u.Login, Name: u.Name, IsBot: u.IsBot})
	}
	addUser(d.Item.AuthorID)

	for _, c := range d.Comments {
		resp.Comments = append(resp.Comments, CommentResponse{
			ID:          c.ID,
			AuthorID:    c.AuthorID,
			AuthorLogin: d.Users[c.AuthorID].Login,
			Body:        c.Body,
			BodyHTML:    renderMarkdown(c.Body),
			CreatedAt:   formatTime(c.CreatedAt),
			UpdatedAt:   formatTime(c.UpdatedAt),
		})
		addUser(c.AuthorID)
	}
	for _, id := range d.Item.AssigneeIDs {
		addUser(id)
	}
	for _, id := range d.Item.ReviewerIDs {
		addUser(id)
	}
	for _, r := range d.ReviewRequests {
		resp.ReviewRequests = append(resp.ReviewRequests, ReviewRequestResponse{
			ReviewerID:  r.ReviewerID,
			RequestedAt: formatTime(r.RequestedAt),
			WaitingDays: r.WaitingDays,
		})
		addUser(r.ReviewerID)
	}
	for _, m := range d.Mentions {
		addUser(m.AuthorID)
		addUser(m.TargetID)
	}

	if o := d.ProjectOverride; o != nil {
		resp.ProjectOverride = &ProjectOverrideResponse{
			Priority:   o.Priority,
			Weight:     o.Weight,
			StartDate:  o.StartDate,
			TargetDate: o.TargetDate,
			UpdatedAt:  formatTime(o.UpdatedAt),
		}
	}
	return resp
}

func toMentionDecisionResponse(o model.MentionOverride) MentionDecisionResponse {
	return MentionDecisionResponse{
		CommentID:    o.CommentID,
		TargetUserID: o.TargetUserID,
		Decision:     string(o.Decision),
		DecidedBy:    o.DecidedBy,
		DecidedAt:    formatTime(o.DecidedAt),
	}
}
