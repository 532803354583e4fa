package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// DefaultQueryTimeout bounds every read operation of the activity service.
const DefaultQueryTimeout = 15 * time.Second

// itemIDPattern matches GitHub node IDs.
var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]{1,128}$`)

// ActivityItemView is an activity item annotated with its attention flags and,
// for issues, its resolved lifecycle status.
type ActivityItemView struct {
	model.ActivityItem
	Attention   []model.AttentionCategory
	IssueStatus *model.IssueStatusResolution
}

// CacheMetadata tells callers how fresh the data behind a page is.
type CacheMetadata struct {
	AttentionGeneratedAt time.Time
	Caches               []model.CacheState
	Automation           *model.AutomationState
}

// ActivityPage is the result of one list call: the requested page plus the
// prefetched pages that follow it.
type ActivityPage struct {
	Items         []ActivityItemView
	Prefetched    [][]ActivityItemView
	PageInfo      model.PageInfo
	CacheMetadata CacheMetadata
}

// ActivitySummary is the result of a summary call.
type ActivitySummary struct {
	TotalCount int
	TotalPages int
	PerPage    int
	JumpIndex  []model.JumpEntry
}

// FilterOptions enumerates every selectable filter value.
type FilterOptions struct {
	Repositories []model.FilterOption
	Labels       []model.FilterOption
	Users        []model.FilterOption
	IssueTypes   []model.FilterOption
	Milestones   []model.FilterOption
	ItemTypes    []model.ItemType
	Statuses     []string
	Attention    []model.AttentionCategory
	Sorts        []model.SortOrder
}

// ItemDetail is everything shown for a single item.
type ItemDetail struct {
	Item               ActivityItemView
	Comments           []model.ItemComment
	Users              map[string]model.User
	LinkedPullRequests []model.LinkedItem
	LinkedIssues       []model.LinkedItem
	ProjectOverride    *model.ProjectOverride
	ReviewRequests     []model.ReviewRequestDetail
	Mentions           []model.MentionDetail
	SuppressedMentions []model.MentionDetail
	Payload            *ItemPayload
}

// ActivityServiceOptions tunes an ActivityService.
type ActivityServiceOptions struct {
	QueryTimeout      time.Duration
	DefaultThresholds model.AttentionThresholds
}

// ActivityService serves the activity feed: paged lists with prefetch tokens,
// summaries, item detail and filter options.
type ActivityService struct {
	store      driven.ActivityStore
	derived    driven.DerivedCacheStore
	syncStore  driven.SyncConfigStore
	resolver   *StatusResolver
	attention  *AttentionService
	caches     *CacheService
	automation *AutomationService
	tokens     *TokenSigner
	timeout    time.Duration
	thresholds model.AttentionThresholds
	now        func() time.Time
	logger     *slog.Logger
}

// NewActivityService creates a new ActivityService. automation may be nil, in
// which case read paths do not trigger the status automation job.
func NewActivityService(
	store driven.ActivityStore,
	derived driven.DerivedCacheStore,
	syncStore driven.SyncConfigStore,
	resolver *StatusResolver,
	attention *AttentionService,
	caches *CacheService,
	automation *AutomationService,
	tokens *TokenSigner,
	opts ActivityServiceOptions,
) *ActivityService {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &ActivityService{
		store:      store,
		derived:    derived,
		syncStore:  syncStore,
		resolver:   resolver,
		attention:  attention,
		caches:     caches,
		automation: automation,
		tokens:     tokens,
		timeout:    opts.QueryTimeout,
		thresholds: opts.DefaultThresholds.Normalize(),
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// ListActivityItems returns the requested page and up to PrefetchPages-1
// following pages, with a token for the matching summary call.
func (s *ActivityService) ListActivityItems(ctx context.Context, f model.ActivityFilter, p model.Pagination) (ActivityPage, error) {
	if err := f.Validate(); err != nil {
		return ActivityPage{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	p = p.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.automation != nil {
		if _, err := s.automation.Ensure(ctx, TriggerRead, false); err != nil {
			s.logger.Warn("status automation failed on read", "error", err)
		}
	}

	cfg, sets, q, err := s.prepare(ctx, f)
	if err != nil {
		return ActivityPage{}, err
	}

	window := p.PerPage * p.PrefetchPages
	q.Offset = p.Offset()
	q.Limit = window + 1
	items, err := s.store.ListItems(ctx, q)
	if err != nil {
		return ActivityPage{}, fmt.Errorf("list activity items: %w", err)
	}

	hasMore := len(items) > window
	if hasMore {
		items = items[:window]
	}
	buffered := (len(items) + p.PerPage - 1) / p.PerPage

	views, err := s.annotate(ctx, items, sets, cfg)
	if err != nil {
		return ActivityPage{}, err
	}

	fp, err := FilterFingerprint(f, p.PerPage)
	if err != nil {
		return ActivityPage{}, err
	}
	tok, err := s.tokens.Issue(model.PrefetchToken{
		FilterFingerprint: fp,
		Page:              p.Page,
		PerPage:           p.PerPage,
		RequestedPages:    p.PrefetchPages,
		BufferedPages:     buffered,
	})
	if err != nil {
		return ActivityPage{}, err
	}

	page := ActivityPage{
		Items: []ActivityItemView{},
		PageInfo: model.PageInfo{
			Page:           p.Page,
			PerPage:        p.PerPage,
			RequestedPages: p.PrefetchPages,
			BufferedPages:  buffered,
			HasMore:        hasMore,
			Token:          tok.Token,
		},
		CacheMetadata: s.cacheMetadata(ctx, sets),
	}
	for start := 0; start < len(views); start += p.PerPage {
		chunk := views[start:min(start+p.PerPage, len(views))]
		if start == 0 {
			page.Items = chunk
			continue
		}
		page.Prefetched = append(page.Prefetched, chunk)
	}
	return page, nil
}

// GetSummary returns totals and the jump index for the filter a list call was
// made with. The token must come from that list call and still be fresh.
func (s *ActivityService) GetSummary(ctx context.Context, token string, f model.ActivityFilter, page int) (ActivitySummary, error) {
	tok, err := s.tokens.Verify(token)
	if err != nil {
		return ActivitySummary{}, err
	}
	if err := f.Validate(); err != nil {
		return ActivitySummary{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	fp, err := FilterFingerprint(f, tok.PerPage)
	if err != nil {
		return ActivitySummary{}, err
	}
	if page <= 0 {
		page = tok.Page
	}
	if fp != tok.FilterFingerprint || page != tok.Page {
		return ActivitySummary{}, ErrFingerprintMismatch
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, _, q, err := s.prepare(ctx, f)
	if err != nil {
		return ActivitySummary{}, err
	}
	total, err := s.store.CountItems(ctx, q)
	if err != nil {
		return ActivitySummary{}, fmt.Errorf("count activity items: %w", err)
	}
	jump, err := s.store.JumpIndex(ctx, q, tok.PerPage)
	if err != nil {
		return ActivitySummary{}, fmt.Errorf("build jump index: %w", err)
	}
	return ActivitySummary{
		TotalCount: total,
		TotalPages: (total + tok.PerPage - 1) / tok.PerPage,
		PerPage:    tok.PerPage,
		JumpIndex:  jump,
	}, nil
}

// GetItemDetail returns one item with its comments, links, status and
// attention details. Stale link caches are rebuilt first; a failed rebuild is
// logged and the previous generation is served.
func (s *ActivityService) GetItemDetail(ctx context.Context, id string) (ItemDetail, error) {
	if !itemIDPattern.MatchString(id) {
		return ItemDetail{}, ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return ItemDetail{}, fmt.Errorf("get item %s: %w", id, err)
	}
	if item == nil {
		return ItemDetail{}, ErrNotFound
	}

	cfg, err := s.syncStore.GetSyncConfig(ctx)
	if err != nil {
		return ItemDetail{}, fmt.Errorf("get sync config: %w", err)
	}
	sets, err := s.attention.Compute(ctx, AttentionOptions{Now: s.now(), Thresholds: s.thresholds})
	if err != nil {
		return ItemDetail{}, err
	}
	views, err := s.annotate(ctx, []model.ActivityItem{*item}, sets, cfg)
	if err != nil {
		return ItemDetail{}, err
	}

	detail := ItemDetail{Item: views[0]}

	if detail.Comments, err = s.store.ListComments(ctx, id); err != nil {
		return ItemDetail{}, fmt.Errorf("list comments: %w", err)
	}

	if item.Type == model.ItemTypeIssue || item.Type == model.ItemTypePullRequest {
		if _, err := s.caches.Ensure(ctx, false); err != nil {
			s.logger.Warn("link cache refresh failed, serving previous generation", "item_id", id, "error", err)
		}
	}

	switch item.Type {
	case model.ItemTypeIssue:
		if detail.LinkedPullRequests, err = s.derived.ListLinkedPullRequests(ctx, id); err != nil {
			return ItemDetail{}, fmt.Errorf("list linked pull requests: %w", err)
		}
		if detail.ProjectOverride, err = s.store.GetProjectOverride(ctx, id); err != nil {
			return ItemDetail{}, fmt.Errorf("get project override: %w", err)
		}
	case model.ItemTypePullRequest:
		if detail.LinkedIssues, err = s.derived.ListLinkedIssues(ctx, id); err != nil {
			return ItemDetail{}, fmt.Errorf("list linked issues: %w", err)
		}
	}

	raw, err := s.store.GetRawPayload(ctx, id)
	if err != nil {
		return ItemDetail{}, fmt.Errorf("get raw payload: %w", err)
	}
	detail.Payload = DecodeItemPayload(item.Type, raw)

	for _, r := range sets.StuckReviewRequests {
		if r.PullRequestID == id {
			detail.ReviewRequests = append(detail.ReviewRequests, r)
		}
	}
	for _, m := range sets.UnansweredMentions {
		if m.SubjectID == id {
			detail.Mentions = append(detail.Mentions, m)
		}
	}
	for _, m := range sets.SuppressedMentions {
		if m.SubjectID == id {
			detail.SuppressedMentions = append(detail.SuppressedMentions, m)
		}
	}

	if detail.Users, err = s.users(ctx, item, detail); err != nil {
		return ItemDetail{}, err
	}
	return detail, nil
}

// GetFilterOptions returns every selectable filter value. A failed cache
// refresh is logged and the previous generation is served.
func (s *ActivityService) GetFilterOptions(ctx context.Context) (FilterOptions, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.caches.Ensure(ctx, false); err != nil {
		s.logger.Warn("derived cache refresh failed, serving previous generation", "error", err)
	}

	options, err := s.derived.ListFilterOptions(ctx)
	if err != nil {
		return FilterOptions{}, fmt.Errorf("list filter options: %w", err)
	}

	out := FilterOptions{
		ItemTypes: []model.ItemType{model.ItemTypeIssue, model.ItemTypePullRequest, model.ItemTypeDiscussion},
		Statuses: []string{
			string(model.ItemStatusOpen), string(model.ItemStatusClosed), string(model.ItemStatusMerged),
		},
		Attention: append(append([]model.AttentionCategory{}, model.AttentionCategories...), model.AttentionNone),
		Sorts:     []model.SortOrder{model.SortUpdatedDesc, model.SortUpdatedAsc, model.SortCreatedDesc, model.SortCreatedAsc},
	}
	for _, ps := range model.ProjectStatuses {
		out.Statuses = append(out.Statuses, string(ps))
	}
	for _, o := range options {
		switch o.Kind {
		case model.FilterOptionRepository:
			out.Repositories = append(out.Repositories, o)
		case model.FilterOptionLabel:
			out.Labels = append(out.Labels, o)
		case model.FilterOptionUser:
			out.Users = append(out.Users, o)
		case model.FilterOptionIssueType:
			out.IssueTypes = append(out.IssueTypes, o)
		case model.FilterOptionMilestone:
			out.Milestones = append(out.Milestones, o)
		}
	}
	return out, nil
}

// prepare loads the sync configuration, computes attention sets for the
// filter's thresholds and assembles the store query.
func (s *ActivityService) prepare(ctx context.Context, f model.ActivityFilter) (model.SyncConfig, model.AttentionSets, driven.ActivityQuery, error) {
	cfg, err := s.syncStore.GetSyncConfig(ctx)
	if err != nil {
		return model.SyncConfig{}, model.AttentionSets{}, driven.ActivityQuery{}, fmt.Errorf("get sync config: %w", err)
	}

	sets, err := s.attention.Compute(ctx, AttentionOptions{
		Now:                  s.now(),
		Thresholds:           s.thresholds.Merge(f.Thresholds),
		UseMentionClassifier: f.UseMentionClassifier,
	})
	if err != nil {
		return model.SyncConfig{}, model.AttentionSets{}, driven.ActivityQuery{}, fmt.Errorf("compute attention: %w", err)
	}

	q := driven.ActivityQuery{
		Filter:                f,
		Attention:             sets,
		ExcludedRepositoryIDs: cfg.ExcludedRepositoryIDs,
	}
	if _, project := f.SplitStatuses(); len(project) > 0 {
		q.ProjectStatusIDs, err = s.resolver.IDsByDisplayStatus(ctx, project, cfg.TargetProject)
		if err != nil {
			return model.SyncConfig{}, model.AttentionSets{}, driven.ActivityQuery{}, fmt.Errorf("resolve issue statuses: %w", err)
		}
	}
	return cfg, sets, q, nil
}

// annotate attaches attention flags and resolved issue status to items.
func (s *ActivityService) annotate(ctx context.Context, items []model.ActivityItem, sets model.AttentionSets, cfg model.SyncConfig) ([]ActivityItemView, error) {
	var issueIDs []string
	for _, it := range items {
		if it.Type == model.ItemTypeIssue {
			issueIDs = append(issueIDs, it.ID)
		}
	}
	statuses, err := s.resolver.ResolveByIDs(ctx, issueIDs, cfg.TargetProject)
	if err != nil {
		return nil, fmt.Errorf("resolve issue statuses: %w", err)
	}

	views := make([]ActivityItemView, 0, len(items))
	for _, it := range items {
		v := ActivityItemView{ActivityItem: it, Attention: sets.Flags(it.ID)}
		if res, ok := statuses[it.ID]; ok {
			v.IssueStatus = &res
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *ActivityService) cacheMetadata(ctx context.Context, sets model.AttentionSets) CacheMetadata {
	meta := CacheMetadata{AttentionGeneratedAt: sets.GeneratedAt}

	states, err := s.caches.States(ctx)
	if err != nil {
		s.logger.Warn("failed to read cache states", "error", err)
	}
	meta.Caches = states

	if s.automation != nil {
		st, err := s.automation.State(ctx)
		if err != nil {
			s.logger.Warn("failed to read automation state", "error", err)
		}
		meta.Automation = st
	}
	return meta
}

// users loads every account referenced by an item detail.
func (s *ActivityService) users(ctx context.Context, item *model.ActivityItem, detail ItemDetail) (map[string]model.User, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(list ...string) {
		for _, id := range list {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	add(item.AuthorID)
	add(item.AssigneeIDs...)
	add(item.ReviewerIDs...)
	for _, c := range detail.Comments {
		add(c.AuthorID)
	}
	for _, m := range detail.Mentions {
		add(m.TargetID, m.AuthorID)
	}
	for _, r := range detail.ReviewRequests {
		add(r.ReviewerID)
	}

	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.store.ListUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// IsClientError reports whether err is one of the input or consistency
// errors callers can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidID) || errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrFingerprintMismatch) ||
		errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrNotFound)
}
