package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// AttentionInput is everything the attention rules read. All records are
// expected to be open items; closed ones are ignored where it matters.
type AttentionInput struct {
	Now                  time.Time
	Thresholds           model.AttentionThresholds
	Calendar             Calendar
	UseMentionClassifier bool

	PullRequests    []model.PullRequestRecord
	ReviewRequests  []model.ReviewRequestRecord
	Issues          []model.IssueRecord
	IssueStatuses   map[string]model.IssueStatusResolution
	Comments        []model.CommentRecord
	Users           []model.User
	Responses       []model.UserResponse
	Maintainers     map[string][]string
	Overrides       []model.MentionOverride
	Classifications []model.MentionClassification

	ExcludedRepositoryIDs []string
	ExcludedUserIDs       []string
}

// PendingMention is a mention of a user that the user has not answered yet.
type PendingMention struct {
	Comment     model.CommentRecord
	TargetID    string
	TargetLogin string
	AuthorLogin string
}

// Key identifies the mention for overrides and classifications.
func (m PendingMention) Key() model.MentionKey {
	return model.MentionKey{CommentID: m.Comment.ID, TargetUserID: m.TargetID}
}

// responseIndex maps (subject, user) to the user's latest response time.
type responseIndex map[[2]string]time.Time

func indexResponses(responses []model.UserResponse) responseIndex {
	idx := make(responseIndex, len(responses))
	for _, r := range responses {
		k := [2]string{r.SubjectID, r.UserID}
		if r.At.After(idx[k]) {
			idx[k] = r.At
		}
	}
	return idx
}

// answered reports whether user responded on subject at or after since.
func (idx responseIndex) answered(subjectID, userID string, since time.Time) bool {
	at, ok := idx[[2]string{subjectID, userID}]
	return ok && !at.Before(since)
}

func stringSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// FindUnansweredMentions extracts mentions from comments and keeps the ones
// the mentioned user has not answered. Self-mentions, bots, unknown logins and
// excluded users are skipped.
func FindUnansweredMentions(comments []model.CommentRecord, users []model.User, responses []model.UserResponse, excludedUserIDs []string) []PendingMention {
	byLogin := make(map[string]model.User, len(users))
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byLogin[strings.ToLower(u.Login)] = u
		byID[u.ID] = u
	}
	excluded := stringSet(excludedUserIDs)
	idx := indexResponses(responses)

	var out []PendingMention
	for _, c := range comments {
		if excluded[c.AuthorID] || byID[c.AuthorID].IsBot {
			continue
		}
		for _, login := range ExtractMentions(c.Body) {
			target, ok := byLogin[login]
			if !ok || target.IsBot || target.ID == c.AuthorID || excluded[target.ID] {
				continue
			}
			if idx.answered(c.SubjectID, target.ID, c.CreatedAt) {
				continue
			}
			out = append(out, PendingMention{
				Comment:     c,
				TargetID:    target.ID,
				TargetLogin: target.Login,
				AuthorLogin: byID[c.AuthorID].Login,
			})
		}
	}
	return out
}

// ComputeAttentionSets applies every attention rule to in. Thresholds are
// inclusive and measured in business days.
func ComputeAttentionSets(in AttentionInput) model.AttentionSets {
	th := in.Thresholds.Normalize()
	sets := model.AttentionSets{
		GeneratedAt: in.Now,
		Roles:       make(map[string]model.ItemRoles),
	}
	excludedRepos := stringSet(in.ExcludedRepositoryIDs)
	excludedUsers := stringSet(in.ExcludedUserIDs)
	idx := indexResponses(in.Responses)

	openPRs := make(map[string]bool, len(in.PullRequests))
	for _, pr := range in.PullRequests {
		if excludedRepos[pr.RepositoryID] || pr.State != string(model.ItemStatusOpen) {
			continue
		}
		openPRs[pr.ID] = true
		sets.Roles[pr.ID] = model.ItemRoles{
			Type:          model.ItemTypePullRequest,
			AuthorID:      pr.AuthorID,
			AssigneeIDs:   pr.AssigneeIDs,
			ReviewerIDs:   pr.ReviewerIDs,
			MaintainerIDs: in.Maintainers[pr.RepositoryID],
		}
		if age, ok := in.Calendar.BusinessDaysBetween(pr.CreatedAt, in.Now); ok && age >= th.StalePRDays {
			sets.StaleOpenPRs = append(sets.StaleOpenPRs, model.ItemAge{ItemID: pr.ID, Since: pr.CreatedAt, AgeDays: age, Threshold: th.StalePRDays})
		}
		if age, ok := in.Calendar.BusinessDaysBetween(pr.UpdatedAt, in.Now); ok && age >= th.IdlePRDays {
			sets.IdleOpenPRs = append(sets.IdleOpenPRs, model.ItemAge{ItemID: pr.ID, Since: pr.UpdatedAt, AgeDays: age, Threshold: th.IdlePRDays})
		}
	}

	var requests []model.ReviewRequestDetail
	for _, rr := range in.ReviewRequests {
		if !openPRs[rr.PullRequestID] || excludedUsers[rr.ReviewerID] {
			continue
		}
		if idx.answered(rr.PullRequestID, rr.ReviewerID, rr.RequestedAt) {
			continue
		}
		waiting, ok := in.Calendar.BusinessDaysBetween(rr.RequestedAt, in.Now)
		if !ok || waiting < th.ReviewRequestDays {
			continue
		}
		requests = append(requests, model.ReviewRequestDetail{
			PullRequestID: rr.PullRequestID,
			ReviewerID:    rr.ReviewerID,
			RequestedAt:   rr.RequestedAt,
			WaitingDays:   waiting,
		})
	}
	sets.StuckReviewRequests = DedupeReviewRequests(requests)

	for _, issue := range in.Issues {
		if excludedRepos[issue.RepositoryID] || issue.State != string(model.ItemStatusOpen) {
			continue
		}
		sets.Roles[issue.ID] = model.ItemRoles{
			Type:          model.ItemTypeIssue,
			AuthorID:      issue.AuthorID,
			AssigneeIDs:   issue.AssigneeIDs,
			MaintainerIDs: in.Maintainers[issue.RepositoryID],
		}

		res := in.IssueStatuses[issue.ID]
		switch {
		case res.StartedAt.IsZero() && (res.DisplayStatus == model.IssueStatusTodo ||
			res.DisplayStatus == model.IssueStatusNoStatus || res.DisplayStatus == model.IssueStatusNone):
			if age, ok := in.Calendar.BusinessDaysBetween(issue.CreatedAt, in.Now); ok && age >= th.BacklogIssueDays {
				sets.BacklogIssues = append(sets.BacklogIssues, model.ItemAge{ItemID: issue.ID, Since: issue.CreatedAt, AgeDays: age, Threshold: th.BacklogIssueDays})
			}
		case res.DisplayStatus == model.IssueStatusInProgress && !res.StartedAt.IsZero():
			if age, ok := in.Calendar.BusinessDaysBetween(res.StartedAt, in.Now); ok && age >= th.StalledIssueDays {
				sets.StalledInProgressIssues = append(sets.StalledInProgressIssues, model.ItemAge{ItemID: issue.ID, Since: res.StartedAt, AgeDays: age, Threshold: th.StalledIssueDays})
			}
		}
	}

	unanswered, suppressed := applyMentionRules(in, th)
	sets.UnansweredMentions = DedupeMentions(unanswered)
	sets.SuppressedMentions = DedupeMentions(suppressed)

	return sets
}

// applyMentionRules turns pending mentions into detail records. Manual
// decisions beat the classifier; clear falls through to it.
func applyMentionRules(in AttentionInput, th model.AttentionThresholds) (unanswered, suppressed []model.MentionDetail) {
	overrides := make(map[model.MentionKey]model.MentionOverride, len(in.Overrides))
	for _, o := range in.Overrides {
		overrides[model.MentionKey{CommentID: o.CommentID, TargetUserID: o.TargetUserID}] = o
	}
	verdicts := make(map[model.MentionKey]model.MentionClassification, len(in.Classifications))
	for _, c := range in.Classifications {
		verdicts[model.MentionKey{CommentID: c.CommentID, TargetUserID: c.TargetUserID}] = c
	}

	for _, m := range FindUnansweredMentions(in.Comments, in.Users, in.Responses, in.ExcludedUserIDs) {
		waiting, ok := in.Calendar.BusinessDaysBetween(m.Comment.CreatedAt, in.Now)
		if !ok || waiting < th.UnansweredMentionDays {
			continue
		}
		detail := model.MentionDetail{
			CommentID:   m.Comment.ID,
			SubjectID:   m.Comment.SubjectID,
			TargetID:    m.TargetID,
			AuthorID:    m.Comment.AuthorID,
			MentionedAt: m.Comment.CreatedAt,
			WaitingDays: waiting,
		}

		verdict, classified := verdicts[m.Key()]
		if classified {
			requires := verdict.RequiresResponse
			detail.RequiresResponse = &requires
		}
		override, decided := overrides[m.Key()]
		if decided && override.Decision != model.MentionDecisionClear {
			detail.Override = override.Decision
			detail.ManualDecisionStale = classified && override.DecidedAt.Before(verdict.ClassifiedAt)
		}

		switch detail.Override {
		case model.MentionDecisionSuppress:
			suppressed = append(suppressed, detail)
			continue
		case model.MentionDecisionForce:
		default:
			if in.UseMentionClassifier && classified && !verdict.RequiresResponse {
				continue
			}
		}
		unanswered = append(unanswered, detail)
	}
	return unanswered, suppressed
}

// DedupeReviewRequests collapses requests for the same (pull request,
// reviewer), keeping the longest wait. Requests without a reviewer are kept
// as-is.
func DedupeReviewRequests(in []model.ReviewRequestDetail) []model.ReviewRequestDetail {
	return dedupeByWaiting(in,
		func(r model.ReviewRequestDetail) (string, bool) {
			if r.PullRequestID == "" || r.ReviewerID == "" {
				return "", false
			}
			return r.PullRequestID + "|" + r.ReviewerID, true
		},
		func(r model.ReviewRequestDetail) int { return r.WaitingDays },
	)
}

// DedupeMentions collapses mentions for the same (comment, target), keeping
// the longest wait. Mentions without a comment or target are kept as-is.
func DedupeMentions(in []model.MentionDetail) []model.MentionDetail {
	return dedupeByWaiting(in,
		func(m model.MentionDetail) (string, bool) {
			if m.CommentID == "" || m.TargetID == "" {
				return "", false
			}
			return m.SubjectID + "|" + m.CommentID + "|" + m.TargetID, true
		},
		func(m model.MentionDetail) int { return m.WaitingDays },
	)
}

// dedupeByWaiting keeps one record per key, the one with the larger waiting
// value, at the position the key was first seen.
func dedupeByWaiting[T any](in []T, key func(T) (string, bool), waiting func(T) int) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, 0, len(in))
	pos := make(map[string]int, len(in))
	for _, rec := range in {
		k, ok := key(rec)
		if !ok {
			out = append(out, rec)
			continue
		}
		if i, seen := pos[k]; seen {
			if waiting(rec) > waiting(out[i]) {
				out[i] = rec
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// AttentionOptions are the per-call inputs of AttentionService.Compute.
type AttentionOptions struct {
	Now                  time.Time
	Thresholds           model.AttentionThresholds
	UseMentionClassifier bool
}

// AttentionService loads raw entities and computes attention sets. Results
// may be cached briefly through an AttentionCache.
type AttentionService struct {
	rawStore     driven.RawStore
	syncStore    driven.SyncConfigStore
	mentionStore driven.MentionStore
	resolver     *StatusResolver
	cache        driven.AttentionCache
	cacheTTL     time.Duration
	logger       *slog.Logger
}

// NewAttentionService creates a new AttentionService.
func NewAttentionService(
	rawStore driven.RawStore,
	syncStore driven.SyncConfigStore,
	mentionStore driven.MentionStore,
	resolver *StatusResolver,
) *AttentionService {
	return &AttentionService{
		rawStore:     rawStore,
		syncStore:    syncStore,
		mentionStore: mentionStore,
		resolver:     resolver,
		logger:       slog.Default(),
	}
}

// WithCache enables caching of computed sets for ttl. A nil cache or a
// non-positive ttl disables caching.
func (s *AttentionService) WithCache(cache driven.AttentionCache, ttl time.Duration) *AttentionService {
	if cache == nil || ttl <= 0 {
		s.cache = nil
		return s
	}
	s.cache = cache
	s.cacheTTL = ttl
	return s
}

// Calendar builds the business-day calendar from the sync configuration.
// An unknown timezone falls back to UTC.
func (s *AttentionService) Calendar(ctx context.Context, cfg model.SyncConfig) (Calendar, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			s.logger.Warn("unknown sync timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		} else {
			loc = l
		}
	}

	var holidays []string
	if len(cfg.HolidayCalendarCodes) > 0 {
		var err error
		holidays, err = s.syncStore.ListHolidayDates(ctx, cfg.HolidayCalendarCodes)
		if err != nil {
			return Calendar{}, fmt.Errorf("list holiday dates: %w", err)
		}
	}
	return NewCalendar(loc, holidays...), nil
}

// Compute returns the attention sets for opts.
func (s *AttentionService) Compute(ctx context.Context, opts AttentionOptions) (model.AttentionSets, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	opts.Thresholds = opts.Thresholds.Normalize()

	key := attentionCacheKey(opts)
	if s.cache != nil {
		cached, err := s.cache.GetAttention(ctx, key)
		if err != nil {
			s.logger.Warn("attention cache read failed", "key", key, "error", err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	in, err := s.load(ctx, opts)
	if err != nil {
		return model.AttentionSets{}, err
	}
	sets := ComputeAttentionSets(in)

	if s.cache != nil {
		if err := s.cache.SetAttention(ctx, key, sets, s.cacheTTL); err != nil {
			s.logger.Warn("attention cache write failed", "key", key, "error", err)
		}
	}
	return sets, nil
}

// Invalidate drops cached sets after a change the cache key does not capture,
// such as a mention decision. Failures are logged; entries then expire by TTL.
func (s *AttentionService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ClearAttention(ctx); err != nil {
		s.logger.Warn("attention cache invalidation failed", "error", err)
	}
}

// PendingMentions returns every unanswered mention regardless of age, manual
// decisions or classifier verdicts.
func (s *AttentionService) PendingMentions(ctx context.Context) ([]PendingMention, error) {
	cfg, err := s.syncStore.GetSyncConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sync config: %w", err)
	}
	comments, err := s.rawStore.ListCommentsOnOpenItems(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	users, err := s.rawStore.ListAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	responses, err := s.rawStore.ListUserResponses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user responses: %w", err)
	}
	return FindUnansweredMentions(comments, users, responses, cfg.ExcludedUserIDs), nil
}

func (s *AttentionService) load(ctx context.Context, opts AttentionOptions) (AttentionInput, error) {
	cfg, err := s.syncStore.GetSyncConfig(ctx)
	if err != nil {
		return AttentionInput{}, fmt.Errorf("get sync config: %w", err)
	}
	cal, err := s.Calendar(ctx, cfg)
	if err != nil {
		return AttentionInput{}, err
	}

	in := AttentionInput{
		Now:                   opts.Now,
		Thresholds:            opts.Thresholds,
		Calendar:              cal,
		UseMentionClassifier:  opts.UseMentionClassifier,
		ExcludedRepositoryIDs: cfg.ExcludedRepositoryIDs,
		ExcludedUserIDs:       cfg.ExcludedUserIDs,
	}

	if in.PullRequests, err = s.rawStore.ListOpenPullRequests(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list open pull requests: %w", err)
	}
	if in.ReviewRequests, err = s.rawStore.ListPendingReviewRequests(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list review requests: %w", err)
	}
	if in.Issues, err = s.rawStore.ListIssues(ctx, true, nil); err != nil {
		return AttentionInput{}, fmt.Errorf("list open issues: %w", err)
	}
	if in.IssueStatuses, err = s.resolver.ResolveIssues(ctx, in.Issues, cfg.TargetProject); err != nil {
		return AttentionInput{}, err
	}
	if in.Comments, err = s.rawStore.ListCommentsOnOpenItems(ctx, time.Time{}); err != nil {
		return AttentionInput{}, fmt.Errorf("list comments: %w", err)
	}
	if in.Users, err = s.rawStore.ListAllUsers(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list users: %w", err)
	}
	if in.Responses, err = s.rawStore.ListUserResponses(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list user responses: %w", err)
	}
	if in.Maintainers, err = s.rawStore.ListRepositoryMaintainers(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list maintainers: %w", err)
	}
	if in.Overrides, err = s.mentionStore.ListMentionOverrides(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list mention overrides: %w", err)
	}
	if in.Classifications, err = s.mentionStore.ListMentionClassifications(ctx); err != nil {
		return AttentionInput{}, fmt.Errorf("list mention classifications: %w", err)
	}
	return in, nil
}

// attentionCacheKey scopes cached sets to the minute and every option that
// changes the result.
func attentionCacheKey(opts AttentionOptions) string {
	t := opts.Thresholds
	return fmt.Sprintf("attention:v1:%s:%d:%d:%d:%d:%d:%d:%t",
		opts.Now.UTC().Truncate(time.Minute).Format("200601021504"),
		t.StalePRDays, t.IdlePRDays, t.ReviewRequestDays,
		t.BacklogIssueDays, t.StalledIssueDays, t.UnansweredMentionDays,
		opts.UseMentionClassifier,
	)
}
