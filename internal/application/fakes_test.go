package application

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// --- raw store ---

type fakeRawStore struct {
	prs         []model.PullRequestRecord
	issues      []model.IssueRecord
	requests    []model.ReviewRequestRecord
	comments    []model.CommentRecord
	responses   []model.UserResponse
	users       []model.User
	maintainers map[string][]string
}

var _ driven.RawStore = (*fakeRawStore)(nil)

func (f *fakeRawStore) ListOpenPullRequests(_ context.Context) ([]model.PullRequestRecord, error) {
	return f.prs, nil
}

func (f *fakeRawStore) ListIssues(_ context.Context, openOnly bool, ids []string) ([]model.IssueRecord, error) {
	var out []model.IssueRecord
	for _, issue := range f.issues {
		if openOnly && issue.State != "open" {
			continue
		}
		if ids != nil && !slices.Contains(ids, issue.ID) {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (f *fakeRawStore) ListPendingReviewRequests(_ context.Context) ([]model.ReviewRequestRecord, error) {
	return f.requests, nil
}

func (f *fakeRawStore) ListCommentsOnOpenItems(_ context.Context, _ time.Time) ([]model.CommentRecord, error) {
	return f.comments, nil
}

func (f *fakeRawStore) ListUserResponses(_ context.Context) ([]model.UserResponse, error) {
	return f.responses, nil
}

func (f *fakeRawStore) ListAllUsers(_ context.Context) ([]model.User, error) {
	return f.users, nil
}

func (f *fakeRawStore) ListRepositoryMaintainers(_ context.Context) (map[string][]string, error) {
	return f.maintainers, nil
}

// --- issue status store ---

type statusKey struct {
	issueID string
	status  model.IssueStatus
	source  model.StatusSource
	at      time.Time
}

type fakeStatusStore struct {
	mu        sync.Mutex
	events    []model.IssueStatusEvent
	seen      map[statusKey]bool
	links     []model.PullRequestIssueLink
	linksErr  error
	insertErr error
}

var _ driven.IssueStatusStore = (*fakeStatusStore)(nil)

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{seen: make(map[statusKey]bool)}
}

func (f *fakeStatusStore) ListActivityEvents(_ context.Context, issueIDs []string) ([]model.IssueStatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.IssueStatusEvent
	for _, ev := range f.events {
		if issueIDs != nil && !slices.Contains(issueIDs, ev.IssueID) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeStatusStore) ListPullRequestIssueLinks(_ context.Context) ([]model.PullRequestIssueLink, error) {
	return f.links, f.linksErr
}

func (f *fakeStatusStore) InsertInProgressEvents(_ context.Context, events []model.IssueStatusEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	n := 0
	for _, ev := range events {
		if f.hasInProgress(ev.IssueID) {
			continue
		}
		n += f.insert(ev)
	}
	return n, nil
}

func (f *fakeStatusStore) InsertDoneEvents(_ context.Context, events []model.IssueStatusEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	n := 0
	for _, ev := range events {
		n += f.insert(ev)
	}
	return n, nil
}

func (f *fakeStatusStore) hasInProgress(issueID string) bool {
	for _, ev := range f.events {
		if ev.IssueID == issueID && ev.Status == model.IssueStatusInProgress && ev.Source == model.StatusSourceActivity {
			return true
		}
	}
	return false
}

func (f *fakeStatusStore) insert(ev model.IssueStatusEvent) int {
	k := statusKey{ev.IssueID, ev.Status, ev.Source, ev.OccurredAt.UTC()}
	if f.seen[k] {
		return 0
	}
	f.seen[k] = true
	f.events = append(f.events, ev)
	return 1
}

func (f *fakeStatusStore) countFor(issueID string, status model.IssueStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.IssueID == issueID && ev.Status == status {
			n++
		}
	}
	return n
}

// --- sync config store ---

type fakeSyncStore struct {
	cfg       model.SyncConfig
	holidays  []string
	latestRun string
	err       error
}

var _ driven.SyncConfigStore = (*fakeSyncStore)(nil)

func (f *fakeSyncStore) GetSyncConfig(_ context.Context) (model.SyncConfig, error) {
	return f.cfg, f.err
}

func (f *fakeSyncStore) ListHolidayDates(_ context.Context, _ []string) ([]string, error) {
	return f.holidays, nil
}

func (f *fakeSyncStore) LatestCompletedSyncRunID(_ context.Context) (string, error) {
	return f.latestRun, f.err
}

// --- mention store ---

type fakeMentionStore struct {
	overrides       []model.MentionOverride
	classifications []model.MentionClassification
}

var _ driven.MentionStore = (*fakeMentionStore)(nil)

func (f *fakeMentionStore) ListMentionOverrides(_ context.Context) ([]model.MentionOverride, error) {
	return f.overrides, nil
}

func (f *fakeMentionStore) SetMentionOverride(_ context.Context, o model.MentionOverride) error {
	for i, existing := range f.overrides {
		if existing.CommentID == o.CommentID && existing.TargetUserID == o.TargetUserID {
			f.overrides[i] = o
			return nil
		}
	}
	f.overrides = append(f.overrides, o)
	return nil
}

func (f *fakeMentionStore) ListMentionClassifications(_ context.Context) ([]model.MentionClassification, error) {
	return f.classifications, nil
}

func (f *fakeMentionStore) SaveMentionClassification(_ context.Context, c model.MentionClassification) error {
	f.classifications = append(f.classifications, c)
	return nil
}

// --- cache state store ---

type fakeCacheStateStore struct {
	mu     sync.Mutex
	states map[string]model.CacheState
}

var _ driven.CacheStateStore = (*fakeCacheStateStore)(nil)

func newFakeCacheStateStore() *fakeCacheStateStore {
	return &fakeCacheStateStore{states: make(map[string]model.CacheState)}
}

func (f *fakeCacheStateStore) GetCacheState(_ context.Context, key string) (*model.CacheState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeCacheStateStore) PutCacheState(_ context.Context, state model.CacheState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.CacheKey] = state
	return nil
}

func (f *fakeCacheStateStore) automationState() model.AutomationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st model.AutomationState
	_ = json.Unmarshal(f.states[model.CacheKeyStatusAutomation].Metadata, &st)
	return st
}

// --- job locker ---

type fakeLocker struct {
	mu       sync.Mutex
	holders  map[string]string
	busy     bool
	acquired int
}

var _ driven.JobLocker = (*fakeLocker)(nil)

func (f *fakeLocker) TryAcquireLock(_ context.Context, name, holder string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false, nil
	}
	if f.holders == nil {
		f.holders = make(map[string]string)
	}
	if h, ok := f.holders[name]; ok && h != holder {
		return false, nil
	}
	f.holders[name] = holder
	f.acquired++
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, name, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[name] != holder {
		return errors.New("not the lock holder")
	}
	delete(f.holders, name)
	return nil
}
