package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// --- activity store ---

type fakeActivityStore struct {
	items     []model.ActivityItem
	comments  map[string][]model.ItemComment
	payloads  map[string]json.RawMessage
	overrides map[string]*model.ProjectOverride
	users     []model.User
	lastQuery driven.ActivityQuery
}

var _ driven.ActivityStore = (*fakeActivityStore)(nil)

func (f *fakeActivityStore) ListItems(_ context.Context, q driven.ActivityQuery) ([]model.ActivityItem, error) {
	f.lastQuery = q
	if q.Offset >= len(f.items) {
		return nil, nil
	}
	return f.items[q.Offset:min(q.Offset+q.Limit, len(f.items))], nil
}

func (f *fakeActivityStore) CountItems(_ context.Context, q driven.ActivityQuery) (int, error) {
	f.lastQuery = q
	return len(f.items), nil
}

func (f *fakeActivityStore) JumpIndex(_ context.Context, _ driven.ActivityQuery, perPage int) ([]model.JumpEntry, error) {
	var out []model.JumpEntry
	for i := 0; i < len(f.items); i += perPage {
		out = append(out, model.JumpEntry{Page: i/perPage + 1, FirstItemID: f.items[i].ID, SortValue: f.items[i].UpdatedAt})
	}
	return out, nil
}

func (f *fakeActivityStore) GetItem(_ context.Context, id string) (*model.ActivityItem, error) {
	for _, it := range f.items {
		if it.ID == id {
			return &it, nil
		}
	}
	return nil, nil
}

func (f *fakeActivityStore) ListComments(_ context.Context, subjectID string) ([]model.ItemComment, error) {
	return f.comments[subjectID], nil
}

func (f *fakeActivityStore) GetRawPayload(_ context.Context, id string) (json.RawMessage, error) {
	return f.payloads[id], nil
}

func (f *fakeActivityStore) GetProjectOverride(_ context.Context, issueID string) (*model.ProjectOverride, error) {
	return f.overrides[issueID], nil
}

func (f *fakeActivityStore) ListUsers(_ context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

// --- derived caches ---

type fakeDerivedStore struct {
	options    []model.FilterOption
	linkedPRs  map[string][]model.LinkedItem
	rebuilds   []string
	rebuildErr error
	state      *fakeCacheStateStore
}

var _ driven.DerivedCacheStore = (*fakeDerivedStore)(nil)

func (f *fakeDerivedStore) RebuildCache(ctx context.Context, key, syncRunID string) (int, error) {
	if f.rebuildErr != nil {
		return 0, f.rebuildErr
	}
	f.rebuilds = append(f.rebuilds, key)
	_ = f.state.PutCacheState(ctx, model.CacheState{CacheKey: key, SyncRunID: syncRunID})
	return len(f.options), nil
}

func (f *fakeDerivedStore) ListFilterOptions(_ context.Context) ([]model.FilterOption, error) {
	return f.options, nil
}

func (f *fakeDerivedStore) ListLinkedPullRequests(_ context.Context, issueID string) ([]model.LinkedItem, error) {
	return f.linkedPRs[issueID], nil
}

func (f *fakeDerivedStore) ListLinkedIssues(_ context.Context, _ string) ([]model.LinkedItem, error) {
	return nil, nil
}

// --- fixture ---

type activityFixture struct {
	svc     *ActivityService
	store   *fakeActivityStore
	derived *fakeDerivedStore
	raw     *fakeRawStore
	state   *fakeCacheStateStore
	signer  *TokenSigner
	sync    *fakeSyncStore
}

func newActivityFixture(t *testing.T, itemCount int) *activityFixture {
	t.Helper()

	store := &fakeActivityStore{}
	for i := 0; i < itemCount; i++ {
		store.items = append(store.items, model.ActivityItem{
			ID:        fmt.Sprintf("PR_%d", i),
			Type:      model.ItemTypePullRequest,
			Status:    model.ItemStatusOpen,
			UpdatedAt: attentionNow.Add(-time.Duration(i) * time.Hour),
		})
	}

	raw := &fakeRawStore{}
	statuses := newFakeStatusStore()
	state := newFakeCacheStateStore()
	sync := &fakeSyncStore{cfg: model.SyncConfig{ExcludedRepositoryIDs: []string{"R_skip"}}, latestRun: "run-1"}
	derived := &fakeDerivedStore{state: state}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	resolver := NewStatusResolver(raw, statuses)
	attention := NewAttentionService(raw, sync, &fakeMentionStore{}, resolver)
	caches := NewCacheService(sync, state, derived)
	automation := NewAutomationService(sync, statuses, state, &fakeLocker{}, node, "test")
	signer := NewTokenSigner([]byte("secret"), time.Minute)

	svc := NewActivityService(store, derived, sync, resolver, attention, caches, automation, signer, ActivityServiceOptions{})
	svc.now = func() time.Time { return attentionNow }

	return &activityFixture{svc: svc, store: store, derived: derived, raw: raw, state: state, signer: signer, sync: sync}
}

// --- list ---

func TestListActivityItems_PrefetchBuffering(t *testing.T) {
	f := newActivityFixture(t, 2)

	page, err := f.svc.ListActivityItems(context.Background(), model.ActivityFilter{}, model.Pagination{Page: 1, PerPage: 1, PrefetchPages: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, page.PageInfo.RequestedPages)
	assert.Equal(t, 2, page.PageInfo.BufferedPages)
	assert.False(t, page.PageInfo.HasMore)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "PR_0", page.Items[0].ID)
	require.Len(t, page.Prefetched, 1)
	assert.Equal(t, "PR_1", page.Prefetched[0][0].ID)
	assert.NotEmpty(t, page.PageInfo.Token)

	assert.Equal(t, 0, f.store.lastQuery.Offset)
	assert.Equal(t, 4, f.store.lastQuery.Limit)
	assert.Equal(t, []string{"R_skip"}, f.store.lastQuery.ExcludedRepositoryIDs)
}

func TestListActivityItems_PrefetchClamp(t *testing.T) {
	f := newActivityFixture(t, 30)

	page, err := f.svc.ListActivityItems(context.Background(), model.ActivityFilter{}, model.Pagination{Page: 1, PerPage: 2, PrefetchPages: 25})
	require.NoError(t, err)

	assert.Equal(t, 10, page.PageInfo.RequestedPages)
	assert.Equal(t, 10, page.PageInfo.BufferedPages)
	assert.True(t, page.PageInfo.HasMore)
	assert.Len(t, page.Prefetched, 9)
}

func TestListActivityItems_PageBeyondEnd(t *testing.T) {
	f := newActivityFixture(t, 3)

	page, err := f.svc.ListActivityItems(context.Background(), model.ActivityFilter{}, model.Pagination{Page: 5, PerPage: 2})
	require.NoError(t, err)

	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, page.PageInfo.BufferedPages)
	assert.False(t, page.PageInfo.HasMore)
}

func TestListActivityItems_InvalidFilter(t *testing.T) {
	f := newActivityFixture(t, 1)

	_, err := f.svc.ListActivityItems(context.Background(), model.ActivityFilter{Statuses: []string{"bogus"}}, model.Pagination{})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.ErrorIs(t, err, model.ErrInvalidFilterValue)
}

func TestListActivityItems_RunsAutomationAndAnnotates(t *testing.T) {
	f := newActivityFixture(t, 1)
	f.raw.prs = []model.PullRequestRecord{openPR("PR_0", attentionNow.AddDate(0, -2, 0), attentionNow)}

	page, err := f.svc.ListActivityItems(context.Background(), model.ActivityFilter{}, model.Pagination{})
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Equal(t, []model.AttentionCategory{model.AttentionStalePRs}, page.Items[0].Attention)
	assert.Nil(t, page.Items[0].IssueStatus)
	require.NotNil(t, page.CacheMetadata.Automation)
	assert.Equal(t, model.AutomationSucceeded, page.CacheMetadata.Automation.Status)
	assert.Equal(t, attentionNow, page.CacheMetadata.AttentionGeneratedAt)
}

// --- summary ---

func listToken(t *testing.T, f *activityFixture, filter model.ActivityFilter) string {
	t.Helper()
	page, err := f.svc.ListActivityItems(context.Background(), filter, model.Pagination{Page: 1, PerPage: 2, PrefetchPages: 2})
	require.NoError(t, err)
	return page.PageInfo.Token
}

func TestGetSummary(t *testing.T) {
	f := newActivityFixture(t, 5)
	filter := model.ActivityFilter{Types: []model.ItemType{model.ItemTypePullRequest}}
	token := listToken(t, f, filter)

	sum, err := f.svc.GetSummary(context.Background(), token, filter, 1)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.TotalCount)
	assert.Equal(t, 3, sum.TotalPages)
	require.Len(t, sum.JumpIndex, 3)
	assert.Equal(t, "PR_4", sum.JumpIndex[2].FirstItemID)
}

func TestGetSummary_FilterMismatch(t *testing.T) {
	f := newActivityFixture(t, 5)
	token := listToken(t, f, model.ActivityFilter{Types: []model.ItemType{model.ItemTypePullRequest}})

	_, err := f.svc.GetSummary(context.Background(), token, model.ActivityFilter{Types: []model.ItemType{model.ItemTypeIssue}}, 1)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	_, err = f.svc.GetSummary(context.Background(), token, model.ActivityFilter{Types: []model.ItemType{model.ItemTypePullRequest}}, 2)
	assert.ErrorIs(t, err, ErrFingerprintMismatch, "page must match too")
}

func TestGetSummary_Expired(t *testing.T) {
	f := newActivityFixture(t, 5)
	filter := model.ActivityFilter{}
	token := listToken(t, f, filter)

	f.signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := f.svc.GetSummary(context.Background(), token, filter, 1)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestGetSummary_InvalidToken(t *testing.T) {
	f := newActivityFixture(t, 1)

	_, err := f.svc.GetSummary(context.Background(), "garbage", model.ActivityFilter{}, 1)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// --- detail ---

func TestGetItemDetail(t *testing.T) {
	f := newActivityFixture(t, 0)
	f.store.items = []model.ActivityItem{{ID: "I_1", Type: model.ItemTypeIssue, AuthorID: "U1", Status: model.ItemStatusOpen}}
	f.store.comments = map[string][]model.ItemComment{"I_1": {{ID: "C1", SubjectID: "I_1", AuthorID: "U2"}}}
	f.store.payloads = map[string]json.RawMessage{"I_1": json.RawMessage(`{"html_url":"https://github.com/o/r/issues/1","labels":[{"name":"bug","color":"d73a4a"}],"reactions":{"total_count":2,"+1":2}}`)}
	f.store.users = []model.User{{ID: "U1", Login: "alice"}, {ID: "U2", Login: "bob"}}
	f.derived.linkedPRs = map[string][]model.LinkedItem{"I_1": {{ID: "PR_9", Number: 9}}}
	f.raw.issues = []model.IssueRecord{{ID: "I_1", State: "open"}}

	detail, err := f.svc.GetItemDetail(context.Background(), "I_1")
	require.NoError(t, err)

	assert.Equal(t, "I_1", detail.Item.ID)
	require.NotNil(t, detail.Item.IssueStatus)
	assert.Equal(t, model.IssueStatusNoStatus, detail.Item.IssueStatus.DisplayStatus)
	assert.Len(t, detail.Comments, 1)
	assert.Len(t, detail.LinkedPullRequests, 1)
	assert.Equal(t, "alice", detail.Users["U1"].Login)
	assert.Equal(t, "bob", detail.Users["U2"].Login)
	require.NotNil(t, detail.Payload)
	assert.Equal(t, "https://github.com/o/r/issues/1", detail.Payload.HTMLURL)
	assert.Equal(t, 2, detail.Payload.ReactionTotal)
	require.Len(t, detail.Payload.Labels, 1)
	assert.Equal(t, "bug", detail.Payload.Labels[0].Name)
}

func TestGetItemDetail_RefreshesStaleLinkCaches(t *testing.T) {
	f := newActivityFixture(t, 1)
	f.raw.issues = []model.IssueRecord{{ID: "I_1", State: "open"}}
	f.store.items = append(f.store.items, model.ActivityItem{ID: "I_1", Type: model.ItemTypeIssue, Status: model.ItemStatusOpen})
	ctx := context.Background()

	_, err := f.svc.GetItemDetail(ctx, "I_1")
	require.NoError(t, err)
	assert.ElementsMatch(t, DerivedCacheKeys, f.derived.rebuilds, "empty caches are built before links are read")

	_, err = f.svc.GetItemDetail(ctx, "PR_0")
	require.NoError(t, err)
	assert.Len(t, f.derived.rebuilds, 3, "current caches are not rebuilt")

	f.sync.latestRun = "run-2"
	_, err = f.svc.GetItemDetail(ctx, "PR_0")
	require.NoError(t, err)
	assert.Len(t, f.derived.rebuilds, 6, "a new sync run invalidates the link caches")
}

func TestGetItemDetail_ServesPreviousLinksOnRefreshFailure(t *testing.T) {
	f := newActivityFixture(t, 0)
	f.store.items = []model.ActivityItem{{ID: "I_1", Type: model.ItemTypeIssue, Status: model.ItemStatusOpen}}
	f.raw.issues = []model.IssueRecord{{ID: "I_1", State: "open"}}
	f.derived.linkedPRs = map[string][]model.LinkedItem{"I_1": {{ID: "PR_9", Number: 9}}}
	f.derived.rebuildErr = errors.New("locked")

	detail, err := f.svc.GetItemDetail(context.Background(), "I_1")
	require.NoError(t, err)
	assert.Len(t, detail.LinkedPullRequests, 1)
}

func TestGetItemDetail_Errors(t *testing.T) {
	f := newActivityFixture(t, 1)

	_, err := f.svc.GetItemDetail(context.Background(), "bad id!")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = f.svc.GetItemDetail(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = f.svc.GetItemDetail(context.Background(), "I_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- filter options ---

func TestGetFilterOptions_RefreshesStaleCaches(t *testing.T) {
	f := newActivityFixture(t, 0)
	f.derived.options = []model.FilterOption{
		{Kind: model.FilterOptionRepository, Value: "R1", Label: "org/repo"},
		{Kind: model.FilterOptionLabel, Value: "bug", Label: "bug"},
		{Kind: model.FilterOptionUser, Value: "U1", Label: "alice"},
	}

	opts, err := f.svc.GetFilterOptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, opts.Repositories, 1)
	assert.Len(t, opts.Labels, 1)
	assert.Len(t, opts.Users, 1)
	assert.Contains(t, opts.Statuses, "in_progress")
	assert.Contains(t, opts.Attention, model.AttentionNone)
	assert.ElementsMatch(t, DerivedCacheKeys, f.derived.rebuilds)

	_, err = f.svc.GetFilterOptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.derived.rebuilds, 3, "fresh caches are not rebuilt")

	f.sync.latestRun = "run-2"
	_, err = f.svc.GetFilterOptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.derived.rebuilds, 6)
}

func TestGetFilterOptions_ServesPreviousGenerationOnRefreshFailure(t *testing.T) {
	f := newActivityFixture(t, 0)
	f.derived.options = []model.FilterOption{{Kind: model.FilterOptionMilestone, Value: "M1"}}
	f.derived.rebuildErr = errors.New("locked")

	opts, err := f.svc.GetFilterOptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, opts.Milestones, 1)
}

func TestCacheService_Force(t *testing.T) {
	f := newActivityFixture(t, 0)
	caches := NewCacheService(f.sync, f.state, f.derived)

	_, err := caches.Ensure(context.Background(), false)
	require.NoError(t, err)
	res, err := caches.Ensure(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.SyncRunID)
	assert.Equal(t, DerivedCacheKeys, res.Refreshed)
}
