package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Automation triggers recorded with each run.
const (
	TriggerRead     = "read"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

const (
	defaultAutomationLockTTL = 5 * time.Minute
	automationBatchSize      = 200
	watermarkLayout          = "2006-01-02T15:04:05.000Z"
)

// AutomationResult reports what one Ensure call did.
type AutomationResult struct {
	Processed          bool
	RunID              string
	InsertedInProgress int
	InsertedDone       int
}

// AutomationService appends activity-sourced issue status events derived from
// linked pull requests. It runs at most once per sync watermark unless forced.
type AutomationService struct {
	syncStore   driven.SyncConfigStore
	statusStore driven.IssueStatusStore
	stateStore  driven.CacheStateStore
	locker      driven.JobLocker
	ids         *snowflake.Node
	holder      string
	lockTTL     time.Duration
	batchSize   int
	now         func() time.Time
	mu          sync.Mutex
	logger      *slog.Logger
}

// NewAutomationService creates a new AutomationService. holder identifies
// this process in the shared job lock.
func NewAutomationService(
	syncStore driven.SyncConfigStore,
	statusStore driven.IssueStatusStore,
	stateStore driven.CacheStateStore,
	locker driven.JobLocker,
	ids *snowflake.Node,
	holder string,
) *AutomationService {
	return &AutomationService{
		syncStore:   syncStore,
		statusStore: statusStore,
		stateStore:  stateStore,
		locker:      locker,
		ids:         ids,
		holder:      holder,
		lockTTL:     defaultAutomationLockTTL,
		batchSize:   automationBatchSize,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// Start runs Ensure immediately and then on every interval tick until ctx is
// canceled. Failures are logged and retried on the next tick.
func (s *AutomationService) Start(ctx context.Context, interval time.Duration) {
	s.runScheduled(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status automation scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

func (s *AutomationService) runScheduled(ctx context.Context) {
	if _, err := s.Ensure(ctx, TriggerSchedule, false); err != nil {
		s.logger.Error("scheduled status automation failed", "error", err)
	}
}

// State returns the persisted state of the last run, or nil when the job has
// never run.
func (s *AutomationService) State(ctx context.Context) (*model.AutomationState, error) {
	rec, err := s.stateStore.GetCacheState(ctx, model.CacheKeyStatusAutomation)
	if err != nil {
		return nil, fmt.Errorf("get automation state: %w", err)
	}
	if rec == nil || len(rec.Metadata) == 0 {
		return nil, nil
	}
	var st model.AutomationState
	if err := json.Unmarshal(rec.Metadata, &st); err != nil {
		s.logger.Warn("ignoring unreadable automation state", "error", err)
		return nil, nil
	}
	return &st, nil
}

// Ensure runs the job when the sync watermark moved since the last successful
// run, or when force is set. Concurrent callers serialize, except read
// triggers, which return Processed=false instead of waiting for a running job.
// A caller that finds the watermark already processed also returns
// Processed=false.
func (s *AutomationService) Ensure(ctx context.Context, trigger string, force bool) (AutomationResult, error) {
	cfg, err := s.syncStore.GetSyncConfig(ctx)
	if err != nil {
		return AutomationResult{}, fmt.Errorf("get sync config: %w", err)
	}
	watermark := formatWatermark(cfg.LastSuccessfulSyncAt)

	if !force {
		upToDate, err := s.upToDate(ctx, watermark)
		if err != nil || upToDate {
			return AutomationResult{}, err
		}
	}

	// A read never queues behind a running job; it serves the current statuses.
	if trigger == TriggerRead {
		if !s.mu.TryLock() {
			s.logger.Debug("status automation busy, skipping read trigger")
			return AutomationResult{}, nil
		}
	} else {
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if !force {
		upToDate, err := s.upToDate(ctx, watermark)
		if err != nil || upToDate {
			return AutomationResult{}, err
		}
	}

	acquired, err := s.locker.TryAcquireLock(ctx, model.CacheKeyStatusAutomation, s.holder, s.lockTTL)
	if err != nil {
		return AutomationResult{}, fmt.Errorf("acquire automation lock: %w", err)
	}
	if !acquired {
		s.logger.Info("status automation already running elsewhere", "trigger", trigger)
		return AutomationResult{}, nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), model.CacheKeyStatusAutomation, s.holder); err != nil {
			s.logger.Warn("failed to release automation lock", "error", err)
		}
	}()

	// Another process may have advanced the watermark before we took the lease.
	if !force {
		upToDate, err := s.upToDate(ctx, watermark)
		if err != nil || upToDate {
			return AutomationResult{}, err
		}
	}

	prev, err := s.State(ctx)
	if err != nil {
		return AutomationResult{}, err
	}
	return s.run(ctx, trigger, watermark, prev)
}

func (s *AutomationService) upToDate(ctx context.Context, watermark string) (bool, error) {
	st, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	return st != nil && st.LastSuccessfulSyncAt == watermark, nil
}

func (s *AutomationService) run(ctx context.Context, trigger, watermark string, prev *model.AutomationState) (AutomationResult, error) {
	res := AutomationResult{Processed: true, RunID: s.ids.Generate().String()}
	s.logger.Info("status automation started", "run_id", res.RunID, "trigger", trigger, "watermark", watermark)

	if err := s.apply(ctx, &res); err != nil {
		s.recordFailure(ctx, res, trigger, prev, err)
		return res, fmt.Errorf("status automation run %s: %w", res.RunID, err)
	}

	st := model.AutomationState{
		Status:               model.AutomationSucceeded,
		RunID:                res.RunID,
		InsertedInProgress:   res.InsertedInProgress,
		InsertedDone:         res.InsertedDone,
		LastSuccessfulSyncAt: watermark,
		Trigger:              trigger,
		LastSuccessAt:        s.now().UTC().Format(watermarkLayout),
	}
	if err := s.putState(ctx, st); err != nil {
		return res, err
	}

	s.logger.Info("status automation finished",
		"run_id", res.RunID,
		"inserted_in_progress", res.InsertedInProgress,
		"inserted_done", res.InsertedDone,
	)
	return res, nil
}

// apply inserts the planned events batch by batch. Each batch commits on its
// own, so an error leaves earlier batches in place.
func (s *AutomationService) apply(ctx context.Context, res *AutomationResult) error {
	links, err := s.statusStore.ListPullRequestIssueLinks(ctx)
	if err != nil {
		return fmt.Errorf("list pull request links: %w", err)
	}
	inProgress, done := PlanStatusEvents(links)

	for start := 0; start < len(inProgress); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.statusStore.InsertInProgressEvents(ctx, inProgress[start:min(start+s.batchSize, len(inProgress))])
		if err != nil {
			return fmt.Errorf("insert in_progress events: %w", err)
		}
		res.InsertedInProgress += n
	}
	for start := 0; start < len(done); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.statusStore.InsertDoneEvents(ctx, done[start:min(start+s.batchSize, len(done))])
		if err != nil {
			return fmt.Errorf("insert done events: %w", err)
		}
		res.InsertedDone += n
	}
	return nil
}

// recordFailure stores a failed state that keeps the previous watermark, so
// the next trigger retries the same generation.
func (s *AutomationService) recordFailure(ctx context.Context, res AutomationResult, trigger string, prev *model.AutomationState, cause error) {
	st := model.AutomationState{
		Status:             model.AutomationFailed,
		RunID:              res.RunID,
		InsertedInProgress: res.InsertedInProgress,
		InsertedDone:       res.InsertedDone,
		Trigger:            trigger,
		Error:              cause.Error(),
	}
	if prev != nil {
		st.LastSuccessfulSyncAt = prev.LastSuccessfulSyncAt
		st.LastSuccessAt = prev.LastSuccessAt
	}
	if err := s.putState(context.WithoutCancel(ctx), st); err != nil {
		s.logger.Error("failed to record automation failure", "run_id", res.RunID, "error", err)
	}
	s.logger.Error("status automation failed", "run_id", res.RunID, "trigger", trigger, "error", cause)
}

func (s *AutomationService) putState(ctx context.Context, st model.AutomationState) error {
	meta, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal automation state: %w", err)
	}
	err = s.stateStore.PutCacheState(ctx, model.CacheState{
		CacheKey:    model.CacheKeyStatusAutomation,
		SyncRunID:   st.LastSuccessfulSyncAt,
		ItemCount:   st.InsertedInProgress + st.InsertedDone,
		GeneratedAt: s.now().UTC(),
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("put automation state: %w", err)
	}
	return nil
}

// PlanStatusEvents derives activity events from PR-to-issue links ordered by
// PR creation: one in_progress per issue at its first linked PR's creation,
// and a done event at every merge. Closed-but-unmerged PRs never yield done.
func PlanStatusEvents(links []model.PullRequestIssueLink) (inProgress, done []model.IssueStatusEvent) {
	started := make(map[string]bool)
	merged := make(map[[2]string]bool)

	for _, link := range links {
		if link.IssueID == "" {
			continue
		}
		if !link.PRCreatedAt.IsZero() && !started[link.IssueID] {
			started[link.IssueID] = true
			inProgress = append(inProgress, model.IssueStatusEvent{
				IssueID:    link.IssueID,
				Status:     model.IssueStatusInProgress,
				OccurredAt: link.PRCreatedAt,
				Source:     model.StatusSourceActivity,
			})
		}
		if !link.Merged || link.MergedAt.IsZero() {
			continue
		}
		k := [2]string{link.IssueID, formatWatermark(link.MergedAt)}
		if merged[k] {
			continue
		}
		merged[k] = true
		done = append(done, model.IssueStatusEvent{
			IssueID:    link.IssueID,
			Status:     model.IssueStatusDone,
			OccurredAt: link.MergedAt,
			Source:     model.StatusSourceActivity,
		})
	}
	return inProgress, done
}

func formatWatermark(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(watermarkLayout)
}
