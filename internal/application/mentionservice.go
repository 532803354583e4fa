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

// maxClassifierBodyRunes caps how much of a comment is sent to the classifier.
const maxClassifierBodyRunes = 4000

// ClassificationResult reports one ClassifyPending run.
type ClassificationResult struct {
	Pending    int
	Classified int
	Failed     int
}

// MentionService records manual mention decisions and runs the optional
// classifier over unanswered mentions.
type MentionService struct {
	attention    *AttentionService
	store        driven.ActivityStore
	mentionStore driven.MentionStore
	classifier   driven.MentionClassifier
	now          func() time.Time
	logger       *slog.Logger
}

// NewMentionService creates a new MentionService. classifier may be nil.
func NewMentionService(
	attention *AttentionService,
	store driven.ActivityStore,
	mentionStore driven.MentionStore,
	classifier driven.MentionClassifier,
) *MentionService {
	return &MentionService{
		attention:    attention,
		store:        store,
		mentionStore: mentionStore,
		classifier:   classifier,
		now:          time.Now,
		logger:       slog.Default(),
	}
}

// RecordDecision stores a manual decision for the mention of userID in
// commentID. decidedBy is the acting user.
func (s *MentionService) RecordDecision(ctx context.Context, commentID, userID string, decision model.MentionDecision, decidedBy string) (model.MentionOverride, error) {
	if !itemIDPattern.MatchString(commentID) || !itemIDPattern.MatchString(userID) {
		return model.MentionOverride{}, ErrInvalidID
	}
	if !decision.Valid() {
		return model.MentionOverride{}, fmt.Errorf("%w: unknown mention decision %q", ErrInvalidFilter, decision)
	}

	o := model.MentionOverride{
		CommentID:    commentID,
		TargetUserID: userID,
		Decision:     decision,
		DecidedBy:    decidedBy,
		DecidedAt:    s.now().UTC(),
	}
	if err := s.mentionStore.SetMentionOverride(ctx, o); err != nil {
		return model.MentionOverride{}, fmt.Errorf("set mention override: %w", err)
	}
	s.attention.Invalidate(ctx)
	s.logger.Info("mention decision recorded", "comment_id", commentID, "user_id", userID, "decision", decision, "decided_by", decidedBy)
	return o, nil
}

// ClassifyPending classifies up to limit unanswered mentions that have no
// stored verdict yet. A non-positive limit classifies all of them. Individual
// classifier failures are logged and counted, not returned.
func (s *MentionService) ClassifyPending(ctx context.Context, limit int) (ClassificationResult, error) {
	if s.classifier == nil {
		return ClassificationResult{}, ErrClassifierDisabled
	}

	pending, err := s.attention.PendingMentions(ctx)
	if err != nil {
		return ClassificationResult{}, err
	}
	existing, err := s.mentionStore.ListMentionClassifications(ctx)
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("list mention classifications: %w", err)
	}
	done := make(map[model.MentionKey]bool, len(existing))
	for _, c := range existing {
		done[model.MentionKey{CommentID: c.CommentID, TargetUserID: c.TargetUserID}] = true
	}

	var res ClassificationResult
	defer func() {
		if res.Classified > 0 {
			s.attention.Invalidate(ctx)
		}
	}()
	titles := make(map[string]string)
	for _, m := range pending {
		if done[m.Key()] {
			continue
		}
		done[m.Key()] = true
		res.Pending++
		if limit > 0 && res.Classified+res.Failed >= limit {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		title, err := s.subjectTitle(ctx, titles, m.Comment.SubjectID)
		if err != nil {
			return res, err
		}
		verdict, err := s.classifier.ClassifyMention(ctx, driven.MentionContext{
			SubjectTitle: title,
			CommentBody:  truncateRunes(m.Comment.Body, maxClassifierBodyRunes),
			AuthorLogin:  m.AuthorLogin,
			TargetLogin:  m.TargetLogin,
		})
		if err != nil {
			res.Failed++
			s.logger.Warn("mention classification failed", "comment_id", m.Comment.ID, "target_id", m.TargetID, "error", err)
			continue
		}

		err = s.mentionStore.SaveMentionClassification(ctx, model.MentionClassification{
			CommentID:        m.Comment.ID,
			TargetUserID:     m.TargetID,
			RequiresResponse: verdict.RequiresResponse,
			Reason:           verdict.Reason,
			Model:            verdict.Model,
			ClassifiedAt:     s.now().UTC(),
		})
		if err != nil {
			return res, fmt.Errorf("save mention classification: %w", err)
		}
		res.Classified++
	}

	s.logger.Info("mention classification finished", "pending", res.Pending, "classified", res.Classified, "failed", res.Failed)
	return res, nil
}

func (s *MentionService) subjectTitle(ctx context.Context, cache map[string]string, subjectID string) (string, error) {
	if title, ok := cache[subjectID]; ok {
		return title, nil
	}
	item, err := s.store.GetItem(ctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("get item %s: %w", subjectID, err)
	}
	var title string
	if item != nil {
		title = item.Title
	}
	cache[subjectID] = title
	return title, nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
