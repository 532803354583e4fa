package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MentionStore = (*MentionRepo)(nil)

// MentionRepo stores manual mention decisions and classifier verdicts, one
// row per (comment, target user).
type MentionRepo struct {
	db *DB
}

// NewMentionRepo creates a new MentionRepo backed by the given DB.
func NewMentionRepo(db *DB) *MentionRepo {
	return &MentionRepo{db: db}
}

// ListMentionOverrides returns every manual decision.
func (r *MentionRepo) ListMentionOverrides(ctx context.Context) ([]model.MentionOverride, error) {
	const query = `
		SELECT comment_id, target_user_id, decision, decided_by, decided_at
		FROM activity_mention_overrides
		ORDER BY decided_at, comment_id, target_user_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query mention overrides: %w", err)
	}
	defer rows.Close()

	var overrides []model.MentionOverride
	for rows.Next() {
		var o model.MentionOverride
		var decision, decidedAt string
		if err := rows.Scan(&o.CommentID, &o.TargetUserID, &decision, &o.DecidedBy, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan mention override: %w", err)
		}
		o.Decision = model.MentionDecision(decision)
		if o.DecidedAt, err = parseTime(decidedAt); err != nil {
			return nil, fmt.Errorf("parse decided_at: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mention overrides: %w", err)
	}

	return overrides, nil
}

// SetMentionOverride inserts or replaces the decision for one mention.
func (r *MentionRepo) SetMentionOverride(ctx context.Context, o model.MentionOverride) error {
	const query = `
		INSERT INTO activity_mention_overrides (comment_id, target_user_id, decision, decided_by, decided_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(comment_id, target_user_id) DO UPDATE SET
			decision = excluded.decision,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		o.CommentID, o.TargetUserID, string(o.Decision), o.DecidedBy, formatTime(o.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("set mention override %s/%s: %w", o.CommentID, o.TargetUserID, err)
	}
	return nil
}

// ListMentionClassifications returns every stored classifier verdict.
func (r *MentionRepo) ListMentionClassifications(ctx context.Context) ([]model.MentionClassification, error) {
	const query = `
		SELECT comment_id, target_user_id, requires_response, reason, model, classified_at
		FROM activity_mention_classifications
		ORDER BY classified_at, comment_id, target_user_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query mention classifications: %w", err)
	}
	defer rows.Close()

	var out []model.MentionClassification
	for rows.Next() {
		var c model.MentionClassification
		var requires int
		var classifiedAt string
		if err := rows.Scan(&c.CommentID, &c.TargetUserID, &requires, &c.Reason, &c.Model, &classifiedAt); err != nil {
			return nil, fmt.Errorf("scan mention classification: %w", err)
		}
		c.RequiresResponse = requires == 1
		if c.ClassifiedAt, err = parseTime(classifiedAt); err != nil {
			return nil, fmt.Errorf("parse classified_at: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mention classifications: %w", err)
	}

	return out, nil
}

// SaveMentionClassification inserts or replaces the verdict for one mention.
func (r *MentionRepo) SaveMentionClassification(ctx context.Context, c model.MentionClassification) error {
	const query = `
		INSERT INTO activity_mention_classifications
			(comment_id, target_user_id, requires_response, reason, model, classified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(comment_id, target_user_id) DO UPDATE SET
			requires_response = excluded.requires_response,
			reason = excluded.reason,
			model = excluded.model,
			classified_at = excluded.classified_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.CommentID, c.TargetUserID, boolInt(c.RequiresResponse), c.Reason, c.Model, formatTime(c.ClassifiedAt),
	)
	if err != nil {
		return fmt.Errorf("save mention classification %s/%s: %w", c.CommentID, c.TargetUserID, err)
	}
	return nil
}
