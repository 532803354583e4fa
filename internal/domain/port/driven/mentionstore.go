package driven

import (
	"context"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// MentionStore defines the driven port for manual mention decisions and
// classifier verdicts.
type MentionStore interface {
	ListMentionOverrides(ctx context.Context) ([]model.MentionOverride, error)
	SetMentionOverride(ctx context.Context, override model.MentionOverride) error
	ListMentionClassifications(ctx context.Context) ([]model.MentionClassification, error)
	SaveMentionClassification(ctx context.Context, c model.MentionClassification) error
}
