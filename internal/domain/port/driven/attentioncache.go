package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// AttentionCache defines the driven port for short-lived caching of computed
// attention sets. GetAttention returns (nil, nil) on a miss.
type AttentionCache interface {
	GetAttention(ctx context.Context, key string) (*model.AttentionSets, error)
	SetAttention(ctx context.Context, key string, sets model.AttentionSets, ttl time.Duration) error
	// ClearAttention drops every cached set.
	ClearAttention(ctx context.Context) error
}
