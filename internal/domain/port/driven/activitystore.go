// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"encoding/json"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// ActivityQuery is everything a store needs to compile one activity feed query.
// Attention sets and project-status ID sets are computed by the application
// layer and handed over as plain ID lists.
type ActivityQuery struct {
	Filter                model.ActivityFilter
	Attention             model.AttentionSets
	ProjectStatusIDs      map[model.IssueStatus][]string
	ExcludedRepositoryIDs []string
	Offset                int
	Limit                 int
}

// ActivityStore defines the driven port for reading the materialized activity table.
// GetItem returns (nil, nil) when the item does not exist.
type ActivityStore interface {
	ListItems(ctx context.Context, q ActivityQuery) ([]model.ActivityItem, error)
	CountItems(ctx context.Context, q ActivityQuery) (int, error)
	// JumpIndex returns the first item of every page of size perPage.
	JumpIndex(ctx context.Context, q ActivityQuery, perPage int) ([]model.JumpEntry, error)
	GetItem(ctx context.Context, id string) (*model.ActivityItem, error)
	ListComments(ctx context.Context, subjectID string) ([]model.ItemComment, error)
	// GetRawPayload returns the raw GitHub payload stored for an issue or pull
	// request, or nil when none is stored.
	GetRawPayload(ctx context.Context, id string) (json.RawMessage, error)
	GetProjectOverride(ctx context.Context, issueID string) (*model.ProjectOverride, error)
	ListUsers(ctx context.Context, ids []string) ([]model.User, error)
}
