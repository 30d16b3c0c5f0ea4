// Package sync implements the terminal replication core: the push drainer,
// the pull fetcher, the watermark store and the entity registry.
package sync

import (
	"context"

	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
)

// Remote is the central sync API as seen by the drainer and the fetcher.
// *remote.Client implements it.
type Remote interface {
	// Push transmits one batch under requestID. Only an explicit acceptance returns nil.
	Push(ctx context.Context, entity, requestID string, ops []*models.Operation) error

	// PushStatus returns how the server resolved requestID.
	PushStatus(ctx context.Context, requestID string) (remote.RequestStatus, error)

	// Pull fetches one page of server-authored records.
	Pull(ctx context.Context, entity string, q remote.PullQuery) (*remote.PullPage, error)
}

var _ Remote = (*remote.Client)(nil)
