// Repository interfaces for the terminal sync stores.
package db

import (
	"context"

	"github.com/kimhsiao/tijara/backend/internal/models"
)

// OperationLog defines operations on the local outbox.
type OperationLog interface {
	// AppendOperation records a pending local mutation.
	AppendOperation(ctx context.Context, entityName string, action models.Action, payload *models.OperationPayload) (*models.Operation, error)

	// ClaimPending assigns requestID to unclaimed or stale-claimed pending operations.
	ClaimPending(ctx context.Context, entityName, requestID string, limit int) (int64, error)

	// ClaimedPage returns a page of the pending operations claimed by requestID.
	ClaimedPage(ctx context.Context, requestID string, pageSize, offset int) ([]*models.Operation, error)

	// MarkPushed transitions the request's pending operations to pushed.
	MarkPushed(ctx context.Context, requestID string) (int64, error)

	// CountPending returns the number of pending operations of an entity.
	CountPending(ctx context.Context, entityName string) (int64, error)

	// PendingEntities returns entities with pending operations or an unresolved request.
	PendingEntities(ctx context.Context) ([]string, error)
}

// RequestTracker defines operations on push attempts.
type RequestTracker interface {
	CreateRequest(ctx context.Context, entityName, id string) (*models.SyncRequest, error)
	ActiveRequest(ctx context.Context, entityName string) (*models.SyncRequest, error)
	GetRequest(ctx context.Context, id string) (*models.SyncRequest, error)
	ResolveRequest(ctx context.Context, id string, status models.RequestStatus) error

	// BeginPush creates a request and claims operations atomically.
	BeginPush(ctx context.Context, entityName, id string, limit int) (*models.SyncRequest, int64, error)

	// FinalizePush marks operations pushed and resolves the request atomically.
	FinalizePush(ctx context.Context, requestID string) (int64, error)
}

// RecordStore defines operations on mirrored server records.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []*models.Record) error
}

// KVStore defines operations on the key/value table.
type KVStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

// PushStore groups the stores the push drainer needs.
type PushStore interface {
	OperationLog
	RequestTracker
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ OperationLog   = (*Repository)(nil)
	_ RequestTracker = (*Repository)(nil)
	_ RecordStore    = (*Repository)(nil)
	_ KVStore        = (*Repository)(nil)
	_ PushStore      = (*Repository)(nil)
)
