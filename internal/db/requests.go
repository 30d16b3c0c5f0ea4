package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
)

// =====================================================
// Sync Request Tracker
// =====================================================

const requestColumns = `id, entity_name, status, last_sync, created_at`

// CreateRequest inserts a pending request for the entity.
// It fails with ErrConstraint when the entity already has an unresolved request.
func (r *Repository) CreateRequest(ctx context.Context, entityName, id string) (*models.SyncRequest, error) {
	return r.createRequest(ctx, r.db, entityName, id)
}

func (r *Repository) createRequest(ctx context.Context, q querier, entityName, id string) (*models.SyncRequest, error) {
	req := &models.SyncRequest{
		ID:         id,
		EntityName: entityName,
		Status:     models.RequestPending,
		CreatedAt:  r.nowMillis(),
	}

	query := `INSERT INTO sync_requests (id, entity_name, status, created_at) VALUES (?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, req.ID, req.EntityName, req.Status, req.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrap(errors.ErrConstraint, "entity already has an active request", err)
		}
		return nil, errors.Wrap(errors.ErrDatabase, "failed to create request", err)
	}
	return req, nil
}

// ActiveRequest returns the most recent pending or failed request of the entity,
// or nil when there is none.
func (r *Repository) ActiveRequest(ctx context.Context, entityName string) (*models.SyncRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM sync_requests
	WHERE entity_name = ? AND status IN ('pending', 'failed')
	ORDER BY created_at DESC, id DESC LIMIT 1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, entityName))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read active request", err)
	}
	return req, nil
}

// GetRequest retrieves a request by id.
func (r *Repository) GetRequest(ctx context.Context, id string) (*models.SyncRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM sync_requests WHERE id = ?`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrNotFound, "request "+id+" not found", err)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read request", err)
	}
	return req, nil
}

// LatestRequest returns the most recent request of the entity in any state, or nil.
func (r *Repository) LatestRequest(ctx context.Context, entityName string) (*models.SyncRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM sync_requests
	WHERE entity_name = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, entityName))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read latest request", err)
	}
	return req, nil
}

func scanRequest(row *sql.Row) (*models.SyncRequest, error) {
	var req models.SyncRequest
	var lastSync sql.NullInt64
	if err := row.Scan(&req.ID, &req.EntityName, &req.Status, &lastSync, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.LastSync = lastSync.Int64
	return &req, nil
}

// ResolveRequest sets the request status and stamps last_sync.
func (r *Repository) ResolveRequest(ctx context.Context, id string, status models.RequestStatus) error {
	return r.resolveRequest(ctx, r.db, id, status)
}

func (r *Repository) resolveRequest(ctx context.Context, q querier, id string, status models.RequestStatus) error {
	switch status {
	case models.RequestPending, models.RequestSuccess, models.RequestFailed:
	default:
		return errors.Newf(errors.ErrInvalid, "unknown request status %q", status)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE sync_requests SET status = ?, last_sync = ? WHERE id = ?`, status, r.nowMillis(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(errors.ErrConstraint, "entity already has an active request", err)
		}
		return errors.Wrap(errors.ErrDatabase, "failed to resolve request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to resolve request", err)
	}
	if n == 0 {
		return errors.Newf(errors.ErrNotFound, "request %s not found", id)
	}
	return nil
}

// BeginPush creates a pending request and claims up to limit pending
// operations for it in one transaction. It returns the request and the
// number of claimed operations.
func (r *Repository) BeginPush(ctx context.Context, entityName, id string, limit int) (*models.SyncRequest, int64, error) {
	var req *models.SyncRequest
	var claimed int64
	err := r.withTx(ctx, func(q querier) error {
		var err error
		if req, err = r.createRequest(ctx, q, entityName, id); err != nil {
			return err
		}
		claimed, err = claimPending(ctx, q, entityName, id, limit)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return req, claimed, nil
}

// FinalizePush marks the request's operations pushed and resolves it
// as success in one transaction. It returns the number of operations marked.
func (r *Repository) FinalizePush(ctx context.Context, requestID string) (int64, error) {
	var pushed int64
	err := r.withTx(ctx, func(q querier) error {
		var err error
		if pushed, err = markPushed(ctx, q, requestID); err != nil {
			return err
		}
		return r.resolveRequest(ctx, q, requestID, models.RequestSuccess)
	})
	return pushed, err
}
