package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
)

// =====================================================
// Operation Log
// =====================================================

const operationColumns = `seq, request_id, entity_name, action, payload, status, created_at`

// AppendOperation records a local mutation as a pending operation.
func (r *Repository) AppendOperation(ctx context.Context, entityName string, action models.Action, payload *models.OperationPayload) (*models.Operation, error) {
	if entityName == "" {
		return nil, errors.New(errors.ErrInvalid, "entity name is required")
	}
	if payload == nil {
		return nil, errors.New(errors.ErrInvalid, "payload is required")
	}
	if err := payload.Validate(action); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "invalid operation", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "failed to encode payload", err)
	}

	op := &models.Operation{
		EntityName: entityName,
		Action:     action,
		Payload:    data,
		Status:     models.OperationPending,
		CreatedAt:  r.nowMillis(),
	}

	query := `
	INSERT INTO operations (entity_name, action, payload, status, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query, op.EntityName, op.Action, string(op.Payload), op.Status, op.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to append operation", err)
	}
	if op.Seq, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read operation seq", err)
	}
	return op, nil
}

// ClaimPending assigns requestID to the entity's pending operations that are
// unclaimed or whose claiming request is missing or resolved (stale claim).
// The claim is one conditional UPDATE. limit <= 0 claims everything pending.
func (r *Repository) ClaimPending(ctx context.Context, entityName, requestID string, limit int) (int64, error) {
	return claimPending(ctx, r.db, entityName, requestID, limit)
}

func claimPending(ctx context.Context, q querier, entityName, requestID string, limit int) (int64, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `
	UPDATE operations SET request_id = ?
	WHERE seq IN (
		SELECT o.seq FROM operations o
		WHERE o.entity_name = ? AND o.status = 'pending'
		  AND (o.request_id IS NULL OR NOT EXISTS (
			SELECT 1 FROM sync_requests sr
			WHERE sr.id = o.request_id AND sr.status IN ('pending', 'failed')
		  ))
		ORDER BY o.seq
		LIMIT ?
	)
	`
	res, err := q.ExecContext(ctx, query, requestID, entityName, limit)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to claim operations", err)
	}
	return res.RowsAffected()
}

// ClaimedPage returns one page of the pending operations claimed by requestID, ordered by seq.
func (r *Repository) ClaimedPage(ctx context.Context, requestID string, pageSize, offset int) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations
	WHERE request_id = ? AND status = 'pending'
	ORDER BY seq LIMIT ? OFFSET ?`

	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, requestID, pageSize, offset)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read claimed operations", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListOperations returns the most recent operations of an entity, newest first.
func (r *Repository) ListOperations(ctx context.Context, entityName string, limit int) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations
	WHERE entity_name = ? ORDER BY seq DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, entityName, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list operations", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanOperation(rows *sql.Rows) (*models.Operation, error) {
	var op models.Operation
	var requestID sql.NullString
	var payload string
	if err := rows.Scan(&op.Seq, &requestID, &op.EntityName, &op.Action, &payload, &op.Status, &op.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}
	op.RequestID = requestID.String
	op.Payload = json.RawMessage(payload)
	return &op, nil
}

// MarkPushed transitions every pending operation of requestID to pushed.
func (r *Repository) MarkPushed(ctx context.Context, requestID string) (int64, error) {
	return markPushed(ctx, r.db, requestID)
}

func markPushed(ctx context.Context, q querier, requestID string) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE operations SET status = 'pushed' WHERE request_id = ? AND status = 'pending'`, requestID)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to mark operations pushed", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of pending operations of an entity.
func (r *Repository) CountPending(ctx context.Context, entityName string) (int64, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT COUNT(*) FROM operations WHERE entity_name = ? AND status = 'pending'`)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := stmt.QueryRowContext(ctx, entityName).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count pending operations", err)
	}
	return n, nil
}

// PendingEntities returns the entities with outstanding push work:
// pending operations or an unresolved request.
func (r *Repository) PendingEntities(ctx context.Context) ([]string, error) {
	query := `
	SELECT entity_name FROM operations WHERE status = 'pending'
	UNION
	SELECT entity_name FROM sync_requests WHERE status IN ('pending', 'failed')
	ORDER BY entity_name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list pending entities", err)
	}
	defer rows.Close()

	var entities []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		entities = append(entities, name)
	}
	return entities, rows.Err()
}

// PurgePushed deletes pushed operations created before the cutoff (unix millis)
// whose request resolved successfully.
func (r *Repository) PurgePushed(ctx context.Context, before int64) (int64, error) {
	query := `
	DELETE FROM operations
	WHERE status = 'pushed' AND created_at < ?
	  AND request_id IN (SELECT id FROM sync_requests WHERE status = 'success')
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to purge operations", err)
	}
	return res.RowsAffected()
}
