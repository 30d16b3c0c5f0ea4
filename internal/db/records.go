package db

import (
	"context"
	"database/sql"
	stdjson "encoding/json"
	stderrors "errors"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
)

// =====================================================
// Record Store
// =====================================================

// UpsertRecords creates or replaces the given records in one transaction.
// The server copy always wins.
func (r *Repository) UpsertRecords(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	query := `
	INSERT INTO records (entity_name, record_id, doc, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(entity_name, record_id) DO UPDATE SET
		doc = excluded.doc,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	`
	now := r.nowMillis()
	return r.withTx(ctx, func(q querier) error {
		for _, rec := range records {
			if rec.EntityName == "" || rec.RecordID == "" {
				return errors.New(errors.ErrInvalid, "record requires entity name and id")
			}
			rec.SyncedAt = now
			if _, err := q.ExecContext(ctx, query, rec.EntityName, rec.RecordID, string(rec.Doc), rec.UpdatedAt, rec.SyncedAt); err != nil {
				return errors.Wrap(errors.ErrDatabase, "failed to upsert record "+rec.RecordID, err)
			}
		}
		return nil
	})
}

// GetRecord retrieves a mirrored record.
func (r *Repository) GetRecord(ctx context.Context, entityName, recordID string) (*models.Record, error) {
	query := `SELECT entity_name, record_id, doc, updated_at, synced_at
	FROM records WHERE entity_name = ? AND record_id = ?`

	var rec models.Record
	var doc string
	err := r.db.QueryRowContext(ctx, query, entityName, recordID).Scan(
		&rec.EntityName, &rec.RecordID, &doc, &rec.UpdatedAt, &rec.SyncedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrNotFound, "record "+recordID+" not found", err)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read record", err)
	}
	rec.Doc = stdjson.RawMessage(doc)
	return &rec, nil
}

// CountRecords returns the number of mirrored records of an entity.
func (r *Repository) CountRecords(ctx context.Context, entityName string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE entity_name = ?`, entityName).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count records", err)
	}
	return n, nil
}
