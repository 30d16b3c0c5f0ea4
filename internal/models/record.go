package models

import stdjson "encoding/json"

// Record is a server-authored document mirrored in the local store.
type Record struct {
	EntityName string             `db:"entity_name" json:"entityName"`
	RecordID   string             `db:"record_id" json:"id"`
	Doc        stdjson.RawMessage `db:"doc" json:"doc"`
	UpdatedAt  int64              `db:"updated_at" json:"updatedAt,omitempty"` // unix millis from the document, 0 if absent
	SyncedAt   int64              `db:"synced_at" json:"syncedAt"`             // unix millis
}

// TableName returns the table name for Record.
func (Record) TableName() string {
	return "records"
}
