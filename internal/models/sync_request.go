// Package models provides data model definitions for the terminal sync core.
package models

import "time"

// RequestStatus is the lifecycle state of a push attempt.
type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestSuccess RequestStatus = "success"
	RequestFailed  RequestStatus = "failed"
)

// Active reports whether a request in this state still needs resolving.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestFailed
}

// SyncRequest is one push attempt for one entity.
// At most one active request exists per entity.
type SyncRequest struct {
	ID         string        `db:"id" json:"id"`
	EntityName string        `db:"entity_name" json:"entityName"`
	Status     RequestStatus `db:"status" json:"status"`
	LastSync   int64         `db:"last_sync" json:"lastSync,omitempty"` // unix millis, 0 until first resolve
	CreatedAt  int64         `db:"created_at" json:"createdAt"`         // unix millis
}

// TableName returns the table name for SyncRequest.
func (SyncRequest) TableName() string {
	return "sync_requests"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (r *SyncRequest) CreatedAtTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// LastSyncTime returns LastSync as time.Time, or nil if never resolved.
func (r *SyncRequest) LastSyncTime() *time.Time {
	if r.LastSync == 0 {
		return nil
	}
	t := time.UnixMilli(r.LastSync)
	return &t
}
