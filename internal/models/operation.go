// Package models provides data model definitions for the terminal sync core.
package models

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Action is the kind of local mutation an operation describes.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
)

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	return a == ActionInsert || a == ActionUpdate
}

// OperationStatus is the transmission state of an operation.
type OperationStatus string

const (
	OperationPending OperationStatus = "pending"
	OperationPushed  OperationStatus = "pushed"
)

// Operation is one row of the local operation log (outbox).
// A pushed operation is never mutated again.
type Operation struct {
	Seq        int64              `db:"seq" json:"id"`
	RequestID  string             `db:"request_id" json:"requestId,omitempty"` // empty until claimed
	EntityName string             `db:"entity_name" json:"entityName"`
	Action     Action             `db:"action" json:"action"`
	Payload    stdjson.RawMessage `db:"payload" json:"payload"`
	Status     OperationStatus    `db:"status" json:"status"`
	CreatedAt  int64              `db:"created_at" json:"createdAt"` // unix millis
}

// TableName returns the table name for Operation.
func (Operation) TableName() string {
	return "operations"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (o *Operation) CreatedAtTime() time.Time {
	return time.UnixMilli(o.CreatedAt)
}

// OperationPayload is the decoded form of Operation.Payload.
// INSERT carries Doc; UPDATE carries Filter and Update.
type OperationPayload struct {
	Doc    map[string]interface{} `json:"doc,omitempty"`
	Filter map[string]interface{} `json:"filter,omitempty"`
	Update map[string]interface{} `json:"update,omitempty"`
}

// Validate checks the payload matches the action shape.
func (p *OperationPayload) Validate(action Action) error {
	switch action {
	case ActionInsert:
		if p.Doc == nil {
			return fmt.Errorf("INSERT payload requires doc")
		}
	case ActionUpdate:
		if p.Filter == nil || p.Update == nil {
			return fmt.Errorf("UPDATE payload requires filter and update")
		}
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	return nil
}

// DecodePayload unmarshals the operation payload. Numbers decode as
// json.Number so a re-encoded payload keeps their exact text.
func (o *Operation) DecodePayload() (*OperationPayload, error) {
	var p OperationPayload
	dec := json.NewDecoder(bytes.NewReader(o.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode payload of operation %d: %w", o.Seq, err)
	}
	return &p, nil
}

// EncodePayload marshals p into the operation payload.
func (o *Operation) EncodePayload(p *OperationPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload of operation %d: %w", o.Seq, err)
	}
	o.Payload = data
	return nil
}
