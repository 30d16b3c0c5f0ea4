// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =====================================================
// Operation Tests
// =====================================================

// TestOperation_TableName verifies the table name.
func TestOperation_TableName(t *testing.T) {
	if got := (Operation{}).TableName(); got != "operations" {
		t.Errorf("TableName() = %q, want operations", got)
	}
}

// TestAction_Valid verifies supported actions.
func TestAction_Valid(t *testing.T) {
	if !ActionInsert.Valid() || !ActionUpdate.Valid() {
		t.Error("INSERT and UPDATE should be valid")
	}
	if Action("DELETE").Valid() {
		t.Error("DELETE should not be valid")
	}
}

// TestOperationPayload_Validate verifies action-specific payload shapes.
func TestOperationPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload OperationPayload
		action  Action
		wantErr bool
	}{
		{"insert with doc", OperationPayload{Doc: map[string]interface{}{"_id": "1"}}, ActionInsert, false},
		{"insert without doc", OperationPayload{}, ActionInsert, true},
		{"update complete", OperationPayload{
			Filter: map[string]interface{}{"_id": "1"},
			Update: map[string]interface{}{"qty": 2},
		}, ActionUpdate, false},
		{"update without filter", OperationPayload{Update: map[string]interface{}{"qty": 2}}, ActionUpdate, true},
		{"unknown action", OperationPayload{Doc: map[string]interface{}{}}, Action("DELETE"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate(tt.action)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestOperation_EncodeDecodePayload verifies the payload survives a rewrite.
func TestOperation_EncodeDecodePayload(t *testing.T) {
	op := &Operation{Seq: 7, Payload: json.RawMessage(`{"doc":{"_id":"p1","localImage":"/tmp/a.png"}}`)}

	p, err := op.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	delete(p.Doc, "localImage")
	p.Doc["image"] = "https://cdn/a.png"

	if err := op.EncodePayload(p); err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	again, err := op.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if again.Doc["image"] != "https://cdn/a.png" {
		t.Errorf("image = %v", again.Doc["image"])
	}
	if _, ok := again.Doc["localImage"]; ok {
		t.Error("localImage should be gone after rewrite")
	}
}

// TestOperation_EncodeDecodePayload_numbers verifies numbers keep their exact text.
func TestOperation_EncodeDecodePayload_numbers(t *testing.T) {
	op := &Operation{Seq: 8, Payload: json.RawMessage(`{"doc":{"barcode":9007199254740993,"price":12.50}}`)}

	p, err := op.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if err := op.EncodePayload(p); err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	got := string(op.Payload)
	for _, want := range []string{`"barcode":9007199254740993`, `"price":12.50`} {
		if !strings.Contains(got, want) {
			t.Errorf("payload = %s, want it to contain %s", got, want)
		}
	}
}

// TestOperation_DecodePayload_invalid verifies corrupt payloads are reported.
func TestOperation_DecodePayload_invalid(t *testing.T) {
	op := &Operation{Seq: 1, Payload: json.RawMessage(`not json`)}
	if _, err := op.DecodePayload(); err == nil {
		t.Error("DecodePayload() should fail on invalid JSON")
	}
}

// TestOperation_CreatedAtTime verifies millisecond conversion.
func TestOperation_CreatedAtTime(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	op := &Operation{CreatedAt: now.UnixMilli()}
	if !op.CreatedAtTime().Equal(now) {
		t.Errorf("CreatedAtTime() = %v, want %v", op.CreatedAtTime(), now)
	}
}

// =====================================================
// SyncRequest Tests
// =====================================================

// TestRequestStatus_Active verifies which states count as unresolved.
func TestRequestStatus_Active(t *testing.T) {
	tests := []struct {
		status RequestStatus
		want   bool
	}{
		{RequestPending, true},
		{RequestFailed, true},
		{RequestSuccess, false},
	}
	for _, tt := range tests {
		if got := tt.status.Active(); got != tt.want {
			t.Errorf("%s.Active() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestSyncRequest_LastSyncTime verifies nil until resolved.
func TestSyncRequest_LastSyncTime(t *testing.T) {
	r := &SyncRequest{}
	if r.LastSyncTime() != nil {
		t.Error("LastSyncTime() should be nil for an unresolved request")
	}
	r.LastSync = 1700000000000
	if got := r.LastSyncTime(); got == nil || got.UnixMilli() != 1700000000000 {
		t.Errorf("LastSyncTime() = %v", got)
	}
}

// =====================================================
// QueueItem Tests
// =====================================================

// TestParseQueueItem verifies parsing of dispatcher work items.
func TestParseQueueItem(t *testing.T) {
	tests := []struct {
		in      string
		want    QueueItem
		wantErr bool
	}{
		{"orders-push", QueueItem{Entity: "orders", Direction: DirectionPush}, false},
		{"products-pull", QueueItem{Entity: "products", Direction: DirectionPull}, false},
		{"stock-movements-push", QueueItem{Entity: "stock-movements", Direction: DirectionPush}, false},
		{"orders", QueueItem{}, true},
		{"orders-sync", QueueItem{}, true},
		{"-push", QueueItem{}, true},
		{"orders-", QueueItem{}, true},
		{"", QueueItem{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQueueItem(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseQueueItem(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseQueueItem(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}
