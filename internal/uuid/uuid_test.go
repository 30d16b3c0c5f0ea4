// Package uuid provides unit tests for identifier generation and validation.
package uuid

import (
	"sort"
	"testing"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()
	if !IsValid(id) {
		t.Errorf("Generated UUID does not match v4 format: %s", id)
	}
}

// TestNewTimeOrdered tests that v7 ids are valid request ids and sort by creation.
func TestNewTimeOrdered(t *testing.T) {
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id, err := NewTimeOrdered()
		if err != nil {
			t.Fatalf("NewTimeOrdered() error: %v", err)
		}
		if !IsRequestID(id) {
			t.Fatalf("NewTimeOrdered() = %s, not a v7 id", id)
		}
		ids = append(ids, id)
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("time-ordered ids should sort in generation order")
	}
}

// TestIsValid tests v4 validation.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid v4", "550e8400-e29b-41d4-a716-446655440000", true},
		{"wrong version", "550e8400-e29b-11d4-a716-446655440000", false},
		{"wrong variant", "550e8400-e29b-41d4-c716-446655440000", false},
		{"no dashes", "550e8400e29b41d4a716446655440000", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestIsRequestID tests that only v7 ids are accepted as request ids.
func TestIsRequestID(t *testing.T) {
	if IsRequestID(New()) {
		t.Error("v4 id should not be accepted as a request id")
	}
	if IsRequestID("not-a-uuid") {
		t.Error("garbage should not be accepted as a request id")
	}
}

// TestParse tests parsing round trip.
func TestParse(t *testing.T) {
	id := New()
	parsed, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.String() != id {
		t.Errorf("Parse() = %s, want %s", parsed, id)
	}
	if _, err := Parse("nope"); err == nil {
		t.Error("Parse() should fail on invalid input")
	}
}
