// Package uuid provides identifier generation and validation utilities.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new random UUID v4.
func New() string {
	return uuid.New().String()
}

// NewTimeOrdered generates a UUID v7. Ids generated later sort after earlier ones,
// which keeps sync request ids ordered by creation time on the server.
func NewTimeOrdered() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate time-ordered id: %w", err)
	}
	return id.String(), nil
}

// Parse parses any RFC 4122 UUID string.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	return id, nil
}

// IsValid checks if a string is a valid UUID v4.
// Enforces strict format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsRequestID checks if a string is a valid sync request id (UUID v7).
func IsRequestID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 7
}
