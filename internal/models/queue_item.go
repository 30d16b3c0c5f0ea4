// Package models provides data model definitions for the terminal sync core.
package models

import (
	"fmt"
	"strings"
)

// Direction is the sync direction of a queue item.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// QueueItem is a unit of dispatcher work, serialized as "<entity>-<direction>".
type QueueItem struct {
	Entity    string
	Direction Direction
}

// String returns the persisted form of the item.
func (q QueueItem) String() string {
	return q.Entity + "-" + string(q.Direction)
}

// ParseQueueItem parses "orders-push" or "stock-movements-pull".
// The direction is taken from the last dash so entity names may contain dashes.
func ParseQueueItem(s string) (QueueItem, error) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return QueueItem{}, fmt.Errorf("invalid queue item %q", s)
	}
	dir := Direction(s[i+1:])
	if dir != DirectionPush && dir != DirectionPull {
		return QueueItem{}, fmt.Errorf("invalid direction in queue item %q", s)
	}
	return QueueItem{Entity: s[:i], Direction: dir}, nil
}
