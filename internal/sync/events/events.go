// Package events carries dispatcher lifecycle signals to observers.
package events

import (
	gosync "sync"
	"time"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
)

// Type is the lifecycle stage of a queue item.
type Type string

const (
	Started   Type = "started"
	Completed Type = "completed"
	Failed    Type = "failed"
	Skipped   Type = "skipped" // another run of the same item was in flight
)

// Event is one lifecycle signal of a dispatched queue item.
type Event struct {
	Type     Type          `json:"type"`
	Item     string        `json:"item"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
	Duration time.Duration `json:"-"`
	Millis   int64         `json:"durationMs"`
	Time     time.Time     `json:"time"`
}

// NewEvent builds an event, filling Error and Code from err.
func NewEvent(typ Type, item string, err error, d time.Duration, at time.Time) Event {
	e := Event{Type: typ, Item: item, Err: err, Duration: d, Millis: d.Milliseconds(), Time: at}
	if err != nil {
		e.Error = err.Error()
		e.Code = string(errors.CodeOf(err))
	}
	return e
}

// Observer receives lifecycle events. OnSyncEvent must not block.
type Observer interface {
	OnSyncEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// OnSyncEvent calls f(e).
func (f ObserverFunc) OnSyncEvent(e Event) {
	f(e)
}

// Bus fans events out to every subscribed observer in subscription order.
type Bus struct {
	mu        gosync.RWMutex
	observers []Observer
}

// NewBus creates a Bus with initial observers.
func NewBus(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

// Subscribe adds an observer.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers e to every observer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnSyncEvent(e)
	}
}

// LogObserver writes events to the structured log.
type LogObserver struct{}

// OnSyncEvent logs e at a level matching its type.
func (LogObserver) OnSyncEvent(e Event) {
	fields := map[string]interface{}{"item": e.Item, "event": string(e.Type)}
	switch e.Type {
	case Started:
		logging.Debug("Queue item started", fields)
	case Completed:
		fields["duration_ms"] = e.Duration.Milliseconds()
		logging.Info("Queue item completed", fields)
	case Skipped:
		logging.Debug("Queue item skipped, already running", fields)
	case Failed:
		fields["duration_ms"] = e.Duration.Milliseconds()
		logging.ErrorWithCode("Queue item failed", e.Code, e.Err, fields)
	}
}

// TelemetryObserver records dispatch outcomes as metrics.
type TelemetryObserver struct{}

// OnSyncEvent counts finished dispatches and errors.
func (TelemetryObserver) OnSyncEvent(e Event) {
	if e.Type == Started {
		return
	}
	telemetry.Dispatched(e.Item, string(e.Type), e.Duration)
	if e.Type == Failed {
		telemetry.TrackError(e.Code)
	}
}
