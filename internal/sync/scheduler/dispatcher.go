package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/sync/events"
	"github.com/kimhsiao/tijara/backend/internal/sync/network"
)

// DefaultQueueInterval is the dispatcher tick.
const DefaultQueueInterval = 2 * time.Second

// Runner executes one queue item. *sync.Registry implements it.
type Runner interface {
	Run(ctx context.Context, item string) error
}

// Queue is the FIFO the dispatcher drains. *queue.PersistentQueue implements it.
type Queue interface {
	Peek() (string, bool, error)
	Dequeue(expected string) error
	Len() int
}

// Dispatcher runs the head queue item once per tick, one item at a time.
// The item is removed only after its run returned, so a crash mid-run
// dispatches it again on restart.
type Dispatcher struct {
	queue   Queue
	runner  Runner
	monitor network.Monitor
	bus     *events.Bus
	clock   clock.Clock

	mu           gosync.Mutex
	isProcessing bool
}

// NewDispatcher creates a Dispatcher. bus may be nil.
func NewDispatcher(q Queue, runner Runner, monitor network.Monitor, bus *events.Bus) *Dispatcher {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Dispatcher{
		queue:   q,
		runner:  runner,
		monitor: monitor,
		bus:     bus,
		clock:   clock.New(),
	}
}

// SetClock replaces the clock used for durations and the ticker.
func (d *Dispatcher) SetClock(c clock.Clock) {
	d.clock = c
}

// IsProcessing reports whether an item is in flight.
func (d *Dispatcher) IsProcessing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isProcessing
}

// Tick dispatches the head item. It reports whether an item was run.
func (d *Dispatcher) Tick(ctx context.Context) bool {
	d.mu.Lock()
	if d.isProcessing {
		d.mu.Unlock()
		return false
	}
	d.isProcessing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.isProcessing = false
		d.mu.Unlock()
	}()

	item, ok, err := d.queue.Peek()
	if err != nil {
		logging.Error("Failed to read queue head", err, nil)
		return false
	}
	if !ok {
		return false
	}

	if !d.monitor.IsOnline(ctx) {
		logging.Debug("Offline, dispatch deferred", map[string]interface{}{"item": item})
		return false
	}

	start := d.clock.Now()
	d.bus.Publish(events.NewEvent(events.Started, item, nil, 0, start))

	runErr := d.runner.Run(ctx, item)
	elapsed := d.clock.Since(start)

	if ctx.Err() != nil {
		// shutting down; keep the item for the next start
		d.bus.Publish(events.NewEvent(events.Failed, item, ctx.Err(), elapsed, d.clock.Now()))
		return true
	}

	switch {
	case runErr == nil:
		d.bus.Publish(events.NewEvent(events.Completed, item, nil, elapsed, d.clock.Now()))
	case errors.Is(runErr, errors.ErrSyncBusy):
		d.bus.Publish(events.NewEvent(events.Skipped, item, runErr, elapsed, d.clock.Now()))
	default:
		d.bus.Publish(events.NewEvent(events.Failed, item, runErr, elapsed, d.clock.Now()))
	}

	if err := d.queue.Dequeue(item); err != nil {
		logging.Error("Failed to remove queue item", err, map[string]interface{}{"item": item})
	}
	return true
}

// loop ticks until ctx is done or stop is closed.
func (d *Dispatcher) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := d.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}
