package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/events"
	"github.com/kimhsiao/tijara/backend/internal/sync/network"
)

// DefaultSweepInterval is the sweep period.
const DefaultSweepInterval = 20 * time.Minute

// PullRunner runs pull items and lists the pullable entities. *sync.Registry implements it.
type PullRunner interface {
	Runner
	PullEntities() []string
}

// PendingSource lists entities with unpushed work. *db.Repository implements it.
type PendingSource interface {
	PendingEntities(ctx context.Context) ([]string, error)
}

// EnqueueFunc schedules a queue item.
type EnqueueFunc func(item string) error

// SweepResult summarizes one sweep.
type SweepResult struct {
	Pulled   []string
	Failed   map[string]error
	Enqueued []string
}

// Sweep periodically pulls every pullable entity and re-enqueues pushes of
// entities with pending operations or an unresolved request.
type Sweep struct {
	runner  PullRunner
	pending PendingSource
	enqueue EnqueueFunc
	monitor network.Monitor
	bus     *events.Bus
	clock   clock.Clock

	mu        gosync.Mutex
	isRunning bool
	lastSweep time.Time
	triggered gosync.WaitGroup
}

// NewSweep creates a Sweep. pending and enqueue may be nil to skip push re-enqueueing.
func NewSweep(runner PullRunner, pending PendingSource, enqueue EnqueueFunc, monitor network.Monitor, bus *events.Bus) *Sweep {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Sweep{
		runner:  runner,
		pending: pending,
		enqueue: enqueue,
		monitor: monitor,
		bus:     bus,
		clock:   clock.New(),
	}
}

// SetClock replaces the clock used for the ticker and timestamps.
func (s *Sweep) SetClock(c clock.Clock) {
	s.clock = c
}

// IsRunning reports whether a sweep is in progress.
func (s *Sweep) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastSweep returns the completion time of the last sweep, or nil.
func (s *Sweep) LastSweep() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSweep.IsZero() {
		return nil
	}
	t := s.lastSweep
	return &t
}

// Run performs one sweep. It returns nil when a sweep is already running
// or the API is unreachable.
func (s *Sweep) Run(ctx context.Context) *SweepResult {
	if !s.acquire() {
		logging.Debug("Sweep already in progress, skipping", nil)
		return nil
	}
	defer s.release()
	return s.run(ctx)
}

func (s *Sweep) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return false
	}
	s.isRunning = true
	return true
}

func (s *Sweep) release() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

func (s *Sweep) run(ctx context.Context) *SweepResult {
	if !s.monitor.IsOnline(ctx) {
		logging.Debug("Offline, sweep skipped", nil)
		return nil
	}

	result := &SweepResult{Failed: make(map[string]error)}
	for _, entity := range s.runner.PullEntities() {
		if ctx.Err() != nil {
			return result
		}
		item := models.QueueItem{Entity: entity, Direction: models.DirectionPull}.String()

		start := s.clock.Now()
		s.bus.Publish(events.NewEvent(events.Started, item, nil, 0, start))
		err := s.runner.Run(ctx, item)
		elapsed := s.clock.Since(start)

		switch {
		case err == nil:
			result.Pulled = append(result.Pulled, entity)
			s.bus.Publish(events.NewEvent(events.Completed, item, nil, elapsed, s.clock.Now()))
		case errors.Is(err, errors.ErrSyncBusy):
			s.bus.Publish(events.NewEvent(events.Skipped, item, err, elapsed, s.clock.Now()))
		default:
			result.Failed[entity] = err
			s.bus.Publish(events.NewEvent(events.Failed, item, err, elapsed, s.clock.Now()))
		}
	}

	if s.pending != nil && s.enqueue != nil {
		result.Enqueued = s.enqueuePushes(ctx)
	}

	s.mu.Lock()
	s.lastSweep = s.clock.Now()
	s.mu.Unlock()

	logging.Info("Sweep completed", map[string]interface{}{
		"pulled":   len(result.Pulled),
		"failed":   len(result.Failed),
		"enqueued": len(result.Enqueued),
	})
	return result
}

func (s *Sweep) enqueuePushes(ctx context.Context) []string {
	entities, err := s.pending.PendingEntities(ctx)
	if err != nil {
		logging.Error("Failed to list entities with pending operations", err, nil)
		return nil
	}

	var enqueued []string
	for _, entity := range entities {
		item := models.QueueItem{Entity: entity, Direction: models.DirectionPush}.String()
		if err := s.enqueue(item); err != nil {
			logging.Warn("Failed to enqueue push", map[string]interface{}{"item": item, "error": err.Error()})
			continue
		}
		enqueued = append(enqueued, item)
	}
	return enqueued
}

// Trigger starts a sweep in the background. It reports false when one is
// already running. Wait blocks until triggered sweeps return.
func (s *Sweep) Trigger(ctx context.Context) bool {
	if !s.acquire() {
		return false
	}
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		defer s.release()
		s.run(ctx)
	}()
	return true
}

// Wait blocks until every sweep started by Trigger has returned.
func (s *Sweep) Wait() {
	s.triggered.Wait()
}

func (s *Sweep) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}
