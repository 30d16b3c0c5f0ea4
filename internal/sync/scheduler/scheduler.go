// Package scheduler runs the queue dispatcher and the periodic sweep in the background.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/kimhsiao/tijara/backend/internal/logging"
)

// Config holds scheduler configuration.
type Config struct {
	QueueInterval time.Duration // dispatcher tick (default: 2 seconds)
	SweepInterval time.Duration // sweep period (default: 20 minutes)
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		QueueInterval: DefaultQueueInterval,
		SweepInterval: DefaultSweepInterval,
	}
}

// Scheduler owns the dispatcher and sweep goroutines.
type Scheduler struct {
	dispatcher    *Dispatcher
	sweep         *Sweep
	queueInterval time.Duration
	sweepInterval time.Duration

	stopCh    chan struct{}
	wg        gosync.WaitGroup
	mu        gosync.RWMutex
	isRunning bool
}

// Status is a snapshot of the scheduler.
type Status struct {
	IsRunning     bool       `json:"isRunning"`
	Processing    bool       `json:"processing"`
	Sweeping      bool       `json:"sweeping"`
	LastSweep     *time.Time `json:"lastSweep,omitempty"`
	QueueDepth    int        `json:"queueDepth"`
	QueueInterval string     `json:"queueInterval"`
	SweepInterval string     `json:"sweepInterval"`
}

// New creates a Scheduler. A nil config uses DefaultConfig.
func New(dispatcher *Dispatcher, sweep *Sweep, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	queueInterval := config.QueueInterval
	if queueInterval <= 0 {
		queueInterval = DefaultQueueInterval
	}
	sweepInterval := config.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Scheduler{
		dispatcher:    dispatcher,
		sweep:         sweep,
		queueInterval: queueInterval,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the dispatcher and sweep loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.dispatcher.loop(ctx, s.queueInterval, s.stopCh)
	}()
	go func() {
		defer s.wg.Done()
		s.sweep.loop(ctx, s.sweepInterval, s.stopCh)
	}()

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"queue_interval": s.queueInterval.String(),
		"sweep_interval": s.sweepInterval.String(),
	})
}

// Stop stops both loops and waits for an in-flight item and any triggered
// sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		s.sweep.Wait()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.sweep.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// TriggerSweep starts a sweep immediately. It reports false when one is running.
func (s *Scheduler) TriggerSweep(ctx context.Context) bool {
	return s.sweep.Trigger(ctx)
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() Status {
	return Status{
		IsRunning:     s.IsRunning(),
		Processing:    s.dispatcher.IsProcessing(),
		Sweeping:      s.sweep.IsRunning(),
		LastSweep:     s.sweep.LastSweep(),
		QueueDepth:    s.dispatcher.queue.Len(),
		QueueInterval: s.queueInterval.String(),
		SweepInterval: s.sweepInterval.String(),
	}
}
