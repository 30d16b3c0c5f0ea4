// Package scheduler tests for the dispatcher, sweep and scheduler loops.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/sync/events"
	"github.com/kimhsiao/tijara/backend/internal/sync/network"
)

// =====================================================
// Test Helpers
// =====================================================

// memQueue is an in-memory Queue.
type memQueue struct {
	mu    sync.Mutex
	items []string
}

func newMemQueue(items ...string) *memQueue {
	return &memQueue{items: items}
}

func (q *memQueue) Enqueue(item string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *memQueue) Peek() (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false, nil
	}
	return q.items[0], true, nil
}

func (q *memQueue) Dequeue(expected string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 && q.items[0] == expected {
		q.items = q.items[1:]
	}
	return nil
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *memQueue) snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.items...)
}

// fakeRunner records runs and returns configured errors.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	errs     map[string]error
	block    chan struct{} // when set, Run waits on it
	started  chan string
	entities []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{errs: make(map[string]error)}
}

func (r *fakeRunner) Run(ctx context.Context, item string) error {
	r.mu.Lock()
	r.calls = append(r.calls, item)
	err := r.errs[item]
	block, started := r.block, r.started
	r.mu.Unlock()

	if started != nil {
		started <- item
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *fakeRunner) PullEntities() []string {
	return r.entities
}

func (r *fakeRunner) runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) OnSyncEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Item+":"+string(e.Type))
	}
	return out
}

func newTestDispatcher(q Queue, r Runner, online bool) (*Dispatcher, *recorder) {
	rec := &recorder{}
	d := NewDispatcher(q, r, network.Static(online), events.NewBus(rec))
	return d, rec
}

// =====================================================
// Dispatcher Tests
// =====================================================

func TestDispatcher_Tick_empty(t *testing.T) {
	d, rec := newTestDispatcher(newMemQueue(), newFakeRunner(), true)
	assert.False(t, d.Tick(context.Background()))
	assert.Empty(t, rec.types())
}

func TestDispatcher_Tick_offline(t *testing.T) {
	q := newMemQueue("orders-push")
	r := newFakeRunner()
	d, _ := newTestDispatcher(q, r, false)

	assert.False(t, d.Tick(context.Background()))
	assert.Empty(t, r.runs())
	assert.Equal(t, []string{"orders-push"}, q.snapshot())
}

func TestDispatcher_Tick_fifo(t *testing.T) {
	q := newMemQueue("orders-push", "products-pull", "customers-push")
	r := newFakeRunner()
	d, rec := newTestDispatcher(q, r, true)

	for d.Tick(context.Background()) {
	}

	assert.Equal(t, []string{"orders-push", "products-pull", "customers-push"}, r.runs())
	assert.Zero(t, q.Len())
	assert.Equal(t, []string{
		"orders-push:started", "orders-push:completed",
		"products-pull:started", "products-pull:completed",
		"customers-push:started", "customers-push:completed",
	}, rec.types())
}

func TestDispatcher_Tick_outcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want events.Type
		code string
	}{
		{"failure", errors.New(errors.ErrPushFailed, "not accepted"), events.Failed, "PUSH_FAILED"},
		{"unknown item", errors.New(errors.ErrUnknownQueueItem, "unknown entity"), events.Failed, "UNKNOWN_QUEUE_ITEM"},
		{"busy", errors.New(errors.ErrSyncBusy, "orders-push already running"), events.Skipped, "SYNC_BUSY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newMemQueue("orders-push", "taxes-pull")
			r := newFakeRunner()
			r.errs["orders-push"] = tt.err
			d, rec := newTestDispatcher(q, r, true)

			require.True(t, d.Tick(context.Background()))
			assert.Equal(t, []string{"taxes-pull"}, q.snapshot(), "item is removed after any outcome")

			require.Len(t, rec.events, 2)
			last := rec.events[1]
			assert.Equal(t, tt.want, last.Type)
			assert.Equal(t, tt.code, last.Code)
		})
	}
}

func TestDispatcher_Tick_singleFlight(t *testing.T) {
	q := newMemQueue("orders-push", "taxes-pull")
	r := newFakeRunner()
	r.block = make(chan struct{})
	r.started = make(chan string, 1)
	d, _ := newTestDispatcher(q, r, true)

	done := make(chan bool)
	go func() { done <- d.Tick(context.Background()) }()
	<-r.started

	assert.True(t, d.IsProcessing())
	assert.False(t, d.Tick(context.Background()), "second tick must not run concurrently")

	close(r.block)
	assert.True(t, <-done)
	assert.False(t, d.IsProcessing())
	assert.Equal(t, []string{"orders-push"}, r.runs())
}

func TestDispatcher_Tick_shutdownKeepsItem(t *testing.T) {
	q := newMemQueue("orders-push")
	r := newFakeRunner()
	r.block = make(chan struct{})
	r.started = make(chan string, 1)
	d, rec := newTestDispatcher(q, r, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Tick(ctx)
		close(done)
	}()
	<-r.started
	cancel()
	<-done

	assert.Equal(t, []string{"orders-push"}, q.snapshot())
	assert.Equal(t, []string{"orders-push:started", "orders-push:failed"}, rec.types())
}

func TestDispatcher_durationFromClock(t *testing.T) {
	mock := clock.NewMock()
	q := newMemQueue("orders-push")
	r := newFakeRunner()
	d, rec := newTestDispatcher(q, r, true)
	d.SetClock(mock)

	r.block = make(chan struct{})
	r.started = make(chan string, 1)
	go func() {
		<-r.started
		mock.Add(1500 * time.Millisecond)
		close(r.block)
	}()
	require.True(t, d.Tick(context.Background()))

	require.Len(t, rec.events, 2)
	assert.Equal(t, 1500*time.Millisecond, rec.events[1].Duration)
}

// =====================================================
// Sweep Tests
// =====================================================

type fakePending struct {
	entities []string
	err      error
}

func (f *fakePending) PendingEntities(context.Context) ([]string, error) {
	return f.entities, f.err
}

func TestSweep_Run(t *testing.T) {
	r := newFakeRunner()
	r.entities = []string{"orders", "products", "taxes"}
	r.errs["products-pull"] = errors.New(errors.ErrPullDecode, "products result 3 has no _id")

	q := newMemQueue()
	rec := &recorder{}
	s := NewSweep(r, &fakePending{entities: []string{"orders", "stock-movements"}}, q.Enqueue,
		network.Static(true), events.NewBus(rec))

	result := s.Run(context.Background())
	require.NotNil(t, result)

	assert.Equal(t, []string{"orders-pull", "products-pull", "taxes-pull"}, r.runs(), "one failure does not stop the others")
	assert.Equal(t, []string{"orders", "taxes"}, result.Pulled)
	assert.Contains(t, result.Failed, "products")
	assert.Equal(t, []string{"orders-push", "stock-movements-push"}, result.Enqueued)
	assert.Equal(t, []string{"orders-push", "stock-movements-push"}, q.snapshot())
	assert.NotNil(t, s.LastSweep())
	assert.Len(t, rec.types(), 6)
}

func TestSweep_Run_withoutPushes(t *testing.T) {
	r := newFakeRunner()
	r.entities = []string{"settings"}

	s := NewSweep(r, nil, nil, network.Static(true), nil)
	result := s.Run(context.Background())
	require.NotNil(t, result)
	assert.Empty(t, result.Enqueued)
}

func TestSweep_Run_offline(t *testing.T) {
	r := newFakeRunner()
	r.entities = []string{"orders"}

	s := NewSweep(r, nil, nil, network.Static(false), nil)
	assert.Nil(t, s.Run(context.Background()))
	assert.Empty(t, r.runs())
	assert.Nil(t, s.LastSweep())
}

func TestSweep_Run_pendingListFailure(t *testing.T) {
	r := newFakeRunner()
	r.entities = []string{"orders"}

	q := newMemQueue()
	s := NewSweep(r, &fakePending{err: fmt.Errorf("database is locked")}, q.Enqueue, network.Static(true), nil)
	result := s.Run(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, []string{"orders"}, result.Pulled)
	assert.Zero(t, q.Len())
}

func TestSweep_guard(t *testing.T) {
	r := newFakeRunner()
	r.entities = []string{"orders"}
	r.block = make(chan struct{})
	r.started = make(chan string, 1)

	s := NewSweep(r, nil, nil, network.Static(true), nil)
	require.True(t, s.Trigger(context.Background()))
	<-r.started

	assert.True(t, s.IsRunning())
	assert.False(t, s.Trigger(context.Background()))
	assert.Nil(t, s.Run(context.Background()))

	close(r.block)
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"orders-pull"}, r.runs())
}

// =====================================================
// Scheduler Tests
// =====================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 2*time.Second, config.QueueInterval)
	assert.Equal(t, 20*time.Minute, config.SweepInterval)
}

func TestNew_defaults(t *testing.T) {
	d, _ := newTestDispatcher(newMemQueue(), newFakeRunner(), true)
	s := New(d, NewSweep(newFakeRunner(), nil, nil, network.Static(true), nil), &Config{})
	assert.Equal(t, DefaultQueueInterval, s.queueInterval)
	assert.Equal(t, DefaultSweepInterval, s.sweepInterval)
}

func TestScheduler_StartStop(t *testing.T) {
	mock := clock.NewMock()

	q := newMemQueue("orders-push")
	r := newFakeRunner()
	r.entities = []string{"taxes"}
	d, _ := newTestDispatcher(q, r, true)
	d.SetClock(mock)
	sw := NewSweep(r, nil, nil, network.Static(true), nil)
	sw.SetClock(mock)

	s := New(d, sw, DefaultConfig())
	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		mock.Add(DefaultQueueInterval)
		return q.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mock.Add(DefaultSweepInterval)
		return sw.LastSweep() != nil
	}, 2*time.Second, 10*time.Millisecond)

	status := s.GetStatus()
	assert.True(t, status.IsRunning)
	assert.Equal(t, "2s", status.QueueInterval)
	assert.Equal(t, "20m0s", status.SweepInterval)

	s.Stop()
	s.Stop() // no-op
	assert.False(t, s.IsRunning())
	assert.Contains(t, r.runs(), "orders-push")
	assert.Contains(t, r.runs(), "taxes-pull")
}

func TestScheduler_StopWaitsForTriggeredSweep(t *testing.T) {
	d, _ := newTestDispatcher(newMemQueue(), newFakeRunner(), true)

	r := newFakeRunner()
	r.entities = []string{"orders", "products"}
	r.block = make(chan struct{})
	r.started = make(chan string, 2)
	sw := NewSweep(r, nil, nil, network.Static(true), nil)

	s := New(d, sw, DefaultConfig())
	s.Start(context.Background())
	require.True(t, s.TriggerSweep(context.Background()))
	assert.False(t, s.TriggerSweep(context.Background()))
	<-r.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a triggered sweep was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(r.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
	assert.False(t, sw.IsRunning())
	assert.Equal(t, []string{"orders-pull", "products-pull"}, r.runs())
}
