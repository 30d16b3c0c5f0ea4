// Package queue provides the persistent FIFO of sync work items.
package queue

import (
	"fmt"
	"sync"

	"github.com/beeker1121/goque"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
)

// DefaultMaxSize bounds the number of waiting items.
const DefaultMaxSize = 1000

// ValidateFunc rejects items that cannot be dispatched.
type ValidateFunc func(item string) error

// PersistentQueue is an on-disk FIFO of "<entity>-<direction>" items.
// Its contents survive restarts.
type PersistentQueue struct {
	q        *goque.Queue
	mu       sync.Mutex
	maxSize  uint64
	validate ValidateFunc
}

// Open opens (or creates) the queue stored in dir. validate may be nil.
func Open(dir string, maxSize int, validate ValidateFunc) (*PersistentQueue, error) {
	q, err := goque.OpenQueue(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to open queue "+dir, err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	pq := &PersistentQueue{q: q, maxSize: uint64(maxSize), validate: validate}
	telemetry.SetQueueDepth(int(q.Length()))
	if n := q.Length(); n > 0 {
		logging.Info("Queue restored", map[string]interface{}{"dir": dir, "items": n})
	}
	return pq, nil
}

// Enqueue appends item. An identical item already waiting behind the head
// absorbs the new one; the head may be in flight and is never matched.
func (p *PersistentQueue) Enqueue(item string) error {
	if p.validate != nil {
		if err := p.validate(item); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.q.Length()
	for offset := uint64(1); offset < n; offset++ {
		waiting, err := p.q.PeekByOffset(offset)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to read queue", err)
		}
		if waiting.ToString() == item {
			logging.Debug("Queue item coalesced", map[string]interface{}{"item": item})
			return nil
		}
	}

	if n >= p.maxSize {
		return errors.Newf(errors.ErrQueueFull, "queue is full (max size: %d)", p.maxSize)
	}
	if _, err := p.q.EnqueueString(item); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to enqueue "+item, err)
	}
	telemetry.SetQueueDepth(int(n + 1))
	logging.Debug("Queue item added", map[string]interface{}{"item": item, "depth": n + 1})
	return nil
}

// Peek returns the head item without removing it. ok is false when empty.
func (p *PersistentQueue) Peek() (item string, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	head, err := p.q.Peek()
	if err == goque.ErrEmpty {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.ErrDatabase, "failed to peek queue", err)
	}
	return head.ToString(), true, nil
}

// Dequeue removes the head item, which must equal expected. This keeps a
// concurrent Clear from making the dispatcher drop an unrelated item.
func (p *PersistentQueue) Dequeue(expected string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	head, err := p.q.Peek()
	if err == goque.ErrEmpty {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to peek queue", err)
	}
	if head.ToString() != expected {
		return nil
	}
	if _, err := p.q.Dequeue(); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to dequeue "+expected, err)
	}
	telemetry.SetQueueDepth(int(p.q.Length()))
	return nil
}

// Len returns the number of waiting items.
func (p *PersistentQueue) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.q.Length())
}

// List returns the waiting items in dispatch order.
func (p *PersistentQueue) List() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.q.Length()
	items := make([]string, 0, n)
	for offset := uint64(0); offset < n; offset++ {
		it, err := p.q.PeekByOffset(offset)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, fmt.Sprintf("failed to read queue at %d", offset), err)
		}
		items = append(items, it.ToString())
	}
	return items, nil
}

// Clear removes every waiting item.
func (p *PersistentQueue) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		_, err := p.q.Dequeue()
		if err == goque.ErrEmpty {
			break
		}
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to clear queue", err)
		}
	}
	telemetry.SetQueueDepth(0)
	return nil
}

// Close closes the underlying store.
func (p *PersistentQueue) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Close()
}
