package sync

import (
	"context"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/models"
)

// EnqueueFunc schedules a queue item such as "orders-push".
type EnqueueFunc func(item string) error

// Outbox records local writes and schedules their push.
type Outbox struct {
	log     db.OperationLog
	enqueue EnqueueFunc
}

// NewOutbox creates an Outbox. enqueue may be nil, leaving scheduling to the sweep.
func NewOutbox(log db.OperationLog, enqueue EnqueueFunc) *Outbox {
	return &Outbox{log: log, enqueue: enqueue}
}

// Record appends an operation for entity and enqueues "<entity>-push".
// The operation is durable once Record returns; an enqueue failure is only
// logged because the sweep re-enqueues entities with pending operations.
func (o *Outbox) Record(ctx context.Context, entity string, action models.Action, payload *models.OperationPayload) (*models.Operation, error) {
	spec, ok := LookupEntity(entity)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownQueueItem, "unknown entity %q", entity)
	}
	if !spec.Push {
		return nil, errors.Newf(errors.ErrUnsupportedDirection, "%s is pull-only", entity)
	}

	op, err := o.log.AppendOperation(ctx, entity, action, payload)
	if err != nil {
		return nil, err
	}

	if o.enqueue != nil {
		item := models.QueueItem{Entity: entity, Direction: models.DirectionPush}.String()
		if err := o.enqueue(item); err != nil {
			logging.Warn("Failed to enqueue push, sweep will retry", map[string]interface{}{
				"item":  item,
				"seq":   op.Seq,
				"error": err.Error(),
			})
		}
	}
	return op, nil
}
