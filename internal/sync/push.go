package sync

import (
	"context"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/assets"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
	"github.com/kimhsiao/tijara/backend/internal/uuid"
)

// DefaultPushPageSize is the number of operations sent per push call.
const DefaultPushPageSize = 100

// PushConfig holds push drainer configuration.
type PushConfig struct {
	PageSize int

	// MaxOperationsPerRequest caps the operations claimed by one request.
	// 0 claims everything pending.
	MaxOperationsPerRequest int
}

// PushResult summarizes one drain invocation.
type PushResult struct {
	Entity         string
	RequestIDs     []string
	Pushed         int64
	Pages          int
	Resumed        bool
	ShortCircuited bool
}

// Pusher drains the operation log of one entity to the remote API.
type Pusher struct {
	store    db.PushStore
	remote   Remote
	uploader assets.Uploader
	pageSize int
	maxOps   int
	newID    func() (string, error)
}

// NewPusher creates a Pusher. uploader may be nil when no asset storage is configured.
func NewPusher(store db.PushStore, r Remote, uploader assets.Uploader, cfg *PushConfig) *Pusher {
	if cfg == nil {
		cfg = &PushConfig{}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPushPageSize
	}
	return &Pusher{
		store:    store,
		remote:   r,
		uploader: uploader,
		pageSize: pageSize,
		maxOps:   cfg.MaxOperationsPerRequest,
		newID:    uuid.NewTimeOrdered,
	}
}

// Drain pushes the entity's pending operations.
//
// An unresolved request from an earlier invocation is settled first: when the
// server already applied it the request is finalized without resending,
// otherwise its claimed operations are sent again under the same id. New
// requests are then opened while pending operations remain.
func (p *Pusher) Drain(ctx context.Context, spec EntitySpec) (*PushResult, error) {
	result := &PushResult{Entity: spec.Name}

	active, err := p.store.ActiveRequest(ctx, spec.Name)
	if err != nil {
		return result, err
	}
	if active != nil {
		if err := p.resume(ctx, spec, active, result); err != nil {
			return result, err
		}
	}

	for {
		pending, err := p.store.CountPending(ctx, spec.Name)
		if err != nil {
			return result, err
		}
		if pending == 0 {
			return result, nil
		}

		id, err := p.newID()
		if err != nil {
			return result, errors.Wrap(errors.ErrInternal, "failed to generate request id", err)
		}
		_, claimed, err := p.store.BeginPush(ctx, spec.Name, id, p.maxOps)
		if err != nil {
			return result, err
		}
		if claimed == 0 {
			// everything pending was taken meanwhile; close the empty request
			return result, p.store.ResolveRequest(ctx, id, models.RequestSuccess)
		}

		telemetry.RequestOutcome(spec.Name, telemetry.OutcomeCreated)
		logging.Info("Push request created", map[string]interface{}{
			"entity":     spec.Name,
			"request_id": id,
			"claimed":    claimed,
		})

		if err := p.drainRequest(ctx, spec, id, result); err != nil {
			return result, err
		}

		if p.maxOps <= 0 || claimed < int64(p.maxOps) {
			return result, nil
		}
	}
}

// resume settles a request left unresolved by an earlier invocation.
func (p *Pusher) resume(ctx context.Context, spec EntitySpec, req *models.SyncRequest, result *PushResult) error {
	status, err := p.remote.PushStatus(ctx, req.ID)
	if err != nil {
		return errors.Wrap(errors.CodeOf(err), "failed to check request "+req.ID, err)
	}

	result.Resumed = true
	if status == remote.StatusSuccess {
		n, err := p.store.FinalizePush(ctx, req.ID)
		if err != nil {
			return err
		}
		result.ShortCircuited = true
		result.Pushed += n
		result.RequestIDs = append(result.RequestIDs, req.ID)
		telemetry.RequestOutcome(spec.Name, telemetry.OutcomeShortCircuited)
		telemetry.OperationsPushed(spec.Name, n)
		logging.Info("Push request already applied remotely", map[string]interface{}{
			"entity":     spec.Name,
			"request_id": req.ID,
			"pushed":     n,
		})
		return nil
	}

	telemetry.RequestOutcome(spec.Name, telemetry.OutcomeResumed)
	logging.Info("Resuming push request", map[string]interface{}{
		"entity":        spec.Name,
		"request_id":    req.ID,
		"local_status":  string(req.Status),
		"remote_status": string(status),
	})
	return p.drainRequest(ctx, spec, req.ID, result)
}

// drainRequest sends every claimed page of requestID, then finalizes it.
// Claimed rows stay pending until finalize, so offsets are stable.
func (p *Pusher) drainRequest(ctx context.Context, spec EntitySpec, requestID string, result *PushResult) error {
	for offset := 0; ; offset += p.pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.store.ClaimedPage(ctx, requestID, p.pageSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		if err := p.rewriteAssets(ctx, spec, page); err != nil {
			return err
		}

		if err := p.remote.Push(ctx, spec.Name, requestID, page); err != nil {
			if errors.Is(err, errors.ErrPushFailed) {
				telemetry.RequestOutcome(spec.Name, telemetry.OutcomeFailed)
				if rerr := p.store.ResolveRequest(ctx, requestID, models.RequestFailed); rerr != nil {
					logging.Error("Failed to mark request failed", rerr, map[string]interface{}{"request_id": requestID})
				}
			}
			return err
		}
		result.Pages++
	}

	n, err := p.store.FinalizePush(ctx, requestID)
	if err != nil {
		return err
	}
	result.Pushed += n
	result.RequestIDs = append(result.RequestIDs, requestID)
	telemetry.RequestOutcome(spec.Name, telemetry.OutcomeFinalized)
	telemetry.OperationsPushed(spec.Name, n)
	logging.Info("Push request finalized", map[string]interface{}{
		"entity":     spec.Name,
		"request_id": requestID,
		"pushed":     n,
	})
	return nil
}

// rewriteAssets uploads local assets referenced by the page and rewrites
// the payloads. Any failure aborts the page before transmission.
func (p *Pusher) rewriteAssets(ctx context.Context, spec EntitySpec, page []*models.Operation) error {
	if spec.Assets == nil || p.uploader == nil {
		return nil
	}
	rw := assets.NewRewriter(p.uploader, *spec.Assets)

	for _, op := range page {
		payload, err := op.DecodePayload()
		if err != nil {
			return errors.Wrap(errors.ErrAssetUpload, "cannot rewrite payload", err)
		}

		n := 0
		for _, doc := range []map[string]interface{}{payload.Doc, payload.Update} {
			c, err := rw.Rewrite(ctx, doc)
			n += c
			if err != nil {
				return err
			}
		}
		if n == 0 {
			continue
		}
		if err := op.EncodePayload(payload); err != nil {
			return errors.Wrap(errors.ErrAssetUpload, "cannot rewrite payload", err)
		}
	}
	return nil
}
