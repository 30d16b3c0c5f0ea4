package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/assets"
)

// EntityState is the summarized sync state of one entity.
type EntityState string

const (
	EntityIdle    EntityState = "idle"    // nothing pending, no open request
	EntityPending EntityState = "pending" // operations waiting or a request in flight
	EntityFailed  EntityState = "failed"  // last request was rejected and awaits retry
)

// EntityStatus is the status of one entity as reported by the local API and CLI.
type EntityStatus struct {
	Entity        string              `json:"entity"`
	Push          bool                `json:"push"`
	Pull          bool                `json:"pull"`
	State         EntityState         `json:"state"`
	Pending       int64               `json:"pending"`
	Records       int64               `json:"records"`
	ActiveRequest *models.SyncRequest `json:"activeRequest,omitempty"`
	LastRequest   *models.SyncRequest `json:"lastRequest,omitempty"`
	Watermark     *time.Time          `json:"watermark,omitempty"`
}

// Engine wires the push drainer, pull fetcher and registry over one repository.
type Engine struct {
	repo       *db.Repository
	registry   *Registry
	pusher     *Pusher
	puller     *Puller
	watermarks *WatermarkStore
}

// NewEngine creates an Engine. uploader may be nil.
func NewEngine(repo *db.Repository, r Remote, uploader assets.Uploader, pushCfg *PushConfig) *Engine {
	watermarks := NewWatermarkStore(repo)
	pusher := NewPusher(repo, r, uploader, pushCfg)
	puller := NewPuller(r, repo, watermarks)
	return &Engine{
		repo:       repo,
		registry:   NewRegistry(pusher, puller),
		pusher:     pusher,
		puller:     puller,
		watermarks: watermarks,
	}
}

// Registry returns the entity registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Watermarks returns the watermark store.
func (e *Engine) Watermarks() *WatermarkStore {
	return e.watermarks
}

// Puller returns the pull fetcher.
func (e *Engine) Puller() *Puller {
	return e.puller
}

// Outbox returns an Outbox recording into the engine's repository.
func (e *Engine) Outbox(enqueue EnqueueFunc) *Outbox {
	return NewOutbox(e.repo, enqueue)
}

// Status reports every entity in table order.
func (e *Engine) Status(ctx context.Context) ([]*EntityStatus, error) {
	statuses := make([]*EntityStatus, 0, len(Entities))
	for _, spec := range Entities {
		st, err := e.EntityStatus(ctx, spec)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// EntityStatus reports one entity.
func (e *Engine) EntityStatus(ctx context.Context, spec EntitySpec) (*EntityStatus, error) {
	st := &EntityStatus{Entity: spec.Name, Push: spec.Push, Pull: spec.Pull, State: EntityIdle}

	if spec.Push {
		var err error
		if st.Pending, err = e.repo.CountPending(ctx, spec.Name); err != nil {
			return nil, err
		}
		if st.ActiveRequest, err = e.repo.ActiveRequest(ctx, spec.Name); err != nil {
			return nil, err
		}
		if st.LastRequest, err = e.repo.LatestRequest(ctx, spec.Name); err != nil {
			return nil, err
		}
	}

	if spec.Pull {
		var err error
		if st.Records, err = e.repo.CountRecords(ctx, spec.Name); err != nil {
			return nil, err
		}
		// a corrupt watermark is reported as absent
		st.Watermark, _ = e.watermarks.Get(ctx, spec.Name)
	}

	switch {
	case st.ActiveRequest != nil && st.ActiveRequest.Status == models.RequestFailed:
		st.State = EntityFailed
	case st.ActiveRequest != nil || st.Pending > 0:
		st.State = EntityPending
	}
	return st, nil
}
