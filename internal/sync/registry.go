package sync

import (
	"context"
	"sort"
	"time"

	"github.com/EagleChen/mapmutex"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/assets"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
)

// EntitySpec is the static sync configuration of one entity.
type EntitySpec struct {
	Name string
	Push bool
	Pull bool

	// Pull ordering and bounds.
	Sort            remote.SortOrder
	MaxPages        int           // 0 means until exhausted
	DefaultLookback time.Duration // floor without a watermark, 0 means epoch
	SkewBuffer      time.Duration // subtracted from an existing watermark

	IDField string
	Assets  *assets.Fields
}

var imageFields = assets.Fields{Local: "localImage", Remote: "image"}

var productImageFields = assets.Fields{Local: "localImage", Remote: "image", Nested: []string{"variants"}}

// Entities is the static entity table.
var Entities = []EntitySpec{
	{
		Name: "orders", Push: true, Pull: true,
		Sort: remote.SortDesc, MaxPages: 10,
		DefaultLookback: 30 * 24 * time.Hour, SkewBuffer: 5 * time.Minute,
		IDField: "_id",
	},
	{Name: "products", Push: true, Pull: true, Sort: remote.SortAsc, IDField: "_id", Assets: &productImageFields},
	{Name: "categories", Push: true, Pull: true, Sort: remote.SortAsc, IDField: "_id", Assets: &imageFields},
	{Name: "customers", Push: true, Pull: true, Sort: remote.SortAsc, IDField: "_id"},
	{Name: "stock-movements", Push: true, IDField: "_id"},
	{Name: "settings", Pull: true, Sort: remote.SortAsc, IDField: "_id"},
	{Name: "promotions", Pull: true, Sort: remote.SortAsc, IDField: "_id"},
	{Name: "taxes", Pull: true, Sort: remote.SortAsc, IDField: "_id"},
}

// LookupEntity returns the spec of a named entity.
func LookupEntity(name string) (EntitySpec, bool) {
	for _, spec := range Entities {
		if spec.Name == name {
			return spec, true
		}
	}
	return EntitySpec{}, false
}

// Syncable is one entity that can be pushed and/or pulled.
type Syncable interface {
	Entity() string
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
}

// entity adapts an EntitySpec to Syncable.
type entity struct {
	spec   EntitySpec
	pusher *Pusher
	puller *Puller
}

func (e *entity) Entity() string {
	return e.spec.Name
}

func (e *entity) Push(ctx context.Context) error {
	if !e.spec.Push {
		return errors.Newf(errors.ErrUnsupportedDirection, "%s cannot be pushed", e.spec.Name)
	}
	_, err := e.pusher.Drain(ctx, e.spec)
	return err
}

func (e *entity) Pull(ctx context.Context) error {
	if !e.spec.Pull {
		return errors.Newf(errors.ErrUnsupportedDirection, "%s cannot be pulled", e.spec.Name)
	}
	_, err := e.puller.Pull(ctx, e.spec)
	return err
}

// Registry resolves queue items to entity operations and serializes
// runs per entity and direction.
type Registry struct {
	entities map[string]Syncable
	locks    *mapmutex.Mutex
}

// NewRegistry builds a Registry from the static entity table.
func NewRegistry(pusher *Pusher, puller *Puller) *Registry {
	r := NewRegistryWith()
	for _, spec := range Entities {
		r.entities[spec.Name] = &entity{spec: spec, pusher: pusher, puller: puller}
	}
	return r
}

// NewRegistryWith builds a Registry from explicit Syncables.
func NewRegistryWith(syncables ...Syncable) *Registry {
	r := &Registry{
		entities: make(map[string]Syncable),
		// TryLock gives up after a few short retries: a busy key means
		// the same run is already in flight.
		locks: mapmutex.NewCustomizedMapMutex(3, float64(20*time.Millisecond), float64(time.Millisecond), 2, 0.2),
	}
	for _, s := range syncables {
		r.entities[s.Entity()] = s
	}
	return r
}

// Parse validates a queue item against the registry.
func (r *Registry) Parse(item string) (models.QueueItem, error) {
	qi, err := models.ParseQueueItem(item)
	if err != nil {
		return models.QueueItem{}, errors.Wrap(errors.ErrUnknownQueueItem, "invalid queue item", err)
	}
	if _, ok := r.entities[qi.Entity]; !ok {
		return models.QueueItem{}, errors.Newf(errors.ErrUnknownQueueItem, "unknown entity %q", qi.Entity)
	}
	if spec, ok := LookupEntity(qi.Entity); ok {
		if (qi.Direction == models.DirectionPush && !spec.Push) || (qi.Direction == models.DirectionPull && !spec.Pull) {
			return models.QueueItem{}, errors.Newf(errors.ErrUnsupportedDirection, "%s does not support %s", qi.Entity, qi.Direction)
		}
	}
	return qi, nil
}

// Lookup returns the Syncable and direction for a queue item.
func (r *Registry) Lookup(item string) (Syncable, models.Direction, error) {
	qi, err := r.Parse(item)
	if err != nil {
		return nil, "", err
	}
	return r.entities[qi.Entity], qi.Direction, nil
}

// Run executes a queue item. A run already in flight for the same
// entity and direction yields SYNC_BUSY.
func (r *Registry) Run(ctx context.Context, item string) error {
	s, dir, err := r.Lookup(item)
	if err != nil {
		return err
	}

	key := s.Entity() + "-" + string(dir)
	if !r.locks.TryLock(key) {
		return errors.Newf(errors.ErrSyncBusy, "%s already running", key)
	}
	defer r.locks.Unlock(key)

	if dir == models.DirectionPush {
		return s.Push(ctx)
	}
	return s.Pull(ctx)
}

// PullEntities returns the registered entities that support pull, in table order.
func (r *Registry) PullEntities() []string {
	var names []string
	for _, spec := range Entities {
		if _, ok := r.entities[spec.Name]; ok && spec.Pull {
			names = append(names, spec.Name)
		}
	}
	return names
}

// Entities returns every registered entity name, sorted.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether entity is registered.
func (r *Registry) Has(entity string) bool {
	_, ok := r.entities[entity]
	return ok
}
