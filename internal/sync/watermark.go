package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
)

// WatermarkPrefix prefixes watermark keys in the key/value store.
const WatermarkPrefix = "watermark:"

// WatermarkStore keeps the per-entity time of the last complete pull.
type WatermarkStore struct {
	kv db.KVStore
}

// NewWatermarkStore creates a WatermarkStore on kv.
func NewWatermarkStore(kv db.KVStore) *WatermarkStore {
	return &WatermarkStore{kv: kv}
}

func watermarkKey(entity string) string {
	return WatermarkPrefix + entity
}

// Get returns the entity watermark, or nil if the entity was never fully pulled.
func (w *WatermarkStore) Get(ctx context.Context, entity string) (*time.Time, error) {
	value, ok, err := w.kv.GetValue(ctx, watermarkKey(entity))
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPullDecode, fmt.Sprintf("corrupt watermark for %s", entity), err)
	}
	return &t, nil
}

// Advance moves the watermark to t. A t at or before the stored value is
// ignored so the watermark never moves backwards. It reports whether the
// stored value changed.
func (w *WatermarkStore) Advance(ctx context.Context, entity string, t time.Time) (bool, error) {
	current, err := w.Get(ctx, entity)
	if err != nil && !errors.Is(err, errors.ErrPullDecode) {
		return false, err
	}
	if current != nil && !t.After(*current) {
		logging.Debug("Watermark not advanced", map[string]interface{}{
			"entity":  entity,
			"current": current.Format(time.RFC3339Nano),
			"offered": t.UTC().Format(time.RFC3339Nano),
		})
		return false, nil
	}
	if err := w.kv.SetValue(ctx, watermarkKey(entity), t.UTC().Format(time.RFC3339Nano)); err != nil {
		return false, err
	}
	return true, nil
}

// Reset removes the watermark so the next pull starts from the default floor.
func (w *WatermarkStore) Reset(ctx context.Context, entity string) error {
	return w.kv.DeleteValue(ctx, watermarkKey(entity))
}
