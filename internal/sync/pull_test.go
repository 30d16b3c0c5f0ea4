package sync

import (
	"context"
	stdjson "encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
)

func newTestPuller(repo *db.Repository, r Remote, c clock.Clock) (*Puller, *WatermarkStore) {
	wm := NewWatermarkStore(repo)
	p := NewPuller(r, repo, wm)
	p.SetClock(c)
	return p, wm
}

// =====================================================
// Paging
// =====================================================

func TestPuller_Pull_pagesUntilCount(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	fake.serve("customers", 250, remote.DefaultPageLimit)
	p, wm := newTestPuller(repo, fake, mock)

	result, err := p.Pull(ctx, mustSpec(t, "customers"))
	require.NoError(t, err)

	require.Len(t, fake.pullCalls, 3)
	for i, q := range fake.pullCalls {
		assert.Equal(t, i, q.Page)
		assert.Equal(t, remote.DefaultPageLimit, q.Limit)
		assert.Equal(t, remote.SortAsc, q.Sort)
		assert.True(t, q.UpdatedSince.Equal(time.Unix(0, 0)), "no watermark pulls from epoch")
	}
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 250, result.Records)

	n, err := repo.CountRecords(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	got, err := wm.Get(ctx, "customers")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(mock.Now()), "watermark is the pull start time")
	require.NotNil(t, result.Watermark)
}

func TestPuller_Pull_emptyPageStops(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	fake.serve("settings", 30, remote.DefaultPageLimit)
	// server over-reports its count
	fake.pages["settings"][0].Count = 500
	p, wm := newTestPuller(repo, fake, mock)

	result, err := p.Pull(ctx, mustSpec(t, "settings"))
	require.NoError(t, err)
	assert.Len(t, fake.pullCalls, 2)
	assert.Equal(t, 30, result.Records)

	got, err := wm.Get(ctx, "settings")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPuller_Pull_errorLeavesWatermark(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	fake.serve("customers", 250, remote.DefaultPageLimit)
	fake.onPull = func(_ string, q remote.PullQuery) error {
		if q.Page == 1 {
			return errors.Wrap(errors.ErrTransport, "GET /sync/customers/pull", context.DeadlineExceeded)
		}
		return nil
	}
	p, wm := newTestPuller(repo, fake, mock)

	_, err := p.Pull(ctx, mustSpec(t, "customers"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))

	got, err := wm.Get(ctx, "customers")
	require.NoError(t, err)
	assert.Nil(t, got)

	// records of completed pages stay
	n, err := repo.CountRecords(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

// =====================================================
// Orders Window
// =====================================================

func TestPuller_Pull_ordersDefaultLookback(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	p, _ := newTestPuller(repo, fake, mock)

	_, err := p.Pull(ctx, mustSpec(t, "orders"))
	require.NoError(t, err)

	require.Len(t, fake.pullCalls, 1)
	q := fake.pullCalls[0]
	assert.Equal(t, remote.SortDesc, q.Sort)
	assert.True(t, q.UpdatedSince.Equal(mock.Now().Add(-30*24*time.Hour)))
}

func TestPuller_Pull_ordersSkewBuffer(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	p, wm := newTestPuller(repo, fake, mock)

	mark := mock.Now().Add(-time.Hour)
	_, err := wm.Advance(ctx, "orders", mark)
	require.NoError(t, err)

	_, err = p.Pull(ctx, mustSpec(t, "orders"))
	require.NoError(t, err)
	assert.True(t, fake.pullCalls[0].UpdatedSince.Equal(mark.Add(-5*time.Minute)))
}

func TestPuller_Pull_ordersPageCap(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	fake.serve("orders", 1500, remote.DefaultPageLimit)
	p, wm := newTestPuller(repo, fake, mock)

	result, err := p.Pull(ctx, mustSpec(t, "orders"))
	require.NoError(t, err)
	assert.Len(t, fake.pullCalls, 10)
	assert.Equal(t, 1000, result.Records)

	got, err := wm.Get(ctx, "orders")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// =====================================================
// Decoding
// =====================================================

func TestPuller_Pull_decodeFailure(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an object", `[1,2]`},
		{"missing id", `{"name":"x"}`},
		{"empty id", `{"_id":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupRepo(t)
			ctx := context.Background()

			fake := newFakeRemote()
			fake.pages["taxes"] = map[int]*remote.PullPage{
				0: {Count: 1, Results: []stdjson.RawMessage{stdjson.RawMessage(tt.doc)}},
			}
			p, wm := newTestPuller(repo, fake, mock)

			_, err := p.Pull(ctx, mustSpec(t, "taxes"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrPullDecode))

			got, err := wm.Get(ctx, "taxes")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestDecodeRecords(t *testing.T) {
	spec := mustSpec(t, "products")
	records, err := decodeRecords(spec, []stdjson.RawMessage{
		stdjson.RawMessage(`{"_id":"p1","updatedAt":"2026-02-01T10:00:00Z"}`),
		stdjson.RawMessage(`{"_id":42,"updatedAt":1767225600000}`),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "p1", records[0].RecordID)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC).UnixMilli(), records[0].UpdatedAt)
	assert.Equal(t, "42", records[1].RecordID)
	assert.Equal(t, int64(1767225600000), records[1].UpdatedAt)
	assert.Equal(t, "products", records[1].EntityName)
}

// =====================================================
// Watermark Behavior
// =====================================================

func TestPuller_Pull_watermarkNeverMovesBackwards(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	p, wm := newTestPuller(repo, fake, mock)

	future := mock.Now().Add(24 * time.Hour)
	_, err := wm.Advance(ctx, "promotions", future)
	require.NoError(t, err)

	result, err := p.Pull(ctx, mustSpec(t, "promotions"))
	require.NoError(t, err)
	assert.Nil(t, result.Watermark)

	got, err := wm.Get(ctx, "promotions")
	require.NoError(t, err)
	assert.True(t, got.Equal(future))
}

func TestPuller_Pull_idempotent(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()

	fake := newFakeRemote()
	fake.serve("categories", 40, remote.DefaultPageLimit)
	p, wm := newTestPuller(repo, fake, mock)

	_, err := p.Pull(ctx, mustSpec(t, "categories"))
	require.NoError(t, err)
	require.NoError(t, wm.Reset(ctx, "categories"))

	mock.Add(time.Minute)
	_, err = p.Pull(ctx, mustSpec(t, "categories"))
	require.NoError(t, err)

	n, err := repo.CountRecords(ctx, "categories")
	require.NoError(t, err)
	assert.Equal(t, int64(40), n)

	rec, err := repo.GetRecord(ctx, "categories", "categories-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"categories-7","updatedAt":"2026-02-01T10:00:00Z"}`, string(rec.Doc))
}

func TestPuller_Pull_corruptWatermarkFallsBackToFloor(t *testing.T) {
	repo, mock := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SetValue(ctx, WatermarkPrefix+"customers", "yesterday"))

	fake := newFakeRemote()
	p, wm := newTestPuller(repo, fake, mock)

	_, err := p.Pull(ctx, mustSpec(t, "customers"))
	require.NoError(t, err)
	assert.True(t, fake.pullCalls[0].UpdatedSince.Equal(time.Unix(0, 0)))

	got, err := wm.Get(ctx, "customers")
	require.NoError(t, err)
	assert.True(t, got.Equal(mock.Now()))
}
