package sync

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
)

// pushCall is one recorded Push.
type pushCall struct {
	entity    string
	requestID string
	ops       []*models.Operation
}

// fakeRemote is an in-memory Remote.
type fakeRemote struct {
	pushes    []pushCall
	onPush    func(call int, c pushCall) error // call is 1-based
	statuses  map[string]remote.RequestStatus
	statusErr error

	pages     map[string]map[int]*remote.PullPage
	onPull    func(entity string, q remote.PullQuery) error
	pullCalls []remote.PullQuery
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		statuses: make(map[string]remote.RequestStatus),
		pages:    make(map[string]map[int]*remote.PullPage),
	}
}

func (f *fakeRemote) Push(_ context.Context, entity, requestID string, ops []*models.Operation) error {
	c := pushCall{entity: entity, requestID: requestID, ops: ops}
	f.pushes = append(f.pushes, c)
	if f.onPush != nil {
		return f.onPush(len(f.pushes), c)
	}
	return nil
}

func (f *fakeRemote) PushStatus(_ context.Context, requestID string) (remote.RequestStatus, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if s, ok := f.statuses[requestID]; ok {
		return s, nil
	}
	return remote.StatusNotFound, nil
}

func (f *fakeRemote) Pull(_ context.Context, entity string, q remote.PullQuery) (*remote.PullPage, error) {
	f.pullCalls = append(f.pullCalls, q)
	if f.onPull != nil {
		if err := f.onPull(entity, q); err != nil {
			return nil, err
		}
	}
	if page, ok := f.pages[entity][q.Page]; ok {
		return page, nil
	}
	return &remote.PullPage{}, nil
}

// serve splits total generated records of entity into pages of limit.
func (f *fakeRemote) serve(entity string, total, limit int) {
	pages := make(map[int]*remote.PullPage)
	for i := 0; i < total; i++ {
		p := i / limit
		if pages[p] == nil {
			pages[p] = &remote.PullPage{Count: total}
		}
		doc := fmt.Sprintf(`{"_id":"%s-%d","updatedAt":"2026-02-01T10:00:00Z"}`, entity, i)
		pages[p].Results = append(pages[p].Results, stdjson.RawMessage(doc))
	}
	f.pages[entity] = pages
}

func (f *fakeRemote) requestIDs() []string {
	ids := make([]string, 0, len(f.pushes))
	for _, c := range f.pushes {
		ids = append(ids, c.requestID)
	}
	return ids
}

func transportErr() error {
	return errors.Wrap(errors.ErrTransport, "POST /sync/orders/push", fmt.Errorf("connection reset by peer"))
}

func rejectedErr() error {
	return errors.New(errors.ErrPushFailed, "push of orders not accepted")
}

// setupRepo opens a migrated database in a temp dir.
func setupRepo(t *testing.T) (*db.Repository, *clock.Mock) {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	repo := db.NewRepository(database.DB)
	repo.SetClock(mock)
	t.Cleanup(func() {
		repo.Close()
		database.Close()
	})
	return repo, mock
}

func appendOps(t *testing.T, repo *db.Repository, entity string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.AppendOperation(context.Background(), entity, models.ActionInsert,
			&models.OperationPayload{Doc: map[string]interface{}{"_id": fmt.Sprintf("%s-%d", entity, i)}})
		require.NoError(t, err)
	}
}

func mustSpec(t *testing.T, name string) EntitySpec {
	t.Helper()
	spec, ok := LookupEntity(name)
	require.True(t, ok, "entity %s", name)
	return spec
}
