package session

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = logger.NewLoggerTo(io.Discard, "ERROR", "test")

func collection(names ...string) *models.MSeriesCollection {
	coll := models.NewSeriesCollection()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range names {
		coll.Replace(models.NewTimeSeries(name, []models.MPoint{
			models.Observed(t0, 1),
			models.Observed(t0.Add(time.Hour), 2),
		}))
	}
	return coll
}

func TestCreateGetUpdate(t *testing.T) {
	store, err := NewSessionStore(4, nil, quiet)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.Create(ctx, "upload", collection("a", "b"))
	require.NoError(t, err)
	_, err = uuid.Parse(created.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, created.Series)
	assert.Equal(t, 4, created.Points)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Same(t, created, got)

	updated, err := store.Update(ctx, created.ID, collection("c"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{"c"}, updated.Series)
	assert.Equal(t, []string{"a", "b"}, created.Collection.Names())
}

func TestEvictionWithoutDatabase(t *testing.T) {
	store, err := NewSessionStore(2, nil, quiet)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Create(ctx, "1", collection("x"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "2", collection("x"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "3", collection("x"))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(ctx, first.ID)
	assert.Equal(t, "not_found", helpers.ErrorKind(err))
}

func TestDeleteAndList(t *testing.T) {
	store, err := NewSessionStore(4, nil, quiet)
	require.NoError(t, err)
	ctx := context.Background()

	clock := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	a, err := store.Create(ctx, "a", collection("x"))
	require.NoError(t, err)
	b, err := store.Create(ctx, "b", collection("x"))
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, store.Delete(ctx, a.ID))
	assert.Equal(t, "not_found", helpers.ErrorKind(store.Delete(ctx, a.ID)))

	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReloadFromDatabase(t *testing.T) {
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"}}
	db, err := storage.NewAsyncSQLiteDB(cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	defer db.Close()

	store, err := NewSessionStore(1, db, quiet)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Create(ctx, "first", collection("x", "y"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "second", collection("z"))
	require.NoError(t, err)

	reloaded, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, []string{"x", "y"}, reloaded.Collection.Names())

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(ctx, first.ID))
	store.Purge()
	assert.Zero(t, store.Len())

	_, err = store.Get(ctx, first.ID)
	assert.Equal(t, "not_found", helpers.ErrorKind(err))
}

// stalledLoads holds the next LoadSession until release is closed.
type stalledLoads struct {
	interfaces.IDatabase
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (d *stalledLoads) LoadSession(ctx context.Context, id string) (*models.MSession, error) {
	if d.armed.CompareAndSwap(true, false) {
		close(d.entered)
		<-d.release
	}
	return d.IDatabase.LoadSession(ctx, id)
}

func TestDeleteDuringReload(t *testing.T) {
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"}}
	lite, err := storage.NewAsyncSQLiteDB(cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, lite.Initialize())
	defer lite.Close()

	db := &stalledLoads{IDatabase: lite, entered: make(chan struct{}), release: make(chan struct{})}
	store, err := NewSessionStore(1, db, quiet)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Create(ctx, "first", collection("x"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "second", collection("y"))
	require.NoError(t, err)

	db.armed.Store(true)
	loaded := make(chan error, 1)
	go func() {
		_, err := store.Get(ctx, first.ID)
		loaded <- err
	}()
	<-db.entered

	deleted := make(chan error, 1)
	go func() { deleted <- store.Delete(ctx, first.ID) }()

	select {
	case <-deleted:
		t.Fatal("delete finished while a reload was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(db.release)

	require.NoError(t, <-loaded)
	require.NoError(t, <-deleted)

	_, err = store.Get(ctx, first.ID)
	assert.Equal(t, "not_found", helpers.ErrorKind(err))
}
