package grpc_control

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"series-observer/src/analysis"
	datasource "series-observer/src/data_source"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/monitoring"
	"series-observer/src/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type recordingExchanger struct {
	events chan models.MSessionEvent
}

func (r *recordingExchanger) Broadcast(event models.MSessionEvent) { r.events <- event }
func (r *recordingExchanger) Start() error                         { return nil }
func (r *recordingExchanger) Stop() error                          { return nil }

type fixture struct {
	client  *SeriesControlClient
	store   *session.SessionStore
	events  chan models.MSessionEvent
	metrics *monitoring.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewLoggerTo(io.Discard, "ERROR", "test")
	engine := analysis.NewSeriesEngine(models.MEngineConfig{}, log)

	store, err := session.NewSessionStore(8, nil, log)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "macro.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,gdp,flat\n2024-01-01,1,3\n2024-01-02,3,3\n2024-01-03,6,3\n"), 0o644))
	sources := datasource.NewMultiSourceManager([]interfaces.IDataSource{datasource.NewFileSource("macro", path, "", engine)}, 1, log)

	events := make(chan models.MSessionEvent, 16)
	metrics := monitoring.NewMetrics()
	svc := NewControlService(engine, store, sources, &recordingExchanger{events: events}, metrics, log)

	lis := bufconn.Listen(1 << 20)
	go svc.Serve(lis)
	t.Cleanup(svc.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &fixture{client: NewSeriesControlClient(conn), store: store, events: events, metrics: metrics}
}

func (f *fixture) reload(t *testing.T) string {
	t.Helper()
	out, err := f.client.Call(context.Background(), MethodReloadSource, map[string]interface{}{"name": "macro"})
	require.NoError(t, err)
	<-f.events
	return out["session"].(map[string]interface{})["id"].(string)
}

func code(err error) codes.Code {
	return status.Code(err)
}

// -----------------------------------------------------------------------------

func TestListSourcesAndReload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.client.Call(ctx, MethodListSources, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"macro"}, out["sources"])

	id := f.reload(t)
	out, err = f.client.Call(ctx, MethodListSessions, nil)
	require.NoError(t, err)
	sessions := out["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]interface{})
	assert.Equal(t, id, first["id"])
	assert.Equal(t, []interface{}{"gdp", "flat"}, first["series"])

	_, err = f.client.Call(ctx, MethodReloadSource, map[string]interface{}{"name": "nope"})
	assert.Equal(t, codes.NotFound, code(err))
	_, err = f.client.Call(ctx, MethodReloadSource, nil)
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestSummarize(t *testing.T) {
	f := setup(t)
	id := f.reload(t)

	out, err := f.client.Call(context.Background(), MethodSummarize, map[string]interface{}{"session": id, "series": "gdp"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out["count"])
	assert.InDelta(t, 10.0/3, out["mean"], 1e-9)
	assert.Equal(t, 6.0, out["max"])

	_, err = f.client.Call(context.Background(), MethodSummarize, map[string]interface{}{"session": id, "series": "cpi"})
	assert.Equal(t, codes.NotFound, code(err))
	_, err = f.client.Call(context.Background(), MethodSummarize, map[string]interface{}{"session": "missing", "series": "gdp"})
	assert.Equal(t, codes.NotFound, code(err))
}

func TestTransformSeries(t *testing.T) {
	f := setup(t)
	id := f.reload(t)
	ctx := context.Background()

	out, err := f.client.Call(ctx, MethodTransform, map[string]interface{}{
		"session": id,
		"series":  "gdp",
		"spec":    map[string]interface{}{"kind": "difference"},
	})
	require.NoError(t, err)
	series := out["series"].(map[string]interface{})
	assert.Equal(t, "gdp", series["name"])
	points := series["points"].([]interface{})
	require.Len(t, points, 2)
	assert.Equal(t, 2.0, points[0].(map[string]interface{})["v"])
	assert.Equal(t, 3.0, points[1].(map[string]interface{})["v"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("transform_difference", "ok")))
	assert.Empty(t, f.events)

	_, err = f.client.Call(ctx, MethodTransform, map[string]interface{}{
		"session": id,
		"series":  "gdp",
		"spec":    map[string]interface{}{"kind": "rolling", "window": 2.0, "function": "sum"},
		"save":    true,
	})
	require.NoError(t, err)
	event := <-f.events
	assert.Equal(t, models.EventSessionUpdated, event.Type)

	sess, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	gdp, _ := sess.Collection.Get("gdp")
	assert.False(t, gdp.At(0).Valid)
	assert.Equal(t, 9.0, gdp.At(2).Value)
}

func TestTransformSessionErrors(t *testing.T) {
	f := setup(t)
	id := f.reload(t)
	ctx := context.Background()

	_, err := f.client.Call(ctx, MethodTransform, map[string]interface{}{
		"session": id,
		"spec":    map[string]interface{}{"kind": "normalize"},
	})
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = f.client.Call(ctx, MethodTransform, map[string]interface{}{
		"session": id,
		"spec":    map[string]interface{}{"kind": "shuffle"},
	})
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = f.client.Call(ctx, MethodTransform, map[string]interface{}{"session": id})
	assert.Equal(t, codes.InvalidArgument, code(err))

	out, err := f.client.Call(ctx, MethodTransform, map[string]interface{}{
		"session": id,
		"spec":    map[string]interface{}{"kind": "pct-change"},
	})
	require.NoError(t, err)
	assert.Len(t, out["collection"], 2)
}

func TestDeleteSession(t *testing.T) {
	f := setup(t)
	id := f.reload(t)
	ctx := context.Background()

	_, err := f.client.Call(ctx, MethodDeleteSession, map[string]interface{}{"session": id})
	require.NoError(t, err)
	event := <-f.events
	assert.Equal(t, models.EventSessionDeleted, event.Type)
	assert.Equal(t, id, event.Session.ID)

	_, err = f.client.Call(ctx, MethodDeleteSession, map[string]interface{}{"session": id})
	assert.Equal(t, codes.NotFound, code(err))
}
