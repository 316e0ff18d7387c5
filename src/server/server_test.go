package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"series-observer/src/analysis"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/monitoring"
	"series-observer/src/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "date,gdp,flat\n2024-01-01,1,5\n2024-01-02,2,5\n2024-01-03,4,5\n2024-01-04,8,5\n"

func newTestServer(t *testing.T) *ObserverServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLoggerTo(io.Discard, "ERROR", "test")
	cfg := &models.MConfig{Name: "observer-test", LogLevel: "ERROR"}
	store, err := session.NewSessionStore(16, nil, log)
	require.NoError(t, err)

	s := NewObserverServer(cfg, analysis.NewSeriesEngine(models.MEngineConfig{}, log), store, monitoring.NewMetrics(), log)
	t.Cleanup(func() { s.Stop() })
	return s
}

func do(s *ObserverServer, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createSession(t *testing.T, s *ObserverServer) models.MSessionInfo {
	t.Helper()
	rec := do(s, http.MethodPost, "/api/sessions?name=macro", "text/csv", []byte(sampleCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.MSessionInfo](t, rec)
}

// -----------------------------------------------------------------------------

func TestHealthAndConfig(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", health["status"])

	rec = do(s, http.MethodGet, "/api/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "observer-test", cfg["name"])
	assert.Contains(t, cfg["transforms"], "business-days")
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)
	assert.Equal(t, "macro", info.Name)
	assert.Equal(t, []string{"gdp", "flat"}, info.Series)
	assert.Equal(t, 8, info.Points)

	rec := do(s, http.MethodGet, "/api/sessions/"+info.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[models.MSession](t, rec)
	assert.Equal(t, []string{"gdp", "flat"}, sess.Collection.Names())

	rec = do(s, http.MethodGet, "/api/sessions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.MSessionInfo](t, rec), 1)

	rec = do(s, http.MethodDelete, "/api/sessions/"+info.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["error"])
}

func TestSeriesAndSummary(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)

	rec := do(s, http.MethodGet, "/api/sessions/"+info.ID+"/series/gdp", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	series := decode[*models.MTimeSeries](t, rec)
	assert.Equal(t, 4, series.Len())

	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID+"/series/gdp/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.MStatistics](t, rec)
	assert.Equal(t, 3.75, stats.Mean)
	assert.Equal(t, 8.0, stats.Max)

	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID+"/series/cpi", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransformSeries(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)
	path := "/api/sessions/" + info.ID + "/series/gdp/transform"

	rec := do(s, http.MethodPost, path, "application/json", []byte(`{"kind":"difference"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	diff := decode[*models.MTimeSeries](t, rec)
	require.Equal(t, 3, diff.Len())
	assert.Equal(t, 4.0, diff.At(2).Value)

	// not saved
	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID+"/series/gdp", "", nil)
	assert.Equal(t, 4, decode[*models.MTimeSeries](t, rec).Len())

	rec = do(s, http.MethodPost, path+"?save=true", "application/json", []byte(`{"kind":"rolling","window":2,"function":"sum"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID+"/series/gdp", "", nil)
	saved := decode[*models.MTimeSeries](t, rec)
	assert.False(t, saved.At(0).Valid)
	assert.Equal(t, 12.0, saved.At(3).Value)
}

func TestTransformErrors(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)
	base := "/api/sessions/" + info.ID + "/series/"

	rec := do(s, http.MethodPost, base+"flat/transform", "application/json", []byte(`{"kind":"normalize"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "degenerate_range", decode[map[string]string](t, rec)["error"])

	rec = do(s, http.MethodPost, base+"gdp/transform", "application/json", []byte(`{"kind":"rolling","window":9}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(s, http.MethodPost, base+"gdp/transform", "application/json", []byte(`{"kind":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, base+"gdp/transform", "application/json", []byte(`{"kind":"resample","interval":"soon"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransformSession(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)
	path := "/api/sessions/" + info.ID + "/transform"

	rec := do(s, http.MethodPost, path, "application/json", []byte(`{"kind":"normalize"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(s, http.MethodPost, path+"?save=true", "application/json", []byte(`{"kind":"resample","interval":"2d","function":"max"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	coll := decode[*models.MSeriesCollection](t, rec)
	assert.Equal(t, []string{"gdp", "flat"}, coll.Names())

	rec = do(s, http.MethodGet, "/api/sessions/"+info.ID, "", nil)
	sess := decode[models.MSession](t, rec)
	gdp, ok := sess.Collection.Get("gdp")
	require.True(t, ok)
	for i := 1; i < gdp.Len(); i++ {
		assert.Equal(t, 48*time.Hour, gdp.At(i).Timestamp.Sub(gdp.At(i-1).Timestamp))
	}
}

func TestCreateSessionErrors(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/sessions", "text/csv", []byte("date,x\n2024-01-01,abc\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "format_error", decode[map[string]string](t, rec)["error"])

	rec = do(s, http.MethodPost, "/api/sessions", "text/csv", []byte(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_input", decode[map[string]string](t, rec)["error"])
}

func TestRequestBodyLimit(t *testing.T) {
	s := newTestServer(t)
	info := createSession(t, s)
	s.MaxBodyBytes = 16

	rec := do(s, http.MethodPost, "/api/sessions", "text/csv", []byte(sampleCSV))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "payload_too_large", body["error"])
	assert.Contains(t, body["message"], "16 bytes")

	rec = do(s, http.MethodPost, "/api/sessions/"+info.ID+"/series/gdp/transform", "application/json", []byte(`{"kind":"rolling","window":2}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(s, http.MethodPost, "/api/vintages", "application/json", []byte(`{"2024-01-01":{"2023-10-01":1}}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(s, http.MethodPost, "/api/sessions", "text/csv", []byte("date,x\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionMultipart(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "rates.json")
	require.NoError(t, err)
	part.Write([]byte(`[{"date":"2024-01-01","value":1},{"date":"2024-01-02","value":2}]`))
	require.NoError(t, w.Close())

	rec := do(s, http.MethodPost, "/api/sessions", w.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decode[models.MSessionInfo](t, rec)
	assert.Equal(t, "rates", info.Name)
	assert.Equal(t, []string{"rates"}, info.Series)
}

func TestVintagesEndpoint(t *testing.T) {
	s := newTestServer(t)
	doc := `{"2024-01-01":{"2023-10-01":1,"2023-11-01":2},"2024-02-01":{"2023-10-01":1.5,"2023-11-01":2}}`

	rec := do(s, http.MethodPost, "/api/vintages", "application/json", []byte(doc))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, report, "changed_cells")
	assert.Contains(t, report, "comparison")
	var frames []map[string]interface{}
	require.NoError(t, json.Unmarshal(report["frames"], &frames))
	assert.Len(t, frames, 4)
	assert.Equal(t, "2023-10-01T00:00:00Z", frames[0]["time"])
	var yRange [2]float64
	require.NoError(t, json.Unmarshal(report["y_range"], &yRange))
	assert.InDelta(t, 0.95, yRange[0], 1e-12)
	assert.InDelta(t, 2.05, yRange[1], 1e-12)

	rec = do(s, http.MethodPost, "/api/vintages?first=2024-01-01&second=2030-01-01", "application/json", []byte(doc))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(s, http.MethodPost, "/api/vintages?start=tomorrow", "application/json", []byte(doc))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	createSession(t, s)

	rec := do(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `series_observer_operations_total{operation="load",status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "series_observer_sessions_active 1")
}

// -----------------------------------------------------------------------------

func TestWebsocketReceivesSessionEvents(t *testing.T) {
	s := newTestServer(t)
	existing := createSession(t, s)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot snapshotMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	require.Len(t, snapshot.Sessions, 1)
	assert.Equal(t, existing.ID, snapshot.Sessions[0].ID)

	require.NoError(t, conn.WriteJSON(subscribeCommand{Command: "subscribe", Sessions: []string{existing.ID}}))
	var ack subscribedMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, []string{existing.ID}, ack.Sessions)

	// an unrelated session is filtered out, the followed one comes through
	createSession(t, s)
	rec := do(s, http.MethodPost, "/api/sessions/"+existing.ID+"/series/gdp/transform?save=true", "application/json", []byte(`{"kind":"difference"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var event models.MSessionEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventSessionUpdated, event.Type)
	assert.Equal(t, existing.ID, event.Session.ID)
}

func TestClientWants(t *testing.T) {
	all := &Client{}
	assert.True(t, all.wants("x"))

	some := &Client{sessions: map[string]struct{}{"a": {}}}
	assert.True(t, some.wants("a"))
	assert.False(t, some.wants("b"))
}
