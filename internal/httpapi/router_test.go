package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeService struct {
	ingested  []service.SensorInput
	ingestErr error
	latest    *storage.Reading
	history   service.History
	alerts    []storage.Alert
	resolved  map[int64]bool
	lastHours int
	lastDev   string
	panicOn   string
}

func (f *fakeService) Ingest(ctx context.Context, in service.SensorInput) (storage.Reading, predictor.Result, error) {
	if err := in.Validate(); err != nil {
		return storage.Reading{}, predictor.Result{}, err
	}
	if f.ingestErr != nil {
		return storage.Reading{}, predictor.Result{}, f.ingestErr
	}
	f.ingested = append(f.ingested, in)
	v := in.Vitals()
	return storage.Reading{
		ID: 1, DeviceID: in.Device("ESP32_001"), HeartRate: v.HeartRate, SpO2: v.SpO2,
		Temperature: v.Temperature, Humidity: v.Humidity, AirQuality: v.AirQuality,
		RiskLevel: predictor.RiskLow, RiskScore: 0.2, Timestamp: testNow,
	}, predictor.Result{Level: predictor.RiskLow, Score: 0.2}, nil
}

func (f *fakeService) Latest(ctx context.Context, deviceID string) (storage.Reading, error) {
	f.lastDev = deviceID
	if f.latest == nil {
		return storage.Reading{}, storage.ErrNotFound
	}
	return *f.latest, nil
}

func (f *fakeService) History(ctx context.Context, deviceID string, hours int) (service.History, error) {
	f.lastDev, f.lastHours = deviceID, hours
	if hours < 1 {
		return service.History{}, service.ErrInvalidHours
	}
	return f.history, nil
}

func (f *fakeService) Stats(ctx context.Context, deviceID string) (service.Stats, error) {
	if f.panicOn == "stats" {
		panic("stats exploded")
	}
	return service.Stats{}, errors.New("connection refused")
}

func (f *fakeService) Alerts(ctx context.Context, deviceID string) ([]storage.Alert, error) {
	return f.alerts, nil
}

func (f *fakeService) ResolveAlert(ctx context.Context, id int64) (storage.Alert, error) {
	if f.resolved == nil || f.resolved[id] {
		return storage.Alert{}, storage.ErrNotFound
	}
	f.resolved[id] = true
	now := testNow
	return storage.Alert{ID: id, DeviceID: "ESP32_001", Type: storage.AlertCritical, IsResolved: true, ResolvedAt: &now}, nil
}

func (f *fakeService) Classify(v predictor.Vitals) predictor.Result {
	res := predictor.RuleBased(v)
	res.Recommendations = predictor.Recommendations(v, res.Level)
	return res
}

func (f *fakeService) DefaultDevice() string { return "ESP32_001" }

type fakeModel struct{ loaded bool }

func (m fakeModel) Info() predictor.Info {
	return predictor.New(nil, nil, "", "", zerolog.Nop()).Info()
}
func (m fakeModel) Loaded() bool { return m.loaded }

type fakeHub struct{ sent []any }

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {}
func (h *fakeHub) Broadcast(v any) int                             { h.sent = append(h.sent, v); return 2 }
func (h *fakeHub) Count() int                                      { return 2 }

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fixture struct {
	router *gin.Engine
	svc    *fakeService
	hub    *fakeHub
}

func newFixture(db storage.Pinger) *fixture {
	f := &fixture{svc: &fakeService{resolved: map[int64]bool{}}, hub: &fakeHub{}}
	h := NewHandlers(f.svc, fakeModel{}, f.hub, db, metrics.New(), zerolog.Nop())
	h.now = func() time.Time { return testNow }
	f.router = NewRouter(h)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

const validBody = `{"heart_rate":72,"spo2":98,"temperature":36.8,"humidity":45,"air_quality":85}`

func TestIngestEndpoints(t *testing.T) {
	f := newFixture(nil)

	for _, path := range []string{"/api/sensor-data", "/api/sensor-data/"} {
		rec, body := f.do(t, http.MethodPost, path, validBody)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ESP32_001", body["device_id"])
		assert.Equal(t, "Low", body["risk_level"])
		assert.Equal(t, false, body["is_critical"])
	}
	assert.Len(t, f.svc.ingested, 2)
}

func TestIngestValidationError(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodPost, "/api/sensor-data", `{"heart_rate":250,"spo2":98,"temperature":36.8,"humidity":45}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail, ok := body["detail"].([]any)
	require.True(t, ok)
	assert.Len(t, detail, 2)
	assert.Empty(t, f.svc.ingested)
}

func TestIngestMalformedJSON(t *testing.T) {
	f := newFixture(nil)
	rec, _ := f.do(t, http.MethodPost, "/api/sensor-data", `{"heart_rate":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestStoreFailure(t *testing.T) {
	f := newFixture(nil)
	f.svc.ingestErr = errors.New("store reading: db down")

	rec, body := f.do(t, http.MethodPost, "/api/sensor-data", validBody)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing data: store reading: db down", body["detail"])
}

func TestLatest(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/api/sensor-data/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No readings found", body["detail"])
	assert.Equal(t, "ESP32_001", f.svc.lastDev)

	f.svc.latest = &storage.Reading{ID: 3, DeviceID: "bed-2", RiskLevel: predictor.RiskHigh, IsCritical: true, Timestamp: testNow}
	rec, body = f.do(t, http.MethodGet, "/api/sensor-data/latest?device_id=bed-2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bed-2", f.svc.lastDev)
	assert.Equal(t, true, body["is_critical"])
}

func TestHistory(t *testing.T) {
	f := newFixture(nil)
	f.svc.history = service.History{
		Timestamps: []string{}, HeartRate: []float64{}, SpO2: []float64{},
		Temperature: []float64{}, RiskScores: []float64{},
	}

	rec, body := f.do(t, http.MethodGet, "/api/sensor-data/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, f.svc.lastHours)
	assert.Equal(t, []any{}, body["timestamps"])

	rec, _ = f.do(t, http.MethodGet, "/api/sensor-data/history?hours=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/sensor-data/history?hours=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatsFailureIs500(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodGet, "/api/sensor-data/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "connection refused", body["detail"])
}

func TestPanicRecovery(t *testing.T) {
	f := newFixture(nil)
	f.svc.panicOn = "stats"

	rec, body := f.do(t, http.MethodGet, "/api/sensor-data/stats", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, "stats exploded", body["detail"])
}

func TestAlertsAndResolve(t *testing.T) {
	f := newFixture(nil)
	name, value := "risk_level", 0.91
	f.svc.alerts = []storage.Alert{{ID: 7, DeviceID: "ESP32_001", Type: storage.AlertCritical, Message: "High risk detected! Risk score: 0.91", VitalName: &name, VitalValue: &value, CreatedAt: testNow}}

	rec, body := f.do(t, http.MethodGet, "/api/sensor-data/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])
	first := body["alerts"].([]any)[0].(map[string]any)
	assert.Equal(t, "CRITICAL", first["type"])
	assert.Equal(t, 0.91, first["vital_value"])

	rec, body = f.do(t, http.MethodPost, "/api/sensor-data/alerts/7/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["is_resolved"])

	rec, _ = f.do(t, http.MethodPost, "/api/sensor-data/alerts/7/resolve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/sensor-data/alerts/zero/resolve", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPredict(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodPost, "/api/predictions/predict", `{"heart_rate":130,"spo2":90,"temperature":38.5,"humidity":50,"air_quality":40}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "High", body["risk_level"])
	assert.Equal(t, 0.8, body["risk_score"])
	assert.NotEmpty(t, body["recommendations"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["timestamp"])
}

func TestBatchPredict(t *testing.T) {
	f := newFixture(nil)
	payload := fmt.Sprintf(`[%s, {"heart_rate":130,"spo2":90,"temperature":38.5,"humidity":80,"air_quality":40,"device_id":"bed-9"}]`, validBody)

	rec, body := f.do(t, http.MethodPost, "/api/predictions/batch-predict", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["count"])
	preds := body["predictions"].([]any)
	second := preds[1].(map[string]any)
	assert.Equal(t, "bed-9", second["device_id"])
	assert.Len(t, second["recommendations"], batchRecommendations)
	assert.Equal(t, "ESP32_001", preds[0].(map[string]any)["device_id"])
}

func TestBatchPredictValidation(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodPost, "/api/predictions/batch-predict", fmt.Sprintf(`[%s, {"heart_rate":72}]`, validBody))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := body["detail"].([]any)
	assert.Len(t, detail, 4)
	assert.Equal(t, "[1].spo2", detail[0].(map[string]any)["field"])
}

func TestModelInfo(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodGet, "/api/predictions/model-info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rule_based", body["status"])
	assert.Len(t, body["features"], 5)
}

func TestHealth(t *testing.T) {
	rec, body := newFixture(fakePinger{}).do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "rule_based", body["ml_model"])

	_, body = newFixture(fakePinger{err: errors.New("down")}).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, "disconnected", body["database"])
}

func TestBroadcast(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodPost, "/broadcast", `{"type":"alert"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "broadcasted", body["status"])
	assert.Equal(t, 2.0, body["connections"])
	require.Len(t, f.hub.sent, 1)

	rec, _ = f.do(t, http.MethodPost, "/broadcast", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	f := newFixture(nil)
	rec, body := f.do(t, http.MethodGet, "/nope?x=1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", body["error"])
	assert.Equal(t, "/nope?x=1", body["path"])
}

func TestRootAndMetrics(t *testing.T) {
	f := newFixture(nil)

	rec, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operational", body["status"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec, _ = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vitalwatch_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	handler := WithCORS(newFixture(nil).router, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/sensor-data", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
