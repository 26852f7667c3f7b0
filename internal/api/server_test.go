package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/vigil/internal/monitoring/engine"
	"github.com/yairfalse/vigil/internal/provider"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap/zaptest"
)

const testToken = "admin-token"

var epoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type stubProvider struct {
	clock *clock.Mock

	mu  sync.Mutex
	cpu float64
	err error
}

func (p *stubProvider) Sample(context.Context) (domain.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.Snapshot{}, p.err
	}
	return domain.Snapshot{
		Timestamp: p.clock.Now(),
		CPU:       domain.CPUMetrics{Usage: p.cpu},
		Database:  domain.DatabaseMetrics{Status: domain.DatabaseConnected},
	}, nil
}

func (p *stubProvider) Peek(ctx context.Context) (domain.Snapshot, error) {
	return p.Sample(ctx)
}

type fixture struct {
	server   *Server
	engine   *engine.Engine
	provider *stubProvider
	counters *provider.Counters
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(epoch)
	p := &stubProvider{clock: mock, cpu: 10}
	counters := provider.NewCounters()

	eng, err := engine.New(engine.Config{
		Authorize: domain.RoleAuthorizer(domain.RoleAdmin),
		Clock:     mock,
		Logger:    zaptest.NewLogger(t),
	}, p, counters)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("vigil_up 1\n"))
	})
	srv, err := NewServer(eng, metrics, zaptest.NewLogger(t), Config{AdminToken: testToken, Version: "test"})
	require.NoError(t, err)

	return &fixture{server: srv, engine: eng, provider: p, counters: counters}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(nil, nil, nil, Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/v1/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "monitoring")
}

func TestCurrentMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/v1/metrics/current", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[domain.Snapshot](t, w)
	assert.Equal(t, 10.0, snap.CPU.Usage)
	assert.True(t, snap.Timestamp.Equal(epoch))

	f.provider.mu.Lock()
	f.provider.err = errors.New("sensor offline")
	f.provider.mu.Unlock()

	w = f.do(t, "GET", "/api/v1/metrics/current", nil, false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode[map[string]string](t, w)["error"])
}

func TestMonitoringLifecycleAndAlerts(t *testing.T) {
	f := newFixture(t)
	f.provider.mu.Lock()
	f.provider.cpu = 95
	f.provider.mu.Unlock()

	w := f.do(t, "POST", "/api/v1/monitoring", map[string]string{"interval": "1m"}, false)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1m0s", decode[map[string]string](t, w)["interval"])

	w = f.do(t, "POST", "/api/v1/monitoring", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Eventually(t, func() bool { return len(f.engine.ActiveAlerts()) == 1 }, time.Second, time.Millisecond)

	w = f.do(t, "GET", "/api/v1/alerts/active", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[[]domain.Alert](t, w)
	require.Len(t, active, 1)
	assert.Equal(t, domain.AlertTypeCPU, active[0].Type)

	w = f.do(t, "POST", "/api/v1/alerts/"+active[0].ID+"/resolve", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.Alert](t, w).Resolved)

	w = f.do(t, "POST", "/api/v1/alerts/"+active[0].ID+"/resolve", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, "POST", "/api/v1/alerts/missing/resolve", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "GET", "/api/v1/alerts/active", nil, false)
	assert.Equal(t, "[]\n", w.Body.String())

	w = f.do(t, "GET", "/api/v1/alerts/history", nil, false)
	assert.Len(t, decode[[]domain.Alert](t, w), 1)

	w = f.do(t, "DELETE", "/api/v1/monitoring", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, "DELETE", "/api/v1/monitoring", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartMonitoringValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/v1/monitoring", map[string]string{"interval": "soon"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/v1/monitoring", map[string]string{"interval": "-1s"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, f.engine.IsRunning())
}

func TestThresholdEndpoints(t *testing.T) {
	f := newFixture(t)
	update := map[string]interface{}{
		"memory": map[string]float64{"warning": 50, "critical": 60},
	}

	w := f.do(t, "PATCH", "/api/v1/thresholds", update, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "PATCH", "/api/v1/thresholds", update, true)
	require.Equal(t, http.StatusOK, w.Code)
	set := decode[domain.ThresholdSet](t, w)
	assert.Equal(t, domain.Threshold{Warning: 50, Critical: 60}, set.Memory)
	assert.Equal(t, domain.DefaultThresholds().CPU, set.CPU)

	w = f.do(t, "GET", "/api/v1/thresholds", nil, false)
	assert.Equal(t, set, decode[domain.ThresholdSet](t, w))

	w = f.do(t, "PATCH", "/api/v1/thresholds", map[string]interface{}{
		"cpu": map[string]float64{"warning": 90, "critical": 80},
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PATCH", "/api/v1/thresholds", map[string]interface{}{"gpu": 1}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PATCH", "/api/v1/thresholds", map[string]interface{}{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "DELETE", "/api/v1/thresholds", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "DELETE", "/api/v1/thresholds", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DefaultThresholds(), decode[domain.ThresholdSet](t, w))
}

func TestWrongTokenIsAnonymous(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("DELETE", "/api/v1/thresholds", nil)
	req.Header.Set("Authorization", "Bearer guess")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPerformanceReport(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/v1/reports/performance", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "No metrics data available")

	require.NoError(t, f.engine.StartMonitoring(time.Minute))
	require.Eventually(t, func() bool { return f.engine.Stats().Snapshots == 1 }, time.Second, time.Millisecond)

	w = f.do(t, "GET", "/api/v1/reports/performance?start=2026-03-02T11:00:00Z&end=2026-03-02T13:00:00Z", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[domain.PerformanceReport](t, w)
	assert.Equal(t, 1, report.SnapshotCount)

	w = f.do(t, "GET", "/api/v1/reports/performance", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, "GET", "/api/v1/reports/performance?start=yesterday", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHistoryRange(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.StartMonitoring(time.Minute))
	require.Eventually(t, func() bool { return f.engine.Stats().Snapshots == 1 }, time.Second, time.Millisecond)

	w := f.do(t, "GET", "/api/v1/metrics/history", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Snapshot](t, w), 1)

	w = f.do(t, "GET", "/api/v1/metrics/history?start=2026-03-02T12:30:00Z", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Snapshot](t, w))
}

func TestRequestsFeedApplicationCounters(t *testing.T) {
	f := newFixture(t)

	f.do(t, "GET", "/api/v1/health", nil, false)
	f.do(t, "GET", "/api/v1/thresholds", nil, false)

	requests, errs := f.counters.Drain()
	assert.Equal(t, int64(2), requests)
	assert.Equal(t, int64(0), errs)

	f.provider.mu.Lock()
	f.provider.err = errors.New("boom")
	f.provider.mu.Unlock()
	f.do(t, "GET", "/api/v1/metrics/current", nil, false)

	requests, errs = f.counters.Drain()
	assert.Equal(t, int64(1), requests)
	assert.Equal(t, int64(1), errs)

	f.do(t, "GET", "/metrics", nil, false)
	requests, _ = f.counters.Drain()
	assert.Zero(t, requests, "scrapes are not application traffic")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vigil_up 1")
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyResolved, http.StatusConflict},
		{domain.ErrAlreadyRunning, http.StatusConflict},
		{domain.ErrNotRunning, http.StatusConflict},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrValidation, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
