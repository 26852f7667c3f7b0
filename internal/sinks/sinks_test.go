package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var at = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Timestamp: at,
		CPU:       domain.CPUMetrics{Usage: 42, LoadAverages: [3]float64{1, 2, 3}},
		Memory:    domain.MemoryMetrics{UsedPercent: 64},
		Database: domain.DatabaseMetrics{
			Status:                 domain.DatabaseConnected,
			PoolUtilizationPercent: 30,
			AverageQueryTimeMs:     12,
		},
		Application: domain.ApplicationMetrics{RequestsPerInterval: 7, ErrorRatePercent: 14.2},
	}
}

func sampleAlerts() []domain.Alert {
	return []domain.Alert{
		{ID: "a1", Type: domain.AlertTypeCPU, Severity: domain.SeverityCritical, Message: "CPU usage is critical", Timestamp: at},
		{ID: "a2", Type: domain.AlertTypeMemory, Severity: domain.SeverityMedium, Message: "Memory usage is high", Timestamp: at},
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestLoggingSinkLogsAlertsBySeverity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLoggingSink(zap.New(core))

	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()}))
	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindMetrics, Snapshot: sampleSnapshot()}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "CPU usage is critical", entries[0].Message)
	assert.Equal(t, "a1", entries[0].ContextMap()["id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
}

func TestNATSSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "", zaptest.NewLogger(t))

	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindMetrics, Snapshot: sampleSnapshot()}))
	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()}))

	assert.Equal(t, []string{"vigil.metrics", "vigil.alerts"}, pub.subjects)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(pub.payloads[0], &snap))
	assert.Equal(t, 42.0, snap.CPU.Usage)

	var alerts []domain.Alert
	require.NoError(t, json.Unmarshal(pub.payloads[1], &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, "a2", alerts[1].ID)
}

func TestNATSSinkReportsPublishFailure(t *testing.T) {
	sink := NewNATSSink(&fakePublisher{err: errors.New("no responders")}, "ops", nil)
	assert.Equal(t, "ops.alerts", sink.Subject(dispatch.KindAlerts))

	err := sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()})
	assert.ErrorContains(t, err, "ops.alerts")
}

func TestPrometheusSinkMirrorsSnapshot(t *testing.T) {
	sink := NewPrometheusSink(nil)

	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindMetrics, Snapshot: sampleSnapshot()}))
	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()}))
	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()[:1]}))

	assert.Equal(t, 42.0, testutil.ToFloat64(sink.cpuUsage))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.loadAverage.WithLabelValues("5m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.databaseUp))
	assert.Equal(t, 7.0, testutil.ToFloat64(sink.requests))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.alertsTotal.WithLabelValues("cpu", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.alertsTotal.WithLabelValues("memory", "medium")))

	degraded := sampleSnapshot()
	degraded.Database = domain.DegradedDatabaseMetrics()
	require.NoError(t, sink.Handle(context.Background(), dispatch.Event{Kind: dispatch.KindMetrics, Snapshot: degraded}))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.databaseUp))

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "vigil_memory_used_percent 64")
}

func TestAttachSubscribesEveryKind(t *testing.T) {
	d := dispatch.New(4, zaptest.NewLogger(t))
	defer d.Close()

	pub := &fakePublisher{}
	subs, err := Attach(d, NewNATSSink(pub, "", nil), NewLoggingSink(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Len(t, subs, 4)

	d.Publish(dispatch.Event{Kind: dispatch.KindAlerts, Alerts: sampleAlerts()})
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.subjects) == 1
	}, time.Second, 5*time.Millisecond)
}
