package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benbjohnson/clock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap/zaptest"
)

type fakeSystem struct {
	metrics SystemMetrics
	err     error
}

func (f *fakeSystem) Read(context.Context) (SystemMetrics, error) {
	return f.metrics, f.err
}

type fakeProbe struct {
	health DatabaseHealth
	err    error
}

func (f *fakeProbe) Probe(context.Context) (DatabaseHealth, error) {
	return f.health, f.err
}

func newTestProvider(t *testing.T, db DatabaseProbe) (*Provider, *clock.Mock) {
	mock := clock.NewMock()
	p, err := New(Config{
		System: &fakeSystem{metrics: SystemMetrics{
			CPU:    domain.CPUMetrics{Usage: 12.5, CoreCount: 4},
			Memory: domain.MemoryMetrics{UsedPercent: 40},
		}},
		Database:    db,
		Clock:       mock,
		Logger:      zaptest.NewLogger(t),
		Version:     "1.2.3",
		Environment: "test",
	})
	require.NoError(t, err)
	return p, mock
}

func TestSampleErrorRateAndCounterReset(t *testing.T) {
	p, _ := newTestProvider(t, nil)

	for i := 0; i < 10; i++ {
		p.Counters().RecordRequest()
	}
	p.Counters().RecordError()
	p.Counters().RecordError()

	snap, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Application.RequestsPerInterval)
	assert.Equal(t, 20.0, snap.Application.ErrorRatePercent)

	snap, err = p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Application.RequestsPerInterval)
	assert.Equal(t, 0.0, snap.Application.ErrorRatePercent)
}

func TestPeekLeavesCountersForNextSample(t *testing.T) {
	p, _ := newTestProvider(t, nil)

	for i := 0; i < 4; i++ {
		p.Counters().RecordRequest()
	}
	p.Counters().RecordError()

	for i := 0; i < 2; i++ {
		snap, err := p.Peek(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), snap.Application.RequestsPerInterval)
		assert.Equal(t, 25.0, snap.Application.ErrorRatePercent)
	}

	snap, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Application.RequestsPerInterval)

	requests, errs := p.Counters().Peek()
	assert.Zero(t, requests)
	assert.Zero(t, errs)
}

func TestSampleFillsApplicationAndUptime(t *testing.T) {
	p, mock := newTestProvider(t, nil)
	mock.Add(90 * time.Second)

	snap, err := p.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, mock.Now(), snap.Timestamp)
	assert.Equal(t, 90*time.Second, snap.Application.Uptime)
	assert.Equal(t, 90*time.Second, snap.Process.Uptime)
	assert.Equal(t, "1.2.3", snap.Application.Version)
	assert.Equal(t, "test", snap.Application.Environment)
	assert.Equal(t, 12.5, snap.CPU.Usage)
	assert.Equal(t, domain.DatabaseDisconnected, snap.Database.Status)
}

func TestSampleDegradesOnProbeFailure(t *testing.T) {
	p, _ := newTestProvider(t, &fakeProbe{err: errors.New("connection refused")})

	snap, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DegradedDatabaseMetrics(), snap.Database)
}

func TestSamplePoolUtilization(t *testing.T) {
	p, _ := newTestProvider(t, &fakeProbe{health: DatabaseHealth{
		Status:            domain.DatabaseConnected,
		ConnectionCount:   8,
		ActiveConnections: 5,
		MaxConnections:    20,
	}})

	snap, err := p.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DatabaseConnected, snap.Database.Status)
	assert.Equal(t, 25.0, snap.Database.PoolUtilizationPercent)
	assert.Equal(t, 8, snap.Database.ConnectionCount)
}

func TestSampleFailsWhenSystemReadFails(t *testing.T) {
	p, err := New(Config{System: &fakeSystem{err: errors.New("no /proc")}})
	require.NoError(t, err)

	_, err = p.Sample(context.Background())
	assert.Error(t, err)
}

func TestNewRequiresSystemReader(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCountersResponseTimes(t *testing.T) {
	c := NewCounters()
	assert.Equal(t, 0.0, c.AverageResponseTime())

	c.RecordResponseTime(100)
	c.RecordResponseTime(300)
	c.RecordResponseTime(-5)

	// draining request counts leaves response times alone
	c.Drain()
	assert.Equal(t, 200.0, c.AverageResponseTime())

	c.ResetResponseTimes()
	assert.Equal(t, 0.0, c.AverageResponseTime())
}

func TestErrorRate(t *testing.T) {
	assert.Equal(t, 0.0, ErrorRate(0, 3))
	assert.Equal(t, 50.0, ErrorRate(4, 2))
}

func TestSQLProbe(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("SELECT 1").
		WillDelayFor(20 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	dbMock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	probe := NewSQLProbe(sqlx.NewDb(db, "sqlmock"), SQLProbeConfig{SlowAfter: 10 * time.Millisecond})

	health, err := probe.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DatabaseConnected, health.Status)
	assert.Equal(t, 1, health.SlowQueries)
	assert.GreaterOrEqual(t, health.AverageQueryTimeMs, 20.0)

	health, err = probe.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, health.SlowQueries, "slow count covers the latency window")

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestSQLProbeFailure(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("SELECT 1").WillReturnError(errors.New("server gone"))

	probe := NewSQLProbe(sqlx.NewDb(db, "sqlmock"), SQLProbeConfig{})
	_, err = probe.Probe(context.Background())
	assert.ErrorContains(t, err, "server gone")
}
