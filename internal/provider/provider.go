// Package provider produces metric snapshots from the host, the process,
// the application database and the request counters.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// Config wires a Provider. System is required; Database may be nil when no
// database is monitored.
type Config struct {
	System      SystemReader
	Database    DatabaseProbe
	Counters    *Counters
	Clock       clock.Clock
	Logger      *zap.Logger
	Version     string
	Environment string
}

// Provider assembles snapshots
type Provider struct {
	system      SystemReader
	database    DatabaseProbe
	counters    *Counters
	clock       clock.Clock
	logger      *zap.Logger
	version     string
	environment string
	startedAt   time.Time
}

// New creates a provider. Uptime is measured from this call.
func New(cfg Config) (*Provider, error) {
	if cfg.System == nil {
		return nil, fmt.Errorf("system reader is required: %w", domain.ErrValidation)
	}
	if cfg.Counters == nil {
		cfg.Counters = NewCounters()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Provider{
		system:      cfg.System,
		database:    cfg.Database,
		counters:    cfg.Counters,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		version:     cfg.Version,
		environment: cfg.Environment,
		startedAt:   cfg.Clock.Now(),
	}, nil
}

// Counters returns the request counters read by Sample
func (p *Provider) Counters() *Counters {
	return p.counters
}

// Sample takes one snapshot for the current interval and drains the
// request and error counters. A failing database probe yields the degraded
// placeholder rather than an error.
func (p *Provider) Sample(ctx context.Context) (domain.Snapshot, error) {
	return p.sample(ctx, p.counters.Drain)
}

// Peek takes a snapshot like Sample but leaves the counters for the next
// Sample.
func (p *Provider) Peek(ctx context.Context) (domain.Snapshot, error) {
	return p.sample(ctx, p.counters.Peek)
}

func (p *Provider) sample(ctx context.Context, counts func() (int64, int64)) (domain.Snapshot, error) {
	now := p.clock.Now()

	sys, err := p.system.Read(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to sample system metrics: %w", err)
	}

	uptime := now.Sub(p.startedAt)
	sys.Process.Uptime = uptime

	requests, errors := counts()

	return domain.Snapshot{
		Timestamp: now,
		CPU:       sys.CPU,
		Memory:    sys.Memory,
		Process:   sys.Process,
		Database:  p.sampleDatabase(ctx),
		Application: domain.ApplicationMetrics{
			Uptime:              uptime,
			Version:             p.version,
			Environment:         p.environment,
			RequestsPerInterval: requests,
			ErrorRatePercent:    ErrorRate(requests, errors),
		},
	}, nil
}

func (p *Provider) sampleDatabase(ctx context.Context) domain.DatabaseMetrics {
	if p.database == nil {
		return domain.DatabaseMetrics{Status: domain.DatabaseDisconnected}
	}

	health, err := p.database.Probe(ctx)
	if err != nil {
		p.logger.Warn("Database probe failed, reporting degraded metrics", zap.Error(err))
		return domain.DegradedDatabaseMetrics()
	}

	m := domain.DatabaseMetrics{
		Status:             health.Status,
		ConnectionCount:    health.ConnectionCount,
		ActiveConnections:  health.ActiveConnections,
		SlowQueries:        health.SlowQueries,
		AverageQueryTimeMs: health.AverageQueryTimeMs,
	}
	if health.MaxConnections > 0 {
		m.PoolUtilizationPercent = float64(health.ActiveConnections) / float64(health.MaxConnections) * 100
	}
	return m
}
