package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jmoiron/sqlx"
	"github.com/yairfalse/vigil/pkg/domain"
)

const (
	// DefaultProbeQuery is run once per sample to measure query latency
	DefaultProbeQuery = "SELECT 1"

	// DefaultSlowQuery marks probe latencies at or above it as slow
	DefaultSlowQuery = time.Second

	latencyWindow = 10
)

// DatabaseHealth is what a probe reports about the application database
type DatabaseHealth struct {
	Status             domain.DatabaseStatus
	ConnectionCount    int
	ActiveConnections  int
	SlowQueries        int
	AverageQueryTimeMs float64
	MaxConnections     int
}

// DatabaseProbe checks database health
type DatabaseProbe interface {
	Probe(ctx context.Context) (DatabaseHealth, error)
}

// SQLProbe times a probe query against a connection pool and reads the
// pool statistics. Latency figures cover the last few probes.
type SQLProbe struct {
	db        *sqlx.DB
	query     string
	slowAfter time.Duration
	clock     clock.Clock

	mu        sync.Mutex
	latencies []time.Duration
	next      int
}

// SQLProbeConfig configures an SQLProbe
type SQLProbeConfig struct {
	Query        string
	SlowAfter    time.Duration
	MaxOpenConns int
	Clock        clock.Clock
}

// NewSQLProbe wraps an open pool
func NewSQLProbe(db *sqlx.DB, cfg SQLProbeConfig) *SQLProbe {
	if cfg.Query == "" {
		cfg.Query = DefaultProbeQuery
	}
	if cfg.SlowAfter <= 0 {
		cfg.SlowAfter = DefaultSlowQuery
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &SQLProbe{
		db:        db,
		query:     cfg.Query,
		slowAfter: cfg.SlowAfter,
		clock:     cfg.Clock,
		latencies: make([]time.Duration, 0, latencyWindow),
	}
}

// OpenSQLProbe opens a pool for driverName and wraps it. The driver must be
// registered by the caller.
func OpenSQLProbe(driverName, dsn string, cfg SQLProbeConfig) (*SQLProbe, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return NewSQLProbe(db, cfg), nil
}

// Probe runs the probe query and reports pool statistics
func (p *SQLProbe) Probe(ctx context.Context) (DatabaseHealth, error) {
	start := p.clock.Now()
	var result int
	if err := p.db.GetContext(ctx, &result, p.query); err != nil {
		return DatabaseHealth{}, fmt.Errorf("database probe failed: %w", err)
	}
	elapsed := p.clock.Since(start)

	avg, slow := p.observe(elapsed)
	stats := p.db.Stats()

	return DatabaseHealth{
		Status:             domain.DatabaseConnected,
		ConnectionCount:    stats.OpenConnections,
		ActiveConnections:  stats.InUse,
		SlowQueries:        slow,
		AverageQueryTimeMs: float64(avg) / float64(time.Millisecond),
		MaxConnections:     stats.MaxOpenConnections,
	}, nil
}

// Close closes the underlying pool
func (p *SQLProbe) Close() error {
	return p.db.Close()
}

// observe records a latency and returns the window mean and slow count
func (p *SQLProbe) observe(d time.Duration) (time.Duration, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.latencies) < latencyWindow {
		p.latencies = append(p.latencies, d)
	} else {
		p.latencies[p.next] = d
		p.next = (p.next + 1) % latencyWindow
	}

	var total time.Duration
	slow := 0
	for _, l := range p.latencies {
		total += l
		if l >= p.slowAfter {
			slow++
		}
	}
	return total / time.Duration(len(p.latencies)), slow
}
