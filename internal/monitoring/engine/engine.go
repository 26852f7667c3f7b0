// Package engine runs the monitoring loop and exposes the operations the
// rest of the application uses: metric and alert queries, alert
// resolution, threshold management, reports and event subscriptions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/yairfalse/vigil/internal/monitoring/alerts"
	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"github.com/yairfalse/vigil/internal/monitoring/evaluator"
	"github.com/yairfalse/vigil/internal/monitoring/history"
	"github.com/yairfalse/vigil/internal/monitoring/report"
	"github.com/yairfalse/vigil/internal/monitoring/thresholds"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultCloseTimeout bounds how long Close waits for an in-flight tick
const DefaultCloseTimeout = 5 * time.Second

// Provider produces snapshots. Sample consumes the request counters for
// the interval; Peek reads them without resetting.
type Provider interface {
	Sample(ctx context.Context) (domain.Snapshot, error)
	Peek(ctx context.Context) (domain.Snapshot, error)
}

// Recorder accumulates application activity between samples
type Recorder interface {
	RecordRequest()
	RecordError()
	RecordResponseTime(ms float64)
	AverageResponseTime() float64
	ResetResponseTimes()
}

// Config configures an Engine. Zero values select defaults.
type Config struct {
	HistoryCapacity   int
	AlertCapacity     int
	SuppressionWindow time.Duration
	DispatchQueueSize int
	Thresholds        domain.ThresholdSet
	Authorize         domain.Authorizer
	CloseTimeout      time.Duration
	Clock             clock.Clock
	Logger            *zap.Logger
}

// Stats describe the engine state
type Stats struct {
	Running      bool           `json:"running"`
	Interval     string         `json:"interval,omitempty"`
	Ticks        int64          `json:"ticks"`
	TickFailures int64          `json:"tick_failures"`
	Snapshots    int            `json:"snapshots"`
	Alerts       alerts.Stats   `json:"alerts"`
	Dispatch     dispatch.Stats `json:"dispatch"`
}

// Engine owns one monitoring pipeline. Ticks never overlap, including
// across a stop and restart.
type Engine struct {
	provider Provider
	recorder Recorder

	history    *history.Buffer
	alerts     *alerts.Store
	dispatcher *dispatch.Dispatcher
	thresholds *thresholds.Manager
	reports    *report.Synthesizer

	clock      clock.Clock
	logger     *zap.Logger
	errLimiter *rate.Limiter
	evaluate   func(domain.Snapshot, domain.ThresholdSet) []domain.CandidateAlert

	closeTimeout time.Duration

	// Lifecycle
	mu       sync.Mutex
	running  atomic.Bool
	interval atomic.Int64
	cancel   context.CancelFunc
	loops    sync.WaitGroup

	// tickMu serializes ticks of the current and any stopped loop
	tickMu sync.Mutex

	ticks        atomic.Int64
	tickFailures atomic.Int64

	// OTEL instrumentation
	ticksCounter      metric.Int64Counter
	failuresCounter   metric.Int64Counter
	tickDuration      metric.Float64Histogram
	createdCounter    metric.Int64Counter
	suppressedCounter metric.Int64Counter
}

// New assembles an engine around provider and recorder
func New(cfg Config, provider Provider, recorder Recorder) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required: %w", domain.ErrValidation)
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required: %w", domain.ErrValidation)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Thresholds == (domain.ThresholdSet{}) {
		cfg.Thresholds = domain.DefaultThresholds()
	}

	manager, err := thresholds.NewManager(cfg.Thresholds, cfg.Authorize, cfg.Logger.Named("thresholds"))
	if err != nil {
		return nil, err
	}

	buf := history.NewBuffer(cfg.HistoryCapacity)
	store := alerts.NewStore(alerts.Config{
		Capacity:          cfg.AlertCapacity,
		SuppressionWindow: cfg.SuppressionWindow,
		Clock:             cfg.Clock,
		Logger:            cfg.Logger.Named("alerts"),
	})

	e := &Engine{
		provider:   provider,
		recorder:   recorder,
		history:    buf,
		alerts:     store,
		dispatcher: dispatch.New(cfg.DispatchQueueSize, cfg.Logger.Named("dispatch")),
		thresholds: manager,
		reports: report.New(report.Config{
			Snapshots:     buf,
			Alerts:        store,
			ResponseTimes: recorder,
			Authorize:     cfg.Authorize,
			Clock:         cfg.Clock,
			Logger:        cfg.Logger.Named("report"),
		}),
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		errLimiter:   rate.NewLimiter(rate.Every(time.Minute), 3),
		evaluate:     evaluator.Evaluate,
		closeTimeout: cfg.CloseTimeout,
	}
	e.initializeMetrics()

	return e, nil
}

func (e *Engine) initializeMetrics() {
	meter := otel.Meter("vigil/engine")

	var err error
	e.ticksCounter, err = meter.Int64Counter(
		"vigil_engine_ticks_total",
		metric.WithDescription("Monitoring ticks started"),
	)
	if err != nil {
		e.logger.Warn("Failed to create ticks counter", zap.Error(err))
	}

	e.failuresCounter, err = meter.Int64Counter(
		"vigil_engine_tick_failures_total",
		metric.WithDescription("Monitoring ticks that failed"),
	)
	if err != nil {
		e.logger.Warn("Failed to create tick failures counter", zap.Error(err))
	}

	e.tickDuration, err = meter.Float64Histogram(
		"vigil_engine_tick_duration_ms",
		metric.WithDescription("Monitoring tick duration in milliseconds"),
	)
	if err != nil {
		e.logger.Warn("Failed to create tick duration histogram", zap.Error(err))
	}

	e.createdCounter, err = meter.Int64Counter(
		"vigil_alerts_created_total",
		metric.WithDescription("Alerts created after deduplication"),
	)
	if err != nil {
		e.logger.Warn("Failed to create alerts counter", zap.Error(err))
	}

	e.suppressedCounter, err = meter.Int64Counter(
		"vigil_alerts_suppressed_total",
		metric.WithDescription("Candidate alerts discarded as duplicates"),
	)
	if err != nil {
		e.logger.Warn("Failed to create suppressed alerts counter", zap.Error(err))
	}
}

// StartMonitoring runs one tick immediately and then one per interval
func (e *Engine) StartMonitoring(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s: %w", interval, domain.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return domain.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := e.clock.Ticker(interval)

	e.cancel = cancel
	e.interval.Store(int64(interval))
	e.running.Store(true)

	e.loops.Add(1)
	go e.loop(ctx, ticker)

	e.logger.Info("Monitoring started", zap.Duration("interval", interval))
	return nil
}

// StopMonitoring cancels the loop and returns without waiting for an
// in-flight tick. No tick starts after it returns.
func (e *Engine) StopMonitoring() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() {
		return domain.ErrNotRunning
	}

	e.cancel()
	e.running.Store(false)
	e.interval.Store(0)

	e.logger.Info("Monitoring stopped", zap.Int64("ticks", e.ticks.Load()))
	return nil
}

// IsRunning reports whether the loop is active
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Close stops monitoring if needed, waits up to the close timeout for
// in-flight ticks and shuts down event delivery.
func (e *Engine) Close() {
	if err := e.StopMonitoring(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		e.logger.Warn("Failed to stop monitoring", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		e.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.closeTimeout):
		e.logger.Warn("Monitoring tick still running at close, abandoning it",
			zap.Duration("timeout", e.closeTimeout))
	}

	e.dispatcher.Close()
}

func (e *Engine) loop(ctx context.Context, ticker *clock.Ticker) {
	defer e.loops.Done()
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs the pipeline once. Failures end the tick, never the loop, and
// a failed tick leaves history untouched.
func (e *Engine) tick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	// stopped while waiting behind a previous loop's tick
	if ctx.Err() != nil {
		return
	}

	start := e.clock.Now()
	e.ticks.Add(1)
	if e.ticksCounter != nil {
		e.ticksCounter.Add(ctx, 1)
	}

	defer func() {
		if r := recover(); r != nil {
			e.tickFailed(ctx, fmt.Errorf("tick panic: %v", r))
		}
		if e.tickDuration != nil {
			e.tickDuration.Record(ctx, float64(e.clock.Since(start).Milliseconds()))
		}
	}()

	snapshot, err := e.provider.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.tickFailed(ctx, err)
		return
	}

	candidates := e.evaluate(snapshot, e.thresholds.Get())

	var created []domain.Alert
	for _, candidate := range candidates {
		alert, ok := e.alerts.Add(candidate)
		if !ok {
			if e.suppressedCounter != nil {
				e.suppressedCounter.Add(ctx, 1)
			}
			continue
		}
		created = append(created, alert)
		if e.createdCounter != nil {
			e.createdCounter.Add(ctx, 1)
		}
	}

	e.history.Append(snapshot)

	e.dispatcher.Publish(dispatch.Event{
		Kind:      dispatch.KindMetrics,
		Timestamp: snapshot.Timestamp,
		Snapshot:  snapshot,
	})
	if len(created) > 0 {
		e.dispatcher.Publish(dispatch.Event{
			Kind:      dispatch.KindAlerts,
			Timestamp: snapshot.Timestamp,
			Alerts:    created,
		})
	}
}

func (e *Engine) tickFailed(ctx context.Context, err error) {
	e.tickFailures.Add(1)
	if e.failuresCounter != nil {
		e.failuresCounter.Add(ctx, 1)
	}

	if e.errLimiter.Allow() {
		e.logger.Error("Monitoring tick failed", zap.Error(err))
		return
	}
	e.logger.Debug("Monitoring tick failed", zap.Error(err))
}

// Stats returns a point-in-time view of the engine. It never blocks on
// the lifecycle lock.
func (e *Engine) Stats() Stats {
	interval := time.Duration(e.interval.Load())

	s := Stats{
		Running:      e.running.Load(),
		Ticks:        e.ticks.Load(),
		TickFailures: e.tickFailures.Load(),
		Snapshots:    e.history.Len(),
		Alerts:       e.alerts.Stats(),
		Dispatch:     e.dispatcher.Stats(),
	}
	if interval > 0 {
		s.Interval = interval.String()
	}
	return s
}
