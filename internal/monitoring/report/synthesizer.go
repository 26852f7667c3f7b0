// Package report builds performance reports from retained history
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// Recommendation texts
const (
	RecommendScaleCPU        = "Consider scaling CPU resources or optimizing CPU-intensive operations"
	RecommendIncreaseMemory  = "Consider increasing memory allocation or investigating memory leaks"
	RecommendInvestigateErrs = "Investigate and fix recurring application errors"
	RecommendTuneDatabase    = "Review database queries and connection pool configuration"
	RecommendImmediateAction = "Critical alerts detected - immediate attention required"
	RecommendNone            = "System performance is within normal parameters"
)

// ErrNoData is wrapped when the requested window holds no snapshots
var ErrNoData = fmt.Errorf("No metrics data available for the specified period: %w", domain.ErrValidation)

// SnapshotSource yields retained snapshots, oldest first
type SnapshotSource interface {
	Query(r domain.TimeRange) []domain.Snapshot
}

// AlertSource yields retained alerts, oldest first
type AlertSource interface {
	InRange(r domain.TimeRange) []domain.Alert
}

// ResponseTimeSource reports the mean of all recorded response times
type ResponseTimeSource interface {
	AverageResponseTime() float64
}

// Synthesizer builds reports. It holds no state of its own.
type Synthesizer struct {
	snapshots     SnapshotSource
	alerts        AlertSource
	responseTimes ResponseTimeSource
	authorize     domain.Authorizer
	clock         clock.Clock
	logger        *zap.Logger
}

// Config wires a Synthesizer
type Config struct {
	Snapshots     SnapshotSource
	Alerts        AlertSource
	ResponseTimes ResponseTimeSource
	Authorize     domain.Authorizer
	Clock         clock.Clock
	Logger        *zap.Logger
}

// New creates a synthesizer. A nil authorizer denies every report.
func New(cfg Config) *Synthesizer {
	if cfg.Authorize == nil {
		cfg.Authorize = func(context.Context, domain.Action) bool { return false }
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Synthesizer{
		snapshots:     cfg.Snapshots,
		alerts:        cfg.Alerts,
		responseTimes: cfg.ResponseTimes,
		authorize:     cfg.Authorize,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
}

// Generate builds a report over [start, end]
func (s *Synthesizer) Generate(ctx context.Context, start, end time.Time) (*domain.PerformanceReport, error) {
	if !s.authorize(ctx, domain.ActionGenerateReport) {
		return nil, fmt.Errorf("generate report: %w", domain.ErrForbidden)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("report end %s is before start %s: %w",
			end.Format(time.RFC3339), start.Format(time.RFC3339), domain.ErrValidation)
	}

	period := domain.TimeRange{Start: start, End: end}
	snapshots := s.snapshots.Query(period)
	if len(snapshots) == 0 {
		return nil, ErrNoData
	}

	alerts := s.alerts.InRange(period)

	report := &domain.PerformanceReport{
		Period:        period,
		GeneratedAt:   s.clock.Now(),
		SnapshotCount: len(snapshots),
		Summary:       summarize(snapshots),
		Trends:        trends(snapshots),
		Alerts:        alerts,
	}
	if s.responseTimes != nil {
		report.Summary.AverageResponseTime = s.responseTimes.AverageResponseTime()
	}
	report.Recommendations = recommend(report.Summary, alerts)

	s.logger.Debug("Performance report generated",
		zap.Int("snapshots", len(snapshots)),
		zap.Int("alerts", len(alerts)),
		zap.Int("recommendations", len(report.Recommendations)))

	return report, nil
}

// summarize expects at least one snapshot. Request and error totals are
// sums of per-interval figures; TotalErrors adds up percentages.
func summarize(snapshots []domain.Snapshot) domain.ReportSummary {
	var sum domain.ReportSummary
	var cpuTotal, memTotal float64

	for i, snap := range snapshots {
		cpuTotal += snap.CPU.Usage
		memTotal += snap.Memory.UsedPercent
		if i == 0 || snap.CPU.Usage > sum.PeakCPUUsage {
			sum.PeakCPUUsage = snap.CPU.Usage
		}
		if i == 0 || snap.Memory.UsedPercent > sum.PeakMemoryUsage {
			sum.PeakMemoryUsage = snap.Memory.UsedPercent
		}
		sum.TotalRequests += snap.Application.RequestsPerInterval
		sum.TotalErrors += snap.Application.ErrorRatePercent
	}

	n := float64(len(snapshots))
	sum.AverageCPUUsage = cpuTotal / n
	sum.AverageMemoryUsage = memTotal / n
	if sum.TotalRequests > 0 {
		sum.ErrorRate = sum.TotalErrors / float64(sum.TotalRequests) * 100
	}
	return sum
}

func trends(snapshots []domain.Snapshot) domain.ReportTrends {
	t := domain.ReportTrends{
		CPU:      make([]domain.TrendPoint, 0, len(snapshots)),
		Memory:   make([]domain.TrendPoint, 0, len(snapshots)),
		Requests: make([]domain.TrendPoint, 0, len(snapshots)),
		Errors:   make([]domain.TrendPoint, 0, len(snapshots)),
	}
	for _, snap := range snapshots {
		ts := snap.Timestamp
		t.CPU = append(t.CPU, domain.TrendPoint{Timestamp: ts, Value: snap.CPU.Usage})
		t.Memory = append(t.Memory, domain.TrendPoint{Timestamp: ts, Value: snap.Memory.UsedPercent})
		t.Requests = append(t.Requests, domain.TrendPoint{Timestamp: ts, Value: float64(snap.Application.RequestsPerInterval)})
		t.Errors = append(t.Errors, domain.TrendPoint{Timestamp: ts, Value: snap.Application.ErrorRatePercent})
	}
	return t
}

func recommend(sum domain.ReportSummary, alerts []domain.Alert) []string {
	var recs []string

	if sum.AverageCPUUsage > 70 {
		recs = append(recs, RecommendScaleCPU)
	}
	if sum.AverageMemoryUsage > 80 {
		recs = append(recs, RecommendIncreaseMemory)
	}
	if sum.TotalErrors > 0 && sum.ErrorRate > 5 {
		recs = append(recs, RecommendInvestigateErrs)
	}

	var database, critical bool
	for _, a := range alerts {
		database = database || a.Type.IsDatabase()
		critical = critical || a.Severity == domain.SeverityCritical
	}
	if database {
		recs = append(recs, RecommendTuneDatabase)
	}
	if critical {
		recs = append(recs, RecommendImmediateAction)
	}

	if len(recs) == 0 {
		recs = append(recs, RecommendNone)
	}
	return recs
}
