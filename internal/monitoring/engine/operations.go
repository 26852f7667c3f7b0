package engine

import (
	"context"
	"time"

	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"github.com/yairfalse/vigil/internal/monitoring/thresholds"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// CurrentMetrics samples the provider directly. Neither history nor the
// request counters are touched; the next tick still sees every request.
func (e *Engine) CurrentMetrics(ctx context.Context) (domain.Snapshot, error) {
	return e.provider.Peek(ctx)
}

// MetricsHistory returns retained snapshots inside r, oldest first
func (e *Engine) MetricsHistory(r domain.TimeRange) []domain.Snapshot {
	return e.history.Query(r)
}

// ActiveAlerts returns unresolved alerts
func (e *Engine) ActiveAlerts() []domain.Alert {
	return e.alerts.Active()
}

// AlertsHistory returns retained alerts inside r, newest first
func (e *Engine) AlertsHistory(r domain.TimeRange) []domain.Alert {
	return e.alerts.History(r)
}

// ResolveAlert marks an alert resolved
func (e *Engine) ResolveAlert(id string) (domain.Alert, error) {
	alert, err := e.alerts.Resolve(id)
	if err != nil {
		return alert, err
	}
	e.logger.Info("Alert resolved",
		zap.String("id", alert.ID),
		zap.String("type", alert.Type.String()))
	return alert, nil
}

// Thresholds returns the current threshold set
func (e *Engine) Thresholds() domain.ThresholdSet {
	return e.thresholds.Get()
}

// UpdateThresholds merges u into the current set. The caller in ctx must be
// allowed to update thresholds.
func (e *Engine) UpdateThresholds(ctx context.Context, u domain.ThresholdUpdate) (domain.ThresholdSet, error) {
	return e.thresholds.Update(ctx, u)
}

// ResetThresholds restores the default thresholds
func (e *Engine) ResetThresholds(ctx context.Context) (domain.ThresholdSet, error) {
	return e.thresholds.Reset(ctx)
}

// ThresholdManager exposes the manager for file-based reloads
func (e *Engine) ThresholdManager() *thresholds.Manager {
	return e.thresholds
}

// GeneratePerformanceReport summarizes [start, end]. Zero bounds are open.
func (e *Engine) GeneratePerformanceReport(ctx context.Context, start, end time.Time) (*domain.PerformanceReport, error) {
	return e.reports.Generate(ctx, start, end)
}

// Subscribe registers handler for metrics or alert events
func (e *Engine) Subscribe(kind dispatch.Kind, name string, handler dispatch.Handler) (dispatch.Subscription, error) {
	return e.dispatcher.Subscribe(kind, name, handler)
}

// Unsubscribe removes a subscription
func (e *Engine) Unsubscribe(s dispatch.Subscription) error {
	return e.dispatcher.Unsubscribe(s)
}

// RecordRequest counts a request for the next sample
func (e *Engine) RecordRequest() {
	e.recorder.RecordRequest()
}

// RecordError counts a failed request for the next sample
func (e *Engine) RecordError() {
	e.recorder.RecordError()
}

// RecordResponseTime adds a response time in milliseconds
func (e *Engine) RecordResponseTime(ms float64) {
	e.recorder.RecordResponseTime(ms)
}

// ResetResponseTimes clears the response time mean used by reports
func (e *Engine) ResetResponseTimes() {
	e.recorder.ResetResponseTimes()
}
