package sinks

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"github.com/yairfalse/vigil/pkg/domain"
)

// PrometheusSink mirrors the latest snapshot into gauges and counts alerts
type PrometheusSink struct {
	registry *prometheus.Registry

	cpuUsage        prometheus.Gauge
	loadAverage     *prometheus.GaugeVec
	memoryUsed      prometheus.Gauge
	processMemory   prometheus.Gauge
	databaseUp      prometheus.Gauge
	poolUtilization prometheus.Gauge
	queryTime       prometheus.Gauge
	slowQueries     prometheus.Gauge
	requests        prometheus.Gauge
	errorRate       prometheus.Gauge
	alertsTotal     *prometheus.CounterVec
}

// NewPrometheusSink registers collectors on registry. A nil registry gets
// a fresh one.
func NewPrometheusSink(registry *prometheus.Registry) *PrometheusSink {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &PrometheusSink{
		registry: registry,

		cpuUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_cpu_usage_percent",
			Help: "Host CPU usage",
		}),
		loadAverage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vigil_cpu_load_average",
			Help: "Host load average",
		}, []string{"period"}),
		memoryUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_memory_used_percent",
			Help: "Host memory usage",
		}),
		processMemory: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_process_memory_bytes",
			Help: "Resident memory of the monitored process",
		}),
		databaseUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_database_up",
			Help: "1 when the last database probe succeeded",
		}),
		poolUtilization: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_database_pool_utilization_percent",
			Help: "Connections in use relative to the pool limit",
		}),
		queryTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_database_query_time_ms",
			Help: "Average probe query latency",
		}),
		slowQueries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_database_slow_queries",
			Help: "Slow probe queries in the latency window",
		}),
		requests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_application_requests_per_interval",
			Help: "Requests recorded during the last interval",
		}),
		errorRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_application_error_rate_percent",
			Help: "Error rate during the last interval",
		}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_alerts_total",
			Help: "Alerts raised after deduplication",
		}, []string{"type", "severity"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Name implements Sink
func (s *PrometheusSink) Name() string { return "prometheus" }

// Kinds implements Sink
func (s *PrometheusSink) Kinds() []dispatch.Kind {
	return []dispatch.Kind{dispatch.KindMetrics, dispatch.KindAlerts}
}

// Handle implements Sink
func (s *PrometheusSink) Handle(_ context.Context, ev dispatch.Event) error {
	switch ev.Kind {
	case dispatch.KindMetrics:
		s.observe(ev.Snapshot)
	case dispatch.KindAlerts:
		for _, a := range ev.Alerts {
			s.alertsTotal.WithLabelValues(a.Type.String(), a.Severity.String()).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) observe(snap domain.Snapshot) {
	s.cpuUsage.Set(snap.CPU.Usage)
	s.loadAverage.WithLabelValues("1m").Set(snap.CPU.LoadAverages[0])
	s.loadAverage.WithLabelValues("5m").Set(snap.CPU.LoadAverages[1])
	s.loadAverage.WithLabelValues("15m").Set(snap.CPU.LoadAverages[2])
	s.memoryUsed.Set(snap.Memory.UsedPercent)
	s.processMemory.Set(float64(snap.Process.MemoryUsage))

	if snap.Database.Status == domain.DatabaseConnected {
		s.databaseUp.Set(1)
	} else {
		s.databaseUp.Set(0)
	}
	s.poolUtilization.Set(snap.Database.PoolUtilizationPercent)
	s.queryTime.Set(snap.Database.AverageQueryTimeMs)
	s.slowQueries.Set(float64(snap.Database.SlowQueries))

	s.requests.Set(float64(snap.Application.RequestsPerInterval))
	s.errorRate.Set(snap.Application.ErrorRatePercent)
}
