package domain

import "time"

// PerformanceReport summarizes retained history over a time window
type PerformanceReport struct {
	Period          TimeRange     `json:"period"`
	GeneratedAt     time.Time     `json:"generated_at"`
	SnapshotCount   int           `json:"snapshot_count"`
	Summary         ReportSummary `json:"summary"`
	Trends          ReportTrends  `json:"trends"`
	Alerts          []Alert       `json:"alerts"`
	Recommendations []string      `json:"recommendations"`
}

// ReportSummary holds the aggregate figures of a report.
//
// TotalRequests and TotalErrors add up per-interval values exactly as they
// were recorded. TotalErrors is therefore a sum of error-rate percentages,
// not an error count.
type ReportSummary struct {
	AverageCPUUsage     float64 `json:"average_cpu_usage"`
	PeakCPUUsage        float64 `json:"peak_cpu_usage"`
	AverageMemoryUsage  float64 `json:"average_memory_usage"`
	PeakMemoryUsage     float64 `json:"peak_memory_usage"`
	TotalRequests       int64   `json:"total_requests"`
	TotalErrors         float64 `json:"total_errors"`
	ErrorRate           float64 `json:"error_rate"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
}

// TrendPoint is one (timestamp, value) sample of a trend series
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ReportTrends are the per-snapshot series a report was computed from
type ReportTrends struct {
	CPU      []TrendPoint `json:"cpu"`
	Memory   []TrendPoint `json:"memory"`
	Requests []TrendPoint `json:"requests"`
	Errors   []TrendPoint `json:"errors"`
}
