package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "ratebot_scheduler_"

// Metrics are the scheduler's Prometheus collectors.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	users         prometheus.Gauge
	digests       *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	sourceErrors  *prometheus.CounterVec
	configIssues  *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "sweeps_total",
			Help: "Polling sweeps by result",
		}, []string{"result"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "sweep_duration_seconds",
			Help:    "Duration of one polling sweep",
			Buckets: prometheus.DefBuckets,
		}),
		users: f.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "users",
			Help: "Users scanned in the last sweep",
		}),
		digests: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "digests_total",
			Help: "Scheduled digests by result",
		}, []string{"result"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "alerts_total",
			Help: "Threshold crossing alerts by result",
		}, []string{"result"}),
		sourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "rate_source_errors_total",
			Help: "Rate source failures by kind",
		}, []string{"kind"}),
		configIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "config_issues_total",
			Help: "Malformed stored settings replaced by defaults, by field",
		}, []string{"field"}),
	}
}

const (
	resultOK        = "ok"
	resultError     = "error"
	resultSent      = "sent"
	resultFailed    = "failed"
	resultAbandoned = "abandoned"
	resultPanic     = "panic"
)
