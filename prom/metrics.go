// Package prom records outbox metrics with the Prometheus client.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	outbox "github.com/velmie/txoutbox"
)

const namespace = "outbox"

// Metrics implements outbox.Metrics.
type Metrics struct {
	sweepDuration *prometheus.HistogramVec
	sent          *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	markedFailed  prometheus.Counter
	purged        prometheus.Counter
	backlog       *prometheus.GaugeVec
}

var _ outbox.Metrics = (*Metrics)(nil)

// New registers the outbox collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_sweep_duration_seconds",
			Help:      "Duration of recovery sweeps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_total",
			Help:      "Records delivered, by delivery path.",
		}, []string{"path"}),
		sendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Failed delivery attempts, by delivery path.",
		}, []string{"path"}),
		markedFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marked_failed_total",
			Help:      "Records marked failed by consumers or operators.",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_total",
			Help:      "Records removed by retention.",
		}),
		backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backlog",
			Help:      "Records awaiting delivery, by status.",
		}, []string{"status"}),
	}
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSweep implements outbox.Metrics.
func (m *Metrics) ObserveSweep(sweep string, duration time.Duration) {
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// AddSent implements outbox.Metrics.
func (m *Metrics) AddSent(path string, count int) {
	m.sent.WithLabelValues(path).Add(float64(count))
}

// AddSendErrors implements outbox.Metrics.
func (m *Metrics) AddSendErrors(path string, count int) {
	m.sendErrors.WithLabelValues(path).Add(float64(count))
}

// AddMarkedFailed implements outbox.Metrics.
func (m *Metrics) AddMarkedFailed(count int) {
	m.markedFailed.Add(float64(count))
}

// AddPurged implements outbox.Metrics.
func (m *Metrics) AddPurged(count int64) {
	m.purged.Add(float64(count))
}

// SetBacklog implements outbox.Metrics.
func (m *Metrics) SetBacklog(status outbox.Status, count int) {
	m.backlog.WithLabelValues(status.String()).Set(float64(count))
}
