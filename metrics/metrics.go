// Package metrics provides Prometheus metrics for ftpreconcile.
//
// Every Metrics value owns its registry so tests and multiple runs in one
// process do not collide. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	transportCalls    *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	existencePolls    *prometheus.CounterVec
	calibrations      *prometheus.CounterVec
	clockOffset       *prometheus.GaugeVec
	mirrorFiles       *prometheus.CounterVec
	mirrorBytes       prometheus.Counter
}

// New registers the ftpreconcile collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		transportCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpreconcile_transport_calls_total",
				Help: "Total transport calls by operation and result",
			},
			[]string{"op", "result"},
		),
		transportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpreconcile_transport_call_duration_seconds",
				Help:    "Transport call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		existencePolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpreconcile_existence_polls_total",
				Help: "Existence checks that had to poll, by outcome",
			},
			[]string{"outcome"},
		),
		calibrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpreconcile_clock_calibrations_total",
				Help: "Clock calibrations by result",
			},
			[]string{"result"},
		),
		clockOffset: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ftpreconcile_clock_offset_seconds",
				Help: "Remote minus local clock offset per server",
			},
			[]string{"server"},
		),
		mirrorFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpreconcile_mirror_files_total",
				Help: "Files handled by the mirror runner, by action",
			},
			[]string{"action"},
		),
		mirrorBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ftpreconcile_mirror_bytes_uploaded_total",
				Help: "Bytes uploaded by the mirror runner",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordTransportCall records one transport call.
func (m *Metrics) RecordTransportCall(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.transportCalls.WithLabelValues(op, result(err)).Inc()
	m.transportDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPoll records how an existence poll ended: "converged", "exhausted"
// or "canceled".
func (m *Metrics) RecordPoll(outcome string) {
	if m == nil {
		return
	}
	m.existencePolls.WithLabelValues(outcome).Inc()
}

// RecordCalibration records a calibration attempt and, on success, the offset.
func (m *Metrics) RecordCalibration(server string, offset time.Duration, err error) {
	if m == nil {
		return
	}
	m.calibrations.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.clockOffset.WithLabelValues(server).Set(offset.Seconds())
	}
}

// RecordMirrorFile records what the mirror runner did with one file.
func (m *Metrics) RecordMirrorFile(action string, bytes int64) {
	if m == nil {
		return
	}
	m.mirrorFiles.WithLabelValues(action).Inc()
	if action == "uploaded" && bytes > 0 {
		m.mirrorBytes.Add(float64(bytes))
	}
}
