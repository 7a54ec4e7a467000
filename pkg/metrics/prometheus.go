package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	patients     prometheus.Gauge
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalwatch_observations_total",
				Help: "Total number of observations appended to the store",
			},
			[]string{"category"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalwatch_alerts_total",
				Help: "Total number of alerts raised",
			},
			[]string{"condition"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		patients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalwatch_patients",
				Help: "Number of patients known to the store",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitalwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordObservation counts an appended observation.
func (r *Recorder) RecordObservation(category string) {
	r.observations.WithLabelValues(category).Inc()
}

// RecordAlert counts a raised alert.
func (r *Recorder) RecordAlert(condition string) {
	r.alerts.WithLabelValues(condition).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordPatients sets the known patient count.
func (r *Recorder) RecordPatients(n int) {
	r.patients.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordObservation(string)      {}
func (Nop) RecordAlert(string)            {}
func (Nop) RecordError(string)            {}
func (Nop) RecordPatients(int)            {}
func (Nop) RecordLatency(string, float64) {}
