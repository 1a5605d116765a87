package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	fallbacksTotal     *prometheus.CounterVec
	assetsCalculated   prometheus.Gauge
	probabilityRise    *prometheus.GaugeVec
	latency            *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
}

// New registers on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinodds_runs_total",
				Help: "Calculation runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinodds_run_duration_seconds",
				Help:    "Wall time of a calculation run",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		validationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinodds_validation_failures_total",
				Help: "Failed validation checks",
			},
			[]string{"check"},
		),
		fallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinodds_fallbacks_total",
				Help: "Values taken from a fallback tier instead of the primary source",
			},
			[]string{"tier"},
		),
		assetsCalculated: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinodds_assets_calculated",
			Help: "Assets in the last committed run",
		}),
		probabilityRise: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinodds_probability_rise",
				Help: "Last committed probability of a rise",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinodds_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinodds_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordRun(outcome string, d time.Duration) {
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *Recorder) RecordValidationFailure(check string) {
	r.validationFailures.WithLabelValues(check).Inc()
}

func (r *Recorder) RecordFallback(tier string) {
	r.fallbacksTotal.WithLabelValues(tier).Inc()
}

func (r *Recorder) RecordAssetsCalculated(n int) {
	r.assetsCalculated.Set(float64(n))
}

func (r *Recorder) RecordProbability(symbol string, pRise float64) {
	r.probabilityRise.WithLabelValues(symbol).Set(pRise)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRun(string, time.Duration)   {}
func (Nop) RecordValidationFailure(string)    {}
func (Nop) RecordFallback(string)             {}
func (Nop) RecordAssetsCalculated(int)        {}
func (Nop) RecordProbability(string, float64) {}
func (Nop) RecordLatency(string, float64)     {}
func (Nop) RecordError(string)                {}
