package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// nowcast pipeline.
type Metrics struct {
	SnapshotsConsumed prometheus.Counter
	NowcastsProduced  prometheus.Counter
	ForecastErrors    prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Motion estimation metrics.
	BoxesSolved     prometheus.Counter
	DegenerateBoxes prometheus.Counter

	// Stage timings and output quality.
	ForecastDuration    prometheus.Histogram
	InvalidCellFraction prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SnapshotsConsumed,
		m.NowcastsProduced,
		m.ForecastErrors,
		m.PipelineRunning,
		m.BoxesSolved,
		m.DegenerateBoxes,
		m.ForecastDuration,
		m.InvalidCellFraction,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_nowcast",
			Name:      "snapshots_consumed_total",
			Help:      "Total radar snapshots read from the source topic.",
		}),
		NowcastsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_nowcast",
			Name:      "nowcasts_produced_total",
			Help:      "Total nowcast products written to the sink topic.",
		}),
		ForecastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_nowcast",
			Name:      "forecast_errors_total",
			Help:      "Total snapshots that could not be forecast.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar_nowcast",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BoxesSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_nowcast",
			Name:      "boxes_solved_total",
			Help:      "Total least-squares boxes with a reliable motion estimate.",
		}),
		DegenerateBoxes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_nowcast",
			Name:      "degenerate_boxes_total",
			Help:      "Total boxes whose local fit was singular or undersampled.",
		}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar_nowcast",
			Name:      "forecast_duration_seconds",
			Help:      "Duration of a complete motion-estimation and extrapolation run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InvalidCellFraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar_nowcast",
			Name:      "invalid_cell_fraction",
			Help:      "Fraction of masked cells per nowcast product.",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
		}),
	}
}
