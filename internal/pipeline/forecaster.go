package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/couchcryptid/radar-nowcast/internal/config"
	"github.com/couchcryptid/radar-nowcast/internal/domain"
	"github.com/couchcryptid/radar-nowcast/internal/observability"
)

// windowSize is how many recent snapshots feed a forecast: the newest three
// yield two consecutive pairs whose velocity estimates are averaged.
const windowSize = 3

// WindowForecaster implements Forecaster by keeping a rolling window of the
// most recent snapshots per site and running the motion-estimation and
// extrapolation pipeline each time a new one arrives.
type WindowForecaster struct {
	cfg     domain.ForecastConfig
	windows map[string][]domain.Snapshot
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewForecaster creates a WindowForecaster from service configuration.
func NewForecaster(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *WindowForecaster {
	return &WindowForecaster{
		cfg: domain.ForecastConfig{
			Motion: domain.MotionConfig{
				BoxSize:       cfg.BoxSize,
				Iterations:    cfg.SmoothingIterations,
				SmoothWeight:  cfg.SmoothingWeight,
				MinBoxSamples: cfg.MinBoxSamples,
			},
			MaxLeadTime:      cfg.MaxLeadTime,
			LeadTimeInterval: cfg.LeadTimeInterval,
			Extrapolate:      cfg.Extrapolate,
		},
		windows: make(map[string][]domain.Snapshot),
		logger:  logger,
		metrics: metrics,
	}
}

// Observe adds a snapshot to its site's window and, once at least two
// snapshots are held, runs a forecast. Returns no products while warming up.
// Observe is not safe for concurrent use; the pipeline calls it from a single
// goroutine.
func (f *WindowForecaster) Observe(_ context.Context, snap domain.Snapshot) ([]domain.Product, error) {
	if err := snap.Field.CheckShape(); err != nil {
		return nil, err
	}

	window := f.windows[snap.Site]

	// A site that changes grid shape (radar reconfiguration) starts over;
	// old snapshots are not comparable to the new grid.
	if len(window) > 0 && !window[0].Field.SameShape(snap.Field) {
		f.logger.Warn("grid shape changed, resetting window",
			"site", snap.Site,
			"was", window[0].Field.Rows*window[0].Field.Cols,
			"now", snap.Field.Rows*snap.Field.Cols,
		)
		window = nil
	}

	window = append(window, snap)
	sort.Slice(window, func(i, j int) bool {
		return window[i].ObservedAt.Before(window[j].ObservedAt)
	})
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	f.windows[snap.Site] = window

	if len(window) < 2 {
		f.logger.Debug("window warming up", "site", snap.Site, "have", len(window))
		return nil, nil
	}

	result, err := domain.Forecast(window, f.cfg)
	if err != nil {
		return nil, err
	}
	f.metrics.BoxesSolved.Add(float64(result.BoxesSolved))
	f.metrics.DegenerateBoxes.Add(float64(result.DegenerateBoxes))
	return result.Products, nil
}
