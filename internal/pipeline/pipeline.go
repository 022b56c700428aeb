package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/radar-nowcast/internal/domain"
	"github.com/couchcryptid/radar-nowcast/internal/observability"
)

// RawSnapshot is one unprocessed message from the source topic.
type RawSnapshot struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Extractor reads the next raw snapshot from the source, blocking until one
// arrives or the context is cancelled.
type Extractor interface {
	Extract(ctx context.Context) (RawSnapshot, error)
}

// Forecaster turns an observed snapshot into nowcast products. An empty
// product slice with a nil error means the forecaster is still warming up.
type Forecaster interface {
	Observe(ctx context.Context, snap domain.Snapshot) ([]domain.Product, error)
}

// Loader writes nowcast products to the destination.
type Loader interface {
	LoadProducts(ctx context.Context, products []domain.Product) error
}

// Pipeline orchestrates the extract-forecast-load loop.
type Pipeline struct {
	extractor  Extractor
	forecaster Forecaster
	loader     Loader
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, f Forecaster, l Loader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor:  e,
		forecaster: f,
		loader:     l,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once the pipeline has processed at least one
// snapshot, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any snapshots yet")
	}
	return nil
}

// Run executes the nowcast loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processNext(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processNext handles one snapshot end to end. Returns false if the pipeline
// should stop.
func (p *Pipeline) processNext(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	raw, err := p.extractor.Extract(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract snapshot failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	p.metrics.SnapshotsConsumed.Inc()
	*backoff = 200 * time.Millisecond

	start := time.Now()
	snap, err := domain.ParseSnapshot(raw.Value)
	if err != nil {
		// A malformed snapshot can never become valid; skip it.
		p.logger.Warn("snapshot rejected, skipping message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.ForecastErrors.Inc()
		p.commitOffset(ctx, raw)
		return true
	}

	products, err := p.forecaster.Observe(ctx, snap)
	if err != nil {
		p.logger.Warn("forecast failed, skipping snapshot",
			"error", err, "site", snap.Site, "observed_at", snap.ObservedAt)
		p.metrics.ForecastErrors.Inc()
		p.commitOffset(ctx, raw)
		return true
	}

	if len(products) > 0 {
		if err := p.loader.LoadProducts(ctx, products); err != nil {
			p.logger.Error("load products failed", "error", err, "count", len(products))
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		p.metrics.NowcastsProduced.Add(float64(len(products)))
		p.metrics.ForecastDuration.Observe(time.Since(start).Seconds())
		for _, product := range products {
			total := product.Field.Rows * product.Field.Cols
			p.metrics.InvalidCellFraction.Observe(float64(product.Field.InvalidCount()) / float64(total))
		}
		p.logger.Info("nowcast published",
			"site", snap.Site,
			"reference_time", snap.ObservedAt,
			"products", len(products),
		)
	}

	p.commitOffset(ctx, raw)
	p.ready.Store(true)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw RawSnapshot) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
