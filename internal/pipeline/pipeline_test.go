package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/radar-nowcast/internal/domain"
	"github.com/couchcryptid/radar-nowcast/internal/observability"
	"github.com/couchcryptid/radar-nowcast/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	messages []pipeline.RawSnapshot
	index    atomic.Int64
}

func (m *mockExtractor) Extract(ctx context.Context) (pipeline.RawSnapshot, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.messages) {
		// Block until context cancelled to simulate waiting for messages.
		<-ctx.Done()
		return pipeline.RawSnapshot{}, ctx.Err()
	}
	return m.messages[i], nil
}

type mockForecaster struct {
	products []domain.Product
	err      error
	observed []domain.Snapshot
}

func (m *mockForecaster) Observe(_ context.Context, snap domain.Snapshot) ([]domain.Product, error) {
	m.observed = append(m.observed, snap)
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

type mockLoader struct {
	loaded   [][]domain.Product
	failures int
}

func (m *mockLoader) LoadProducts(_ context.Context, products []domain.Product) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("sink unavailable")
	}
	m.loaded = append(m.loaded, products)
	return nil
}

// --- helpers ---

var testObservedAt = time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)

func makeRawSnapshot(t *testing.T, site string, commits *atomic.Int64) pipeline.RawSnapshot {
	t.Helper()
	field := domain.NewGridField(4, 4)
	data, err := domain.EncodeSnapshot(domain.Snapshot{
		Site:       site,
		ObservedAt: testObservedAt,
		Field:      field,
	})
	require.NoError(t, err)
	return pipeline.RawSnapshot{
		Value: data,
		Topic: "radar-snapshots",
		Commit: func(context.Context) error {
			if commits != nil {
				commits.Add(1)
			}
			return nil
		},
	}
}

func makeProducts() []domain.Product {
	return []domain.Product{{
		Site:          "site-a",
		ReferenceTime: testObservedAt,
		LeadTime:      15 * time.Minute,
		Field:         domain.NewGridField(4, 4),
	}}
}

func runPipeline(t *testing.T, p *pipeline.Pipeline, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{messages: []pipeline.RawSnapshot{makeRawSnapshot(t, "site-a", &commits)}}
	fc := &mockForecaster{products: makeProducts()}
	ldr := &mockLoader{}

	p := pipeline.New(ext, fc, ldr, slog.Default(), observability.NewMetricsForTesting())
	runPipeline(t, p, 500*time.Millisecond)

	require.Len(t, ldr.loaded, 1)
	assert.Len(t, ldr.loaded[0], 1)
	assert.Equal(t, "site-a", fc.observed[0].Site)
	assert.EqualValues(t, 1, commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_WarmupProducesNothing(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{messages: []pipeline.RawSnapshot{makeRawSnapshot(t, "site-a", &commits)}}
	fc := &mockForecaster{} // returns no products, no error
	ldr := &mockLoader{}

	p := pipeline.New(ext, fc, ldr, slog.Default(), observability.NewMetricsForTesting())
	runPipeline(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.loaded)
	// A warming-up snapshot is still consumed and committed.
	assert.EqualValues(t, 1, commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_MalformedSnapshotSkipped(t *testing.T) {
	var commits atomic.Int64
	bad := pipeline.RawSnapshot{
		Value: []byte("{not json"),
		Commit: func(context.Context) error {
			commits.Add(1)
			return nil
		},
	}
	good := makeRawSnapshot(t, "site-a", &commits)

	ext := &mockExtractor{messages: []pipeline.RawSnapshot{bad, good}}
	fc := &mockForecaster{products: makeProducts()}
	ldr := &mockLoader{}

	p := pipeline.New(ext, fc, ldr, slog.Default(), observability.NewMetricsForTesting())
	runPipeline(t, p, 500*time.Millisecond)

	// The malformed message is committed and skipped; the good one flows through.
	require.Len(t, ldr.loaded, 1)
	assert.Len(t, fc.observed, 1)
	assert.EqualValues(t, 2, commits.Load())
}

func TestPipeline_Run_ForecastErrorSkipsSnapshot(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{messages: []pipeline.RawSnapshot{makeRawSnapshot(t, "site-a", &commits)}}
	fc := &mockForecaster{err: errors.New("uneven spacing")}
	ldr := &mockLoader{}

	p := pipeline.New(ext, fc, ldr, slog.Default(), observability.NewMetricsForTesting())
	runPipeline(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.loaded)
	assert.EqualValues(t, 1, commits.Load())
}

func TestPipeline_Run_LoadRetriesWithBackoff(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{messages: []pipeline.RawSnapshot{
		makeRawSnapshot(t, "site-a", &commits),
		makeRawSnapshot(t, "site-a", &commits),
	}}
	fc := &mockForecaster{products: makeProducts()}
	ldr := &mockLoader{failures: 1}

	p := pipeline.New(ext, fc, ldr, slog.Default(), observability.NewMetricsForTesting())
	runPipeline(t, p, 2*time.Second)

	// First load fails and is retried after backoff with the next message.
	require.Len(t, ldr.loaded, 1)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no messages, will block
	p := pipeline.New(ext, &mockForecaster{}, &mockLoader{}, slog.Default(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
}
