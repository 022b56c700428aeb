//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/radar-nowcast/internal/adapter/kafka"
	"github.com/couchcryptid/radar-nowcast/internal/config"
	"github.com/couchcryptid/radar-nowcast/internal/domain"
	"github.com/couchcryptid/radar-nowcast/internal/observability"
	"github.com/couchcryptid/radar-nowcast/internal/pipeline"
)

const (
	testSourceTopic = "test-radar-snapshots"
	testSinkTopic   = "test-radar-nowcasts"
)

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		BoxSize:             8,
		SmoothingIterations: 50,
		SmoothingWeight:     1.0,
		MinBoxSamples:       4,
		MaxLeadTime:         10 * time.Minute,
		LeadTimeInterval:    5 * time.Minute,
		Extrapolate:         true,
		KafkaBrokers:        []string{broker},
		KafkaSourceTopic:    testSourceTopic,
		KafkaSinkTopic:      testSinkTopic,
		KafkaGroupID:        group,
	}
}

// sinkMessage holds a deserialized product read from the sink topic.
type sinkMessage struct {
	Product domain.Product
	Key     string
	Headers map[string]string
}

// readProduct reads a single message from the sink consumer and deserializes it.
func readProduct(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	product, err := domain.ParseProduct(msg.Value)
	require.NoError(t, err, "parse sink message")

	return sinkMessage{
		Product: product,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor)
// and kafka.Writer (Loader) correctly round-trip messages through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-reader-%d", time.Now().UnixNano()))

	// Publish a snapshot to the source topic.
	observed := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	snap := driftSnapshot("KTLX", observed, 0)
	payload, err := domain.EncodeSnapshot(snap)
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("KTLX"),
		Value: payload,
		Time:  observed,
	}))

	// Extract via kafka.Reader.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	raw, err := reader.Extract(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("KTLX"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")

	// Commit the offset.
	require.NoError(t, raw.Commit(ctx))

	// Load a product via kafka.Writer.
	product := domain.Product{
		Site:          "KTLX",
		ReferenceTime: observed,
		LeadTime:      5 * time.Minute,
		ValidTime:     observed.Add(5 * time.Minute),
		ProducedAt:    observed.Add(time.Minute),
		GridSpacing:   1000,
		Field:         snap.Field,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.LoadProducts(ctx, []domain.Product{product}))

	// Read from the sink topic and verify key, headers, and value.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	sm := readProduct(ctx, t, consumer)
	assert.Equal(t, "KTLX|"+observed.Format(time.RFC3339), sm.Key)
	assert.Equal(t, "KTLX", sm.Headers["site"])
	assert.Equal(t, "5", sm.Headers["lead_time_minutes"])
	_, err = time.Parse(time.RFC3339, sm.Headers["produced_at"])
	assert.NoError(t, err, "produced_at should be valid RFC3339")

	assert.Equal(t, "KTLX", sm.Product.Site)
	assert.Equal(t, 5*time.Minute, sm.Product.LeadTime)
	assert.True(t, sm.Product.ValidTime.Equal(observed.Add(5*time.Minute)))
}

// TestPipelineEndToEnd wires the full pipeline (Reader, WindowForecaster,
// Writer) against real Kafka: three consecutive snapshots of a drifting
// reflectivity pattern go in, and nowcast products come out once the window
// has warmed up.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()))

	// Publish three snapshots, the pattern shifting one column per interval.
	base := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, 3)
	for i := 0; i < 3; i++ {
		observed := base.Add(time.Duration(i) * cfg.LeadTimeInterval)
		payload, err := domain.EncodeSnapshot(driftSnapshot("KTLX", observed, float64(i)))
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte("KTLX"),
			Value: payload,
			Time:  observed,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	// Wire up the pipeline.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	forecaster := pipeline.NewForecaster(cfg, discardLogger(), metrics)
	p := pipeline.New(reader, forecaster, writer, discardLogger(), metrics)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	// The first snapshot only warms up the window; the second and third each
	// trigger a forecast with two lead times.
	const wantProducts = 4

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make([]sinkMessage, 0, wantProducts)
	for len(received) < wantProducts {
		received = append(received, readProduct(ctx, t, consumer))
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	leadCounts := map[time.Duration]int{}
	for _, sm := range received {
		leadCounts[sm.Product.LeadTime]++

		assert.Equal(t, "KTLX", sm.Product.Site)
		assert.Equal(t, "KTLX", sm.Headers["site"])
		assert.True(t, sm.Product.ValidTime.Equal(sm.Product.ReferenceTime.Add(sm.Product.LeadTime)),
			"valid_time must be reference_time + lead_time")
		assert.False(t, sm.Product.ProducedAt.IsZero(), "missing produced_at")
		require.NoError(t, sm.Product.Field.CheckShape())
	}
	assert.Equal(t, 2, leadCounts[5*time.Minute], "5 minute products")
	assert.Equal(t, 2, leadCounts[10*time.Minute], "10 minute products")
}

// TestPipelinePoisonPill verifies that a malformed snapshot is skipped and the
// pipeline continues processing valid messages.
func TestPipelinePoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-poison-%d", time.Now().UnixNano()))

	base := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	// Publish: invalid JSON, then two valid snapshots that together produce a
	// forecast.
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	first, err := domain.EncodeSnapshot(driftSnapshot("KTLX", base, 0))
	require.NoError(t, err)
	second, err := domain.EncodeSnapshot(driftSnapshot("KTLX", base.Add(cfg.LeadTimeInterval), 1))
	require.NoError(t, err)

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: base},
		kafkago.Message{Key: []byte("KTLX"), Value: first, Time: base},
		kafkago.Message{Key: []byte("KTLX"), Value: second, Time: base},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	forecaster := pipeline.NewForecaster(cfg, discardLogger(), metrics)
	p := pipeline.New(reader, forecaster, writer, discardLogger(), metrics)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	// Products still arrive despite the poison pill leading the topic.
	sm := readProduct(ctx, t, consumer)
	assert.Equal(t, "KTLX", sm.Product.Site)
	assert.Equal(t, 5*time.Minute, sm.Product.LeadTime)

	pipelineCancel()
	require.NoError(t, <-errCh)
}
