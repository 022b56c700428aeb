package kafka

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/radar-nowcast/internal/config"
	"github.com/couchcryptid/radar-nowcast/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes radar snapshot messages from the source topic.
// It implements pipeline.Extractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaSourceTopic,
		GroupID: cfg.KafkaGroupID,
	})
	return &Reader{reader: r, logger: logger}
}

// Extract blocks until the next snapshot message arrives or the context is
// cancelled. Offsets are committed explicitly through the returned Commit
// function so that a crash between fetch and load replays the message.
func (r *Reader) Extract(ctx context.Context) (pipeline.RawSnapshot, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return pipeline.RawSnapshot{}, err
	}
	return mapMessage(msg, r.reader), nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a Kafka message into the pipeline's transport envelope.
func mapMessage(msg kafkago.Message, reader *kafkago.Reader) pipeline.RawSnapshot {
	return pipeline.RawSnapshot{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return reader.CommitMessages(ctx, msg)
		},
	}
}
