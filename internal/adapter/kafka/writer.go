package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/radar-nowcast/internal/config"
	"github.com/couchcryptid/radar-nowcast/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes nowcast products to the sink topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadProducts serializes and publishes a run's products in a single
// WriteMessages call so one nowcast run lands atomically or not at all.
func (w *Writer) LoadProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(products))
	for i := range products {
		msg, err := serializeToMessage(products[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Product into a Kafka message. The key is
// site plus reference time so all lead times of one run share a partition
// and arrive in order.
func serializeToMessage(product domain.Product) (kafkago.Message, error) {
	data, err := domain.EncodeProduct(product)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize nowcast product: %w", err)
	}
	key := product.Site + "|" + product.ReferenceTime.Format(time.RFC3339)
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "site", Value: []byte(product.Site)},
			{Key: "lead_time_minutes", Value: []byte(strconv.Itoa(int(product.LeadTime / time.Minute)))},
			{Key: "produced_at", Value: []byte(product.ProducedAt.Format(time.RFC3339))},
		},
	}, nil
}
