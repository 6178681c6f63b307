package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/pump-status-service/internal/config"
	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// Writer produces prediction events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes prediction events in a single WriteMessages call.
// Events are keyed by pump id so all predictions for a pump share a partition.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.PredictionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PredictionEvent into a Kafka message.
func serializeToMessage(event domain.PredictionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Result.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status_group", Value: []byte(event.Result.PredictedLabel)},
			{Key: "request_id", Value: []byte(event.RequestID)},
			{Key: "predicted_at", Value: []byte(event.PredictedAt.Format(time.RFC3339))},
		},
	}, nil
}
