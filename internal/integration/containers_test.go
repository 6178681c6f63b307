//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/pump-status-service/internal/adapter/model"
	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/inference"
	"github.com/couchcryptid/pump-status-service/internal/observability"
	"github.com/couchcryptid/pump-status-service/internal/store"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("pump-status-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "find controller")

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}), "create topic %s", topic)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadSampleRecords returns the sample dataset shared with the store tests.
func loadSampleRecords(t *testing.T) domain.Dataset {
	t.Helper()
	ds, err := store.LoadFile("../store/testdata/pumps_sample.csv")
	require.NoError(t, err)
	return ds
}

// newScoringService wires the shipped model into an inference service.
func newScoringService(t *testing.T, ds domain.Dataset, metrics *observability.Metrics) *inference.Service {
	t.Helper()

	artifact, err := model.LoadArtifact("../../models/pump_classifier.json")
	require.NoError(t, err)
	classifier, err := model.NewSoftmax(artifact)
	require.NoError(t, err)
	aligner, err := features.NewAligner(artifact.Schema)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	return inference.NewService(aligner, inference.NewPredictor(classifier), ds, clock, discardLogger(), metrics)
}

// sinkMessage holds a deserialized message read from the sink topic.
type sinkMessage struct {
	Event   domain.PredictionEvent
	Key     string
	Headers map[string]string
}

// readSink reads a single message from the sink consumer and deserializes it.
func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.PredictionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")

	return sinkMessage{Event: event, Key: string(msg.Key), Headers: headers}
}
