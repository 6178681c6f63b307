//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pump-status-service/internal/adapter/kafka"
	"github.com/couchcryptid/pump-status-service/internal/config"
	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/observability"
	"github.com/couchcryptid/pump-status-service/internal/pipeline"
)

const (
	testSourceTopic = "test-raw-pump-records"
	testSinkTopic   = "test-pump-status-predictions"
)

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter round-trips one record through the adapters: extract
// from the source topic, score it, and load the prediction to the sink.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	ds := loadSampleRecords(t)
	record, ok := ds.Lookup("69572")
	require.True(t, ok)
	payload, err := json.Marshal(record.FeatureInput())
	require.NoError(t, err)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("69572"), Value: payload}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawMessage
	for len(batch) == 0 {
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("69572"), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	input, err := pipeline.DecodeRecord(raw)
	require.NoError(t, err)

	svc := newScoringService(t, ds, observability.NewUnregisteredMetrics())
	scored, err := svc.PredictPumpStatus(ctx, []domain.RawInput{input})
	require.NoError(t, err)
	require.Len(t, scored.Results, 1)
	require.True(t, scored.Results[0].OK(), scored.Results[0].Error)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.PredictionEvent{{
		RequestID:   scored.RequestID,
		PredictedAt: scored.PredictedAt,
		Result:      scored.Results[0],
	}}))

	msg := readSink(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "69572", msg.Key)
	assert.Equal(t, string(scored.Results[0].PredictedLabel), msg.Headers["status_group"])
	assert.Equal(t, scored.RequestID, msg.Headers["request_id"])
	assert.Equal(t, "2024-03-01T12:00:00Z", msg.Headers["predicted_at"])
	assert.Equal(t, scored.Results[0].ID, msg.Event.Result.ID)
	assert.Len(t, msg.Event.Result.Probabilities, 3)
}

// TestPipelineEndToEnd runs the full pipeline against real Kafka. Every
// decodable record produces one sink message, including rows that fail
// encoding; undecodable messages are skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	ds := loadSampleRecords(t)
	msgs := []kafkago.Message{{Key: []byte("poison"), Value: []byte("not-json{{{")}}
	for _, rec := range ds.Records() {
		payload, err := json.Marshal(rec.FeatureInput())
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(rec.ID), Value: payload})
	}
	msgs = append(msgs, kafkago.Message{Key: []byte("lost"), Value: []byte(`{"region":"Atlantis"}`)})

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewUnregisteredMetrics()
	svc := newScoringService(t, ds, metrics)
	p := pipeline.New(reader, svc, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	want := ds.Len() + 1
	received := make(map[string]sinkMessage, want)
	for len(received) < want {
		msg := readSink(ctx, t, consumer)
		received[msg.Key] = msg
	}

	// Nothing else should arrive: the poison pill was skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further messages on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, rec := range ds.Records() {
		msg, ok := received[rec.ID]
		if !assert.True(t, ok, "missing prediction for %s", rec.ID) {
			continue
		}
		assert.True(t, msg.Event.Result.OK(), "%s: %s", rec.ID, msg.Event.Result.Error)
		assert.True(t, msg.Event.Result.PredictedLabel.Valid(), rec.ID)
		assert.Equal(t, string(msg.Event.Result.PredictedLabel), msg.Headers["status_group"])
	}

	lost, ok := received["lost"]
	require.True(t, ok, "row errors are published")
	assert.Contains(t, lost.Event.Result.Error, "Atlantis")
	assert.Empty(t, lost.Headers["status_group"])
}
