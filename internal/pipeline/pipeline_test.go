package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/observability"
	"github.com/couchcryptid/pump-status-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockScorer struct {
	err    error
	mu     sync.Mutex
	inputs []domain.RawInput
}

func (m *mockScorer) PredictPumpStatus(_ context.Context, inputs []domain.RawInput) (domain.PredictionBatch, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, inputs...)
	m.mu.Unlock()
	if m.err != nil {
		return domain.PredictionBatch{}, m.err
	}

	batch := domain.PredictionBatch{RequestID: "req-1", PredictedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, in := range inputs {
		id, _ := in["id"].(string)
		if _, bad := in["broken"]; bad {
			batch.Results = append(batch.Results, domain.PredictionResult{ID: id, Error: "unknown category"})
			continue
		}
		batch.Results = append(batch.Results, domain.PredictionResult{ID: id, PredictedLabel: domain.StatusFunctional})
	}
	return batch, nil
}

type mockLoader struct {
	err    error
	mu     sync.Mutex
	loaded []domain.PredictionEvent
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.PredictionEvent) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, events...)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewUnregisteredMetrics()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int32
	a := makeRawMessage(t, "69572", `{"id":"69572","region":"Iringa"}`, &commits)
	b := makeRawMessage(t, "8776", `{"id":"8776","broken":true}`, &commits)

	ext := &mockExtractor{batches: [][]domain.RawMessage{{a, b}}}
	scr := &mockScorer{}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, scr, ldr, testLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	require.Len(t, ldr.loaded, 2)
	assert.Equal(t, "69572", ldr.loaded[0].Result.ID)
	assert.Equal(t, domain.StatusFunctional, ldr.loaded[0].Result.PredictedLabel)
	assert.Equal(t, "req-1", ldr.loaded[0].RequestID)
	assert.Equal(t, "unknown category", ldr.loaded[1].Result.Error, "row errors are published too")

	assert.Equal(t, int32(2), commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockScorer{}, ldr, testLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_DecodeErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int32
	bad := makeRawMessage(t, "x", `not json`, &commits)

	ext := &mockExtractor{batches: [][]domain.RawMessage{{bad}}}
	scr := &mockScorer{}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, scr, ldr, testLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Empty(t, scr.inputs)
	assert.Equal(t, int32(1), commits.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DecodeErrors), 0)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ScoreErrorPublishesRowErrors(t *testing.T) {
	var commits atomic.Int32
	first := makeRawMessage(t, "69572", `{"id":"69572"}`, &commits)
	second := makeRawMessage(t, "8776", `{"region":"Iringa"}`, &commits)

	ext := &mockExtractor{batches: [][]domain.RawMessage{{first}, {second}}}
	scr := &mockScorer{err: &domain.PredictionError{Err: errors.New("model unavailable")}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, scr, ldr, testLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	// Both batches are scored once each and neither stalls the source.
	assert.Len(t, scr.inputs, 2)
	require.Len(t, ldr.loaded, 2)
	assert.Equal(t, "69572", ldr.loaded[0].Result.ID)
	assert.Equal(t, "8776", ldr.loaded[1].Result.ID)
	for _, ev := range ldr.loaded {
		assert.False(t, ev.Result.OK())
		assert.Contains(t, ev.Result.Error, "model unavailable")
		assert.NotEmpty(t, ev.RequestID)
	}
	assert.Equal(t, int32(2), commits.Load())
}

func TestPipeline_Run_LoadErrorDoesNotCommit(t *testing.T) {
	var commits atomic.Int32
	msg := makeRawMessage(t, "69572", `{"id":"69572"}`, &commits)

	ext := &mockExtractor{batches: [][]domain.RawMessage{{msg}}}
	ldr := &mockLoader{err: errors.New("broker unavailable")}

	p := pipeline.New(ext, &mockScorer{}, ldr, testLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

type flakyLoader struct {
	mockLoader
	failures atomic.Int32
	attempts atomic.Int32
}

func (f *flakyLoader) LoadBatch(ctx context.Context, events []domain.PredictionEvent) error {
	f.attempts.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("broker unavailable")
	}
	return f.mockLoader.LoadBatch(ctx, events)
}

func TestPipeline_Run_RetriesSameEventsAfterLoadError(t *testing.T) {
	var commits atomic.Int32
	msg := makeRawMessage(t, "69572", `{"id":"69572"}`, &commits)

	ext := &mockExtractor{batches: [][]domain.RawMessage{{msg}}}
	scr := &mockScorer{}
	ldr := &flakyLoader{}
	ldr.failures.Store(1)

	p := pipeline.New(ext, scr, ldr, testLogger(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, int32(2), ldr.attempts.Load())
	assert.Len(t, scr.inputs, 1, "records are scored once across load retries")
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, "69572", ldr.loaded[0].Result.ID)
	assert.Equal(t, int32(1), commits.Load())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		want    domain.RawInput
		wantErr bool
	}{
		{
			name:  "object with id",
			key:   "ignored",
			value: `{"id":"A","imputed_permit":"True"}`,
			want:  domain.RawInput{"id": "A", "imputed_permit": "True"},
		},
		{
			name:  "numbers stay exact",
			value: `{"id":69572,"altitud":1390.5}`,
			want:  domain.RawInput{"id": json.Number("69572"), "altitud": json.Number("1390.5")},
		},
		{
			name:  "key fills missing id",
			key:   "8776",
			value: `{"region":"Mara"}`,
			want:  domain.RawInput{"id": "8776", "region": "Mara"},
		},
		{name: "not json", value: `pump`, wantErr: true},
		{name: "array", value: `[1,2]`, wantErr: true},
		{name: "null", value: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.DecodeRecord(domain.RawMessage{Key: []byte(tt.key), Value: []byte(tt.value)})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// --- helpers ---

func makeRawMessage(t *testing.T, key, value string, commits *atomic.Int32) domain.RawMessage {
	t.Helper()
	return domain.RawMessage{
		Key:   []byte(key),
		Value: []byte(value),
		Topic: "raw-pump-records",
		Commit: func(_ context.Context) error {
			commits.Add(1)
			return nil
		},
	}
}
