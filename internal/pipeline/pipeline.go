package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Scorer predicts pump status for a batch of raw inputs.
type Scorer interface {
	PredictPumpStatus(ctx context.Context, inputs []domain.RawInput) (domain.PredictionBatch, error)
}

// BatchLoader writes prediction events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.PredictionEvent) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract-score-load loop.
type Pipeline struct {
	extractor BatchExtractor
	scorer    Scorer
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, s Scorer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		scorer:    s,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has published at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("scoring pipeline has not published any predictions yet")
	}
	return nil
}

// Run executes the scoring loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("scoring pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("scoring pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-score-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	loaded, ok := p.scoreAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// scoreAndLoad decodes the batch, predicts every decoded record, publishes one
// event per record, and commits offsets. Undecodable messages are committed
// and skipped. A scoring failure is not retried: every record in the batch is
// published with the failure as its row error. A load failure leaves the batch
// uncommitted and the same events are retried with backoff. Returns the number
// of published events and false if the pipeline should stop.
func (p *Pipeline) scoreAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration) (int, bool) {
	inputs := make([]domain.RawInput, 0, len(rawBatch))
	decoded := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		in, err := DecodeRecord(raw)
		if err != nil {
			p.logger.Warn("decode failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.DecodeErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		inputs = append(inputs, in)
		decoded = append(decoded, raw)
	}

	if len(inputs) == 0 {
		return 0, true
	}

	events, ok := p.score(ctx, inputs)
	if !ok {
		return 0, false
	}

	for {
		if err := p.loader.LoadBatch(ctx, events); err != nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(events))
			if !p.backoffOrStop(ctx, backoff) {
				return 0, false
			}
			continue
		}
		*backoff = initialBackoff
		p.metrics.MessagesProduced.Add(float64(len(events)))

		for _, raw := range decoded {
			p.commitOffset(ctx, raw)
		}
		return len(events), true
	}
}

// score predicts inputs and builds one event per input. Returns false only
// when the context ended during scoring.
func (p *Pipeline) score(ctx context.Context, inputs []domain.RawInput) ([]domain.PredictionEvent, bool) {
	batch, err := p.scorer.PredictPumpStatus(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		p.logger.Error("score batch failed, publishing row errors", "error", err, "batch_size", len(inputs))
		batch = failedBatch(inputs, err)
	}

	events := make([]domain.PredictionEvent, len(batch.Results))
	for i, r := range batch.Results {
		events[i] = domain.PredictionEvent{
			RequestID:   batch.RequestID,
			PredictedAt: batch.PredictedAt,
			Result:      r,
		}
	}

	if failed := batch.Failed(); failed > 0 {
		p.logger.Warn("records could not be scored", "failed", failed, "request_id", batch.RequestID)
	}
	return events, true
}

// failedBatch reports err as the row error of every input.
func failedBatch(inputs []domain.RawInput, err error) domain.PredictionBatch {
	batch := domain.PredictionBatch{
		RequestID:   uuid.NewString(),
		PredictedAt: time.Now().UTC(),
		Results:     make([]domain.PredictionResult, len(inputs)),
	}
	for i, in := range inputs {
		id := "row_" + strconv.Itoa(i)
		if v, ok := in[domain.ColumnID]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		batch.Results[i] = domain.PredictionResult{ID: id, Error: err.Error()}
	}
	return batch
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
