package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/observability"
)

// Row error kinds, used as the metrics label.
const (
	kindValidation = "validation"
	kindSchema     = "schema"
	kindNotFound   = "not_found"
)

// Service predicts pump status for raw inputs and for pumps in the record store.
type Service struct {
	aligner   *features.Aligner
	predictor *Predictor
	dataset   domain.Dataset
	index     map[string]domain.PumpRecord
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService wires the aligner and predictor to the record store.
func NewService(aligner *features.Aligner, predictor *Predictor, ds domain.Dataset, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		aligner:   aligner,
		predictor: predictor,
		dataset:   ds,
		index:     ds.Index(),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// pendingRow is one input on its way to the classifier.
type pendingRow struct {
	id    string
	input domain.RawInput
	err   error
	kind  string
}

// PredictPumpStatus predicts every input. Each row keeps its own outcome: a
// row whose id or features cannot be read carries an error while the rest
// are still predicted. A classifier failure fails the whole batch with a
// *domain.PredictionError.
func (s *Service) PredictPumpStatus(ctx context.Context, inputs []domain.RawInput) (domain.PredictionBatch, error) {
	rows := make([]pendingRow, len(inputs))
	for i, in := range inputs {
		id, err := recordID(in, i)
		rows[i] = pendingRow{id: id, input: in, err: err}
		if err != nil {
			rows[i].kind = kindValidation
		}
	}
	return s.predict(ctx, rows)
}

// PredictByIDs predicts the pumps with the given ids using their stored
// feature columns. Unknown ids are reported per row.
func (s *Service) PredictByIDs(ctx context.Context, ids []string) (domain.PredictionBatch, error) {
	rows := make([]pendingRow, len(ids))
	for i, id := range ids {
		rec, ok := s.index[id]
		if !ok {
			rows[i] = pendingRow{id: id, err: fmt.Errorf("unknown pump id %q", id), kind: kindNotFound}
			continue
		}
		rows[i] = pendingRow{id: id, input: rec.FeatureInput()}
	}
	return s.predict(ctx, rows)
}

// CheckReadiness reports whether predictions can be served.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.predictor.CheckReadiness(ctx); err != nil {
		return fmt.Errorf("classifier not ready: %w", err)
	}
	return nil
}

// Dataset returns the record store the service looks ids up in.
func (s *Service) Dataset() domain.Dataset { return s.dataset }

func (s *Service) predict(ctx context.Context, rows []pendingRow) (domain.PredictionBatch, error) {
	start := s.clock.Now()
	batch := domain.PredictionBatch{
		RequestID:   uuid.NewString(),
		PredictedAt: start.UTC(),
		Results:     make([]domain.PredictionResult, len(rows)),
	}

	matrix := make([][]float64, 0, len(rows))
	ids := make([]string, 0, len(rows))
	positions := make([]int, 0, len(rows))

	for i, row := range rows {
		if row.err == nil {
			values, err := s.aligner.Align(row.input)
			if err != nil {
				row.err = err
				row.kind = alignErrorKind(err)
			} else {
				matrix = append(matrix, values)
				ids = append(ids, row.id)
				positions = append(positions, i)
				continue
			}
		}
		batch.Results[i] = domain.PredictionResult{ID: row.id, Error: row.err.Error()}
		s.metrics.RowErrors.WithLabelValues(row.kind).Inc()
	}

	preds, err := s.predictor.Predict(ctx, matrix, ids)
	if err != nil {
		s.metrics.PredictionFailures.Inc()
		s.logger.Error("prediction failed", "error", err, "request_id", batch.RequestID, "rows", len(matrix))
		return domain.PredictionBatch{}, err
	}

	for j, p := range preds {
		batch.Results[positions[j]] = domain.PredictionResult{
			ID:             p.ID,
			PredictedLabel: p.PredictedLabel,
			Probabilities:  p.Probabilities,
		}
		s.metrics.Predictions.WithLabelValues(string(p.PredictedLabel)).Inc()
	}

	s.metrics.PredictDuration.Observe(s.clock.Since(start).Seconds())
	s.logger.Debug("prediction batch complete",
		"request_id", batch.RequestID,
		"rows", len(rows),
		"failed", batch.Failed(),
	)
	return batch, nil
}

// recordID reads the row identifier. Rows without one get "row_<index>".
// Numeric identifiers must be integral.
func recordID(in domain.RawInput, index int) (string, error) {
	synthetic := "row_" + strconv.Itoa(index)

	raw, ok := in[domain.ColumnID]
	if !ok || raw == nil {
		return synthetic, nil
	}

	invalid := &domain.ValidationError{Field: domain.ColumnID, Value: raw, Reason: "identifier must be a string or an integer"}
	switch v := raw.(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
		return synthetic, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsInf(v, 0) || v != math.Trunc(v) {
			return synthetic, invalid
		}
		return strconv.FormatFloat(v, 'f', 0, 64), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		return synthetic, invalid
	default:
		return synthetic, invalid
	}
}

func alignErrorKind(err error) string {
	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) {
		return kindSchema
	}
	return kindValidation
}
