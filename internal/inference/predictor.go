// Package inference maps aligned feature rows to pump status predictions.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// probabilityTolerance bounds how far a probability row may sum from 1.
const probabilityTolerance = 1e-3

// Classifier is the trained model. Given an n×k matrix in schema column order
// it returns an n×3 matrix of class probabilities whose columns follow
// domain.StatusLabels.
//
// Implementations must be safe for concurrent use: the same classifier serves
// HTTP handlers and the scoring pipeline at once.
type Classifier interface {
	PredictProbabilities(ctx context.Context, matrix [][]float64) ([][]float64, error)
}

// HealthChecker is implemented by classifiers backed by a remote dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Predictor turns classifier output into labelled predictions.
type Predictor struct {
	classifier Classifier
}

// NewPredictor wraps a classifier.
func NewPredictor(c Classifier) *Predictor {
	return &Predictor{classifier: c}
}

// Predict runs the classifier over matrix and labels each row with the
// matching id. Any failure of the classifier, or output that is not a valid
// probability matrix, is returned as a *domain.PredictionError.
func (p *Predictor) Predict(ctx context.Context, matrix [][]float64, ids []string) ([]domain.Prediction, error) {
	if len(ids) != len(matrix) {
		return nil, &domain.PredictionError{Err: fmt.Errorf("%d ids for %d rows", len(ids), len(matrix))}
	}
	if len(matrix) == 0 {
		return []domain.Prediction{}, nil
	}

	probs, err := p.classifier.PredictProbabilities(ctx, matrix)
	if err != nil {
		return nil, &domain.PredictionError{Err: fmt.Errorf("classifier: %w", err)}
	}
	if len(probs) != len(matrix) {
		return nil, &domain.PredictionError{Err: fmt.Errorf("classifier returned %d rows for %d inputs", len(probs), len(matrix))}
	}

	out := make([]domain.Prediction, len(probs))
	for i, row := range probs {
		if err := CheckProbabilities(row); err != nil {
			return nil, &domain.PredictionError{Err: fmt.Errorf("row %d: %w", i, err)}
		}
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}

		pm := make(map[domain.StatusGroup]float64, len(domain.StatusLabels))
		for j, label := range domain.StatusLabels {
			pm[label] = row[j]
		}
		out[i] = domain.Prediction{
			ID:             ids[i],
			PredictedLabel: domain.StatusLabels[best],
			Probabilities:  pm,
		}
	}
	return out, nil
}

// CheckReadiness reports whether the classifier's backing dependency is reachable.
func (p *Predictor) CheckReadiness(ctx context.Context) error {
	if hc, ok := p.classifier.(HealthChecker); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

// CheckProbabilities reports whether row is a valid probability row: one
// finite, non-negative value per status label, summing to 1 within tolerance.
func CheckProbabilities(row []float64) error {
	if len(row) != len(domain.StatusLabels) {
		return fmt.Errorf("got %d probabilities, want %d", len(row), len(domain.StatusLabels))
	}
	var sum float64
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite probability")
		}
		if v < 0 {
			return fmt.Errorf("negative probability %g", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("probabilities sum to %g", sum)
	}
	return nil
}
