// Package model provides the classifier backends behind inference.Predictor:
// a local multinomial logistic regression loaded from a JSON artifact, a
// client for a remote model server, and an LRU cache decorator for either.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/features"
)

// Artifact is the on-disk form of a trained softmax classifier together with
// the feature schema it was trained on.
type Artifact struct {
	Schema  features.Schema      `json:"schema"`
	Classes []domain.StatusGroup `json:"classes"`
	// Center and Scale standardize each column before the linear layer. Both
	// are optional; when set they must match the schema width.
	Center       []float64   `json:"center,omitempty"`
	Scale        []float64   `json:"scale,omitempty"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// DecodeArtifact reads an artifact from JSON and validates its schema.
func DecodeArtifact(r io.Reader) (Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Artifact{}, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := a.Schema.Validate(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// LoadArtifact reads the artifact at path.
func LoadArtifact(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("open model artifact: %w", err)
	}
	defer f.Close()
	return DecodeArtifact(f)
}

// Softmax is a multinomial logistic regression classifier. It is immutable
// after construction and safe for concurrent use.
type Softmax struct {
	width     int
	center    []float64
	scale     []float64
	coef      [][]float64 // indexed by canonical label order
	intercept []float64
}

// NewSoftmax builds a classifier from an artifact. Classes may appear in any
// order in the artifact; output columns always follow domain.StatusLabels.
func NewSoftmax(a Artifact) (*Softmax, error) {
	width := a.Schema.Width()
	if width == 0 {
		return nil, errors.New("model artifact: empty schema")
	}
	if len(a.Classes) != len(domain.StatusLabels) {
		return nil, fmt.Errorf("model artifact: %d classes, want %d", len(a.Classes), len(domain.StatusLabels))
	}
	if len(a.Coefficients) != len(a.Classes) || len(a.Intercepts) != len(a.Classes) {
		return nil, errors.New("model artifact: coefficients and intercepts must have one entry per class")
	}
	if a.Center != nil && len(a.Center) != width {
		return nil, fmt.Errorf("model artifact: center has %d values, schema has %d", len(a.Center), width)
	}
	if a.Scale != nil && len(a.Scale) != width {
		return nil, fmt.Errorf("model artifact: scale has %d values, schema has %d", len(a.Scale), width)
	}
	for i, s := range a.Scale {
		if s == 0 {
			return nil, fmt.Errorf("model artifact: zero scale for %s", a.Schema.Features[i])
		}
	}

	s := &Softmax{
		width:     width,
		center:    a.Center,
		scale:     a.Scale,
		coef:      make([][]float64, len(domain.StatusLabels)),
		intercept: make([]float64, len(domain.StatusLabels)),
	}
	for k, label := range domain.StatusLabels {
		src := slices.Index(a.Classes, label)
		if src < 0 {
			return nil, fmt.Errorf("model artifact: missing class %q", label)
		}
		if len(a.Coefficients[src]) != width {
			return nil, fmt.Errorf("model artifact: class %q has %d coefficients, schema has %d", label, len(a.Coefficients[src]), width)
		}
		s.coef[k] = a.Coefficients[src]
		s.intercept[k] = a.Intercepts[src]
	}
	return s, nil
}

// PredictProbabilities implements inference.Classifier.
func (s *Softmax) PredictProbabilities(ctx context.Context, matrix [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float64, len(matrix))
	logits := make([]float64, len(s.coef))
	for i, row := range matrix {
		if len(row) != s.width {
			return nil, fmt.Errorf("row %d has %d columns, model expects %d", i, len(row), s.width)
		}
		for k, w := range s.coef {
			z := s.intercept[k]
			for j, x := range row {
				z += w[j] * s.standardize(j, x)
			}
			logits[k] = z
		}
		out[i] = softmax(logits)
	}
	return out, nil
}

func (s *Softmax) standardize(j int, x float64) float64 {
	if s.center != nil {
		x -= s.center[j]
	}
	if s.scale != nil {
		x /= s.scale[j]
	}
	return x
}

func softmax(logits []float64) []float64 {
	peak := slices.Max(logits)
	out := make([]float64, len(logits))
	var sum float64
	for k, z := range logits {
		out[k] = math.Exp(z - peak)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}
