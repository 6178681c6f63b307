package features

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// AlignedRow is one aligned input row, or the reason it could not be aligned.
type AlignedRow struct {
	Values []float64
	Err    error
}

// Aligner maps raw inputs onto a Schema. It holds no mutable state and is safe
// for concurrent use.
type Aligner struct {
	schema   Schema
	position map[string]int
	booleans map[string]struct{}
}

// NewAligner validates schema and builds an Aligner for it.
func NewAligner(schema Schema) (*Aligner, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	a := &Aligner{
		schema:   schema,
		position: make(map[string]int, len(schema.Features)),
		booleans: make(map[string]struct{}, len(schema.Booleans)),
	}
	for i, f := range schema.Features {
		a.position[f] = i
	}
	for _, b := range schema.Booleans {
		a.booleans[b] = struct{}{}
	}
	return a, nil
}

// Schema returns the schema the aligner was built for.
func (a *Aligner) Schema() Schema { return a.schema }

// Align encodes one input row in schema order. Schema columns absent from the
// input stay 0; input fields the schema does not know are dropped. A value
// that cannot be encoded yields a *ValidationError.
func (a *Aligner) Align(in domain.RawInput) ([]float64, error) {
	row := make([]float64, len(a.schema.Features))

	fields := make([]string, 0, len(in))
	for f := range in {
		fields = append(fields, f)
	}
	// Sorted so the first reported error does not depend on map order.
	slices.Sort(fields)

	for _, field := range fields {
		if field == domain.ColumnID {
			continue
		}
		raw := in[field]
		if isMissing(raw) {
			continue
		}

		if _, ok := a.booleans[field]; ok {
			v, err := encodeBool(field, raw)
			if err != nil {
				return nil, err
			}
			if i, ok := a.position[field]; ok {
				row[i] = v
			}
			continue
		}

		if cats, ok := a.schema.Categorical[field]; ok {
			col, err := encodeCategory(field, raw, cats)
			if err != nil {
				return nil, err
			}
			if col == "" {
				continue
			}
			i, ok := a.position[col]
			if !ok {
				return nil, &domain.SchemaError{Column: col, Reason: "category column missing from features"}
			}
			row[i] = 1
			continue
		}

		i, ok := a.position[field]
		if !ok {
			continue
		}
		v, err := encodeNumber(field, raw)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}

	return row, nil
}

// AlignBatch aligns every input independently; one bad row does not affect
// the others.
func (a *Aligner) AlignBatch(inputs []domain.RawInput) []AlignedRow {
	out := make([]AlignedRow, len(inputs))
	for i, in := range inputs {
		values, err := a.Align(in)
		out[i] = AlignedRow{Values: values, Err: err}
	}
	return out
}

func isMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		t = strings.TrimSpace(t)
		return t == "" || strings.EqualFold(t, "nan")
	default:
		return false
	}
}

// encodeBool accepts native booleans and the literal strings "True"/"False".
func encodeBool(field string, v any) (float64, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		switch strings.TrimSpace(t) {
		case "True":
			return 1, nil
		case "False":
			return 0, nil
		}
	}
	return 0, &domain.ValidationError{Field: field, Value: v, Reason: `expected true/false or "True"/"False"`}
}

// encodeCategory returns the one-hot column to set, or "" for the baseline.
func encodeCategory(field string, v any, categories []string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &domain.ValidationError{Field: field, Value: v, Reason: "categorical value must be a string"}
	}
	s = strings.TrimSpace(s)
	idx := slices.Index(categories, s)
	switch {
	case idx < 0:
		return "", &domain.ValidationError{Field: field, Value: s, Reason: "unknown category"}
	case idx == 0:
		return "", nil
	default:
		return DummyColumn(field, s), nil
	}
}

func encodeNumber(field string, v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, &domain.ValidationError{Field: field, Value: v, Reason: "expected a number"}
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &domain.ValidationError{Field: field, Value: v, Reason: "expected a finite number"}
	}
	return f, nil
}
