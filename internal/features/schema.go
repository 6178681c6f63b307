// Package features turns raw prediction inputs into the positional numeric
// matrix a trained classifier expects.
//
// Only one categorical encoding is supported: one-hot with the first category
// of every field dropped ("onehot-drop-first"). A classifier trained under
// per-column category codes produces wrong predictions when fed one-hot input
// without raising any error, so the encoding identifier travels with the
// schema artifact and is checked when the schema is loaded.
package features

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// Encoding identifies how categorical fields were expanded at training time.
type Encoding string

// EncodingOneHotDropFirst expands a categorical field into one 0/1 column per
// category except the first, named "<field>_<category>".
const EncodingOneHotDropFirst Encoding = "onehot-drop-first"

// Schema is the feature contract shipped alongside a trained classifier.
type Schema struct {
	Version  string   `json:"version"`
	Encoding Encoding `json:"encoding"`
	// Features is the ordered column list the classifier reads positionally.
	Features []string `json:"features"`
	// Booleans are input fields normalized to 1/0.
	Booleans []string `json:"booleans,omitempty"`
	// Categorical maps an input field to its categories. The first category is
	// the dropped baseline and has no column.
	Categorical map[string][]string `json:"categorical,omitempty"`
}

// Width returns the number of columns the classifier expects.
func (s Schema) Width() int { return len(s.Features) }

// Validate checks the schema for structural errors.
func (s Schema) Validate() error {
	if s.Encoding != EncodingOneHotDropFirst {
		return &domain.SchemaError{Reason: fmt.Sprintf("unsupported encoding %q, want %q", s.Encoding, EncodingOneHotDropFirst)}
	}
	if len(s.Features) == 0 {
		return &domain.SchemaError{Reason: "schema has no features"}
	}

	seen := make(map[string]struct{}, len(s.Features))
	for _, f := range s.Features {
		if f == "" {
			return &domain.SchemaError{Reason: "empty feature name"}
		}
		if f == domain.ColumnID {
			return &domain.SchemaError{Column: f, Reason: "identifier column is removed before alignment and cannot be a feature"}
		}
		if _, dup := seen[f]; dup {
			return &domain.SchemaError{Column: f, Reason: "duplicate feature"}
		}
		seen[f] = struct{}{}
	}

	for field, cats := range s.Categorical {
		if slices.Contains(s.Booleans, field) {
			return &domain.SchemaError{Column: field, Reason: "field declared both boolean and categorical"}
		}
		if len(cats) == 0 {
			return &domain.SchemaError{Column: field, Reason: "categorical field has no categories"}
		}
		for _, c := range cats[1:] {
			col := DummyColumn(field, c)
			if _, ok := seen[col]; !ok {
				return &domain.SchemaError{Column: col, Reason: "category column missing from features"}
			}
		}
	}
	return nil
}

// DummyColumn names the one-hot column for a category.
func DummyColumn(field, category string) string {
	return field + "_" + category
}

// DecodeSchema reads and validates a schema from JSON.
func DecodeSchema(r io.Reader) (Schema, error) {
	var s Schema
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("decode feature schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// LoadSchema reads a schema artifact from disk.
func LoadSchema(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schema{}, fmt.Errorf("open feature schema: %w", err)
	}
	defer f.Close()
	return DecodeSchema(f)
}
