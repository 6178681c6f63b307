package domain

import "fmt"

// SchemaError reports a structural mismatch: an expected column is absent or a
// shape does not match the schema it is checked against.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return "schema error: " + e.Reason
	}
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

// ValidationError reports a value that cannot be normalized into its expected type.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field %q value %v: %s", e.Field, e.Value, e.Reason)
}

// PredictionError wraps a failure of the inference capability itself.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return "prediction failed: " + e.Err.Error()
}

func (e *PredictionError) Unwrap() error { return e.Err }
