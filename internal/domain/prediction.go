package domain

import "time"

// Prediction is the classifier's verdict for one pump.
type Prediction struct {
	ID             string                  `json:"pump_id"`
	PredictedLabel StatusGroup             `json:"status_group"`
	Probabilities  map[StatusGroup]float64 `json:"probabilities"`
}

// PredictionResult is one row of a batch: either a prediction or the reason
// the row could not be predicted.
type PredictionResult struct {
	ID             string                  `json:"pump_id"`
	PredictedLabel StatusGroup             `json:"status_group,omitempty"`
	Probabilities  map[StatusGroup]float64 `json:"probabilities,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// OK reports whether the row was predicted.
func (r PredictionResult) OK() bool { return r.Error == "" }

// PredictionBatch is the response to one prediction request.
type PredictionBatch struct {
	RequestID   string             `json:"request_id"`
	PredictedAt time.Time          `json:"predicted_at"`
	Results     []PredictionResult `json:"results"`
}

// Failed returns the number of rows that carry an error.
func (b PredictionBatch) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}
