package domain

import (
	"context"
	"time"
)

// RawMessage represents an unprocessed message from the source topic. Its
// value is a JSON object holding one pump record's input fields.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// PredictionEvent is a prediction result published to the sink topic.
type PredictionEvent struct {
	RequestID   string           `json:"request_id"`
	PredictedAt time.Time        `json:"predicted_at"`
	Result      PredictionResult `json:"result"`
}
