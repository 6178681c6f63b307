package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// DecodeRecord parses a source message into a raw prediction input. The value
// must be a JSON object; numbers are kept as json.Number so integral ids stay
// exact. When the object has no id, the message key is used.
func DecodeRecord(raw domain.RawMessage) (domain.RawInput, error) {
	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()

	var in domain.RawInput
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode pump record: %w", err)
	}
	if in == nil {
		return nil, errors.New("decode pump record: null value")
	}

	if _, ok := in[domain.ColumnID]; !ok && len(raw.Key) > 0 {
		in[domain.ColumnID] = string(raw.Key)
	}
	return in, nil
}
