package consumer

import (
	"encoding/json"
	"fmt"
)

// Decoder turns a raw record payload into an application value. A decode
// error marks the record malformed; malformed records are logged and
// skipped, never retried.
type Decoder interface {
	Decode(data []byte) (map[string]any, error)
}

// JSONDecoder accepts payloads that are JSON objects and rejects everything
// else.
type JSONDecoder struct{}

func (JSONDecoder) Decode(data []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("decode record: payload is not an object")
	}
	return v, nil
}
