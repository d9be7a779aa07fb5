// Package jsonx converts typed values into the untyped maps wire payloads
// are assembled from.
package jsonx

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ToMap round trips val through JSON and returns the resulting object.
// Values that do not encode to a JSON object are rejected.
func ToMap(val any) (map[string]any, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("%T is not a JSON object: %w", val, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%T encodes to null", val)
	}
	return result, nil
}
