// Package utils provides serialization and pattern-matching helpers shared
// by the cache, upstream client, and invalidation engine.
package utils

import (
	"encoding/json"
	"fmt"
)

// Marshal serializes a cache payload to bytes. JSON is the only encoding;
// it is the portable, debuggable default and the fabric has no payload
// shape large enough to justify a binary codec.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes bytes into v. Returns a wrapped error on malformed
// payloads so callers can treat it as a cache miss rather than a hard
// failure.
func Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("unmarshal: empty payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
