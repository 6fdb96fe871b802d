// Package logging provides structured JSON request logging shared by
// every component, plus request ID generation and propagation via
// context.Context.
package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// WithRequestID attaches requestID to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID stashed by WithRequestID,
// or "" if none was ever set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// NewRequestID generates a fresh correlation ID.
func NewRequestID() string {
	return uuid.NewString()
}

// Event logs message with the request ID from ctx (if any) plus fields,
// as a single structured JSON line.
func Event(ctx context.Context, message string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message":   message,
	}
	if id := RequestIDFromContext(ctx); id != "" {
		entry["requestId"] = id
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] logging: marshal failed: %v", err)
		return
	}
	log.Println(string(data))
}

// Error logs message as a structured error event, carrying err's text.
func Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	fields["error"] = err.Error()
	fields["level"] = "error"
	Event(ctx, message, fields)
}
