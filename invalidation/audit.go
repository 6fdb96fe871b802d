package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// AuditEntry is one row of the invalidation audit trail.
type AuditEntry struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"requestId"`
	EventType       string    `json:"eventType"`
	KeysInvalidated []string  `json:"keysInvalidated"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// AuditLog is the Postgres-backed durable record of every invalidation
// this engine has attempted, successful or not.
type AuditLog struct {
	db *sqldb.Database
}

// NewAuditLog wires an AuditLog over db, creating its schema if absent.
func NewAuditLog(db *sqldb.Database) (*AuditLog, error) {
	al := &AuditLog{db: db}
	if err := al.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("invalidation audit schema: %w", err)
	}
	return al, nil
}

func (al *AuditLog) ensureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS invalidation_audit (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			keys_invalidated JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_timestamp
		ON invalidation_audit(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_request_id
		ON invalidation_audit(request_id);
	`
	_, err := al.db.Exec(ctx, query)
	return err
}

// Record appends one audit entry. Idempotence is not enforced here: a
// duplicate event redelivered at-least-once is audited twice, but the
// underlying cache mutation it drives is itself idempotent.
func (al *AuditLog) Record(ctx context.Context, entry AuditEntry) error {
	keysJSON, err := json.Marshal(entry.KeysInvalidated)
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}

	const query = `
		INSERT INTO invalidation_audit
		(request_id, event_type, keys_invalidated, timestamp, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = al.db.Exec(ctx, query,
		entry.RequestID, entry.EventType, keysJSON, entry.Timestamp, entry.Success, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ByRequestID retrieves every audit entry recorded for requestID.
func (al *AuditLog) ByRequestID(ctx context.Context, requestID string) ([]AuditEntry, error) {
	const query = `
		SELECT id, request_id, event_type, keys_invalidated, timestamp, success, COALESCE(error_message, '')
		FROM invalidation_audit
		WHERE request_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := al.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit by request id: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// Recent retrieves the most recent audit entries, newest first.
func (al *AuditLog) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, request_id, event_type, keys_invalidated, timestamp, success, COALESCE(error_message, '')
		FROM invalidation_audit
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := al.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sqldb.Rows) ([]AuditEntry, error) {
	entries := make([]AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		var keysJSON []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.EventType, &keysJSON, &e.Timestamp, &e.Success, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(keysJSON) > 0 {
			if err := json.Unmarshal(keysJSON, &e.KeysInvalidated); err != nil {
				e.KeysInvalidated = nil
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Cleanup removes audit entries older than olderThan, run periodically by
// the retention cron job.
func (al *AuditLog) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	const query = `DELETE FROM invalidation_audit WHERE timestamp < $1`
	result, err := al.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit entries: %w", err)
	}
	return result.RowsAffected(), nil
}
