package invalidation

import (
	"context"
	"time"

	"encore.dev/cron"
)

// auditLog is the package-level AuditLog the retention cron job below
// invokes through, following the same package-level-instance pattern
// warming/cron.go uses for its jobs.
var auditLog *AuditLog

// auditRetention is how long an audit entry survives before cleanup
// removes it. Set once during service initialization.
var auditRetention = 90 * 24 * time.Hour

// SetAuditInstance wires the package-level AuditLog and retention window
// used by the cleanup job below. Called once during service initialization.
func SetAuditInstance(al *AuditLog, retention time.Duration) {
	auditLog = al
	if retention > 0 {
		auditRetention = retention
	}
}

var _ = cron.NewJob("audit-retention-cleanup", cron.JobConfig{
	Title:    "Invalidation audit retention cleanup",
	Schedule: "0 3 * * *",
	Endpoint: AuditRetentionCleanup,
})

// AuditRetentionCleanup deletes audit entries older than the configured
// retention window, once a day.
//
//encore:api private
func AuditRetentionCleanup(ctx context.Context) error {
	if auditLog == nil {
		return nil
	}
	_, err := auditLog.Cleanup(ctx, auditRetention)
	return err
}
