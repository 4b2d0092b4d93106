// Package jobs holds the background task types and the asynq worker that
// runs them: correlative expiry, ledger integrity and idempotency cleanup.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCorrelativeExpiry flips ACTIVE correlatives past their expiration
	// date to EXPIRED.
	TaskCorrelativeExpiry = "invoicing:correlative_expiry"
	// TaskLedgerIntegrity scans the movement ledger for duplicate completed
	// commission postings.
	TaskLedgerIntegrity = "ledger:integrity_scan"
	// TaskIdempotencyCleanup drops idempotency claims past retention.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// LedgerIntegrityPayload bounds the integrity scan window.
type LedgerIntegrityPayload struct {
	WindowDays int `json:"window_days"`
}

// IdempotencyCleanupPayload sets the claim retention in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewCorrelativeExpiryTask constructs the expiry scan task.
func NewCorrelativeExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskCorrelativeExpiry, nil)
}

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask(windowDays int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{WindowDays: windowDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
