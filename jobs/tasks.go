// Package jobs defines the background task catalogue and the asynq worker
// that processes it.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMatchWarmup pre-computes PO match results for an owner's projects.
	TaskMatchWarmup = "pomatch:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskLedgerIntegrity sweeps journal entries for debit/credit drift.
	TaskLedgerIntegrity = "ledger:integrity"
)

// MatchWarmupPayload scopes a warmup run to one owner.
type MatchWarmupPayload struct {
	OwnerID int64 `json:"owner_id"`
}

// NewMatchWarmupTask constructs a warmup task for the owner.
func NewMatchWarmupTask(payload MatchWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatchWarmup, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload controls the retention window. Zero means the
// default of 24 hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs an integrity sweep task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil, asynq.Queue(QueueDefault))
}
