package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/buildledger/buildledger/internal/jobs"
)

// LedgerIntegrityJob sweeps posted journal entries for debit/credit drift.
// The posting path enforces balance, so any hit here means manual data
// surgery or a bug; the job raises a counter rather than mutating rows.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires dependencies for the integrity sweep.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes integrity sweep tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rows, err := j.Pool.Query(ctx, `
SELECT e.owner_id, l.entry_id, SUM(l.debit)::text, SUM(l.credit)::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
GROUP BY e.owner_id, l.entry_id
HAVING SUM(l.debit) <> SUM(l.credit)
ORDER BY e.owner_id, l.entry_id`)
	if err != nil {
		resultErr = err
		j.logger().Error("integrity sweep query", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	perOwner := map[int64]int{}
	found := 0
	for rows.Next() {
		var ownerID, entryID int64
		var debit, credit string
		if err := rows.Scan(&ownerID, &entryID, &debit, &credit); err != nil {
			resultErr = err
			return resultErr
		}
		perOwner[ownerID]++
		found++
		j.logger().Error("unbalanced journal entry",
			slog.Int64("owner_id", ownerID),
			slog.Int64("entry_id", entryID),
			slog.String("debit", debit),
			slog.String("credit", credit))
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	for ownerID, count := range perOwner {
		j.metrics().AddUnbalanced(ownerID, count)
	}
	if found == 0 {
		j.logger().Info("ledger integrity sweep clean")
	}
	return resultErr
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
