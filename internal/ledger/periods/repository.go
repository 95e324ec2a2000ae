package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	Get(ctx context.Context, ownerID, periodID int64) (Period, error)
	ListByProject(ctx context.Context, ownerID, projectID int64) ([]Period, error)
	// LatestClosedEndDate returns the most recent closed period end date
	// covering the given date, or ok=false when none does.
	LatestClosedEndDate(ctx context.Context, ownerID, projectID int64, date time.Time) (time.Time, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, ownerID, periodID int64) (Period, error)
	FindByEndDateForUpdate(ctx context.Context, ownerID, projectID int64, endDate time.Time) (Period, error)
	Insert(ctx context.Context, ownerID int64, in CloseInput, status PeriodStatus, actorID int64, at time.Time) (Period, error)
	MarkClosed(ctx context.Context, periodID, actorID int64, notes string, at time.Time) error
	MarkReopened(ctx context.Context, periodID, actorID int64, reason string, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, owner_id, project_id, period_end_date, status, closed_at, closed_by, closure_notes, reopened_at, reopened_by, reopen_reason, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.OwnerID, &p.ProjectID, &p.PeriodEndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.ClosureNotes, &p.ReopenedAt, &p.ReopenedBy, &p.ReopenReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, ownerID, periodID int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE owner_id=$1 AND id=$2`, ownerID, periodID)
	return scanPeriod(row)
}

func (r *repository) ListByProject(ctx context.Context, ownerID, projectID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE owner_id=$1 AND project_id=$2 ORDER BY period_end_date DESC`, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.ProjectID, &p.PeriodEndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.ClosureNotes, &p.ReopenedAt, &p.ReopenedBy, &p.ReopenReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) LatestClosedEndDate(ctx context.Context, ownerID, projectID int64, date time.Time) (time.Time, bool, error) {
	var end time.Time
	err := r.db.QueryRow(ctx, `SELECT period_end_date FROM accounting_periods
WHERE owner_id=$1 AND project_id=$2 AND status='CLOSED' AND period_end_date >= $3
ORDER BY period_end_date DESC LIMIT 1`, ownerID, projectID, date).Scan(&end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return end, true, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, ownerID, periodID int64) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, periodID)
	return scanPeriod(row)
}

func (r *txRepository) FindByEndDateForUpdate(ctx context.Context, ownerID, projectID int64, endDate time.Time) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE owner_id=$1 AND project_id=$2 AND period_end_date=$3 FOR UPDATE`, ownerID, projectID, endDate)
	return scanPeriod(row)
}

func (r *txRepository) Insert(ctx context.Context, ownerID int64, in CloseInput, status PeriodStatus, actorID int64, at time.Time) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (owner_id, project_id, period_end_date, status, closed_at, closed_by, closure_notes)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+periodColumns,
		ownerID, in.ProjectID, in.PeriodEndDate, status, at, actorID, in.Notes)
	return scanPeriod(row)
}

func (r *txRepository) MarkClosed(ctx context.Context, periodID, actorID int64, notes string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status='CLOSED', closed_at=$2, closed_by=$3, closure_notes=$4, updated_at=NOW() WHERE id=$1`, periodID, at, actorID, notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) MarkReopened(ctx context.Context, periodID, actorID int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status='OPEN', reopened_at=$2, reopened_by=$3, reopen_reason=$4, updated_at=NOW() WHERE id=$1`, periodID, at, actorID, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}
