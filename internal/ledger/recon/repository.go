package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Repository encapsulates DB operations for bank reconciliations.
type Repository interface {
	Insert(ctx context.Context, ownerID int64, in StartInput) (BankReconciliation, error)
	Get(ctx context.Context, ownerID int64, id uuid.UUID) (BankReconciliation, error)
	List(ctx context.Context, ownerID int64) ([]BankReconciliation, error)
	HasInProgressForAccount(ctx context.Context, ownerID, bankAccountID int64) (bool, error)
	HasInProgressThrough(ctx context.Context, ownerID int64, through time.Time) (bool, error)
	SetTransactionCleared(ctx context.Context, ownerID int64, ref TxRef, reconciliationID *uuid.UUID) error
	SetStatus(ctx context.Context, ownerID int64, id uuid.UUID, status Status, completedAt *time.Time) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reset steps that must commit atomically.
type TxRepository interface {
	GetForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (BankReconciliation, error)
	ClearReferences(ctx context.Context, ownerID int64, id uuid.UUID) (ResetResult, error)
	DeleteReconciliation(ctx context.Context, ownerID int64, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const reconColumns = `id, owner_id, bank_account_id, statement_date, statement_balance::text, status, created_at, completed_at`

func scanRecon(row pgx.Row) (BankReconciliation, error) {
	var r BankReconciliation
	var balance string
	err := row.Scan(&r.ID, &r.OwnerID, &r.BankAccountID, &r.StatementDate, &balance, &r.Status, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrNotFound
		}
		return BankReconciliation{}, err
	}
	if r.StatementBalance, err = money.Parse(balance); err != nil {
		return BankReconciliation{}, err
	}
	return r, nil
}

func (r *repository) Insert(ctx context.Context, ownerID int64, in StartInput) (BankReconciliation, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO bank_reconciliations (id, owner_id, bank_account_id, statement_date, statement_balance, status)
VALUES ($1,$2,$3,$4,$5,'in_progress') RETURNING `+reconColumns,
		uuid.New(), ownerID, in.BankAccountID, in.StatementDate, in.StatementBalance.String())
	return scanRecon(row)
}

func (r *repository) Get(ctx context.Context, ownerID int64, id uuid.UUID) (BankReconciliation, error) {
	return scanRecon(r.db.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE owner_id=$1 AND id=$2`, ownerID, id))
}

func (r *repository) List(ctx context.Context, ownerID int64) ([]BankReconciliation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE owner_id=$1 ORDER BY statement_date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankReconciliation
	for rows.Next() {
		rec, err := scanRecon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) HasInProgressForAccount(ctx context.Context, ownerID, bankAccountID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_reconciliations
WHERE owner_id=$1 AND bank_account_id=$2 AND status='in_progress')`, ownerID, bankAccountID).Scan(&exists)
	return exists, err
}

func (r *repository) HasInProgressThrough(ctx context.Context, ownerID int64, through time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bank_reconciliations
WHERE owner_id=$1 AND status='in_progress' AND statement_date <= $2)`, ownerID, through).Scan(&exists)
	return exists, err
}

func (r *repository) SetTransactionCleared(ctx context.Context, ownerID int64, ref TxRef, reconciliationID *uuid.UUID) error {
	var query string
	switch ref.Kind {
	case TxBill:
		query = `UPDATE bills SET reconciled=$3, reconciliation_id=$4, updated_at=NOW() WHERE owner_id=$1 AND id=$2`
	case TxDeposit:
		query = `UPDATE deposits SET reconciled=$3, reconciliation_id=$4, updated_at=NOW() WHERE owner_id=$1 AND id=$2`
	case TxJournalLine:
		query = `UPDATE journal_lines SET reconciled=$3, reconciliation_id=$4
WHERE id=$2 AND entry_id IN (SELECT id FROM journal_entries WHERE owner_id=$1)`
	default:
		return fmt.Errorf("recon: unknown transaction kind %q", ref.Kind)
	}
	cmd, err := r.db.Exec(ctx, query, ownerID, ref.ID, reconciliationID != nil, reconciliationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownTransaction
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, ownerID int64, id uuid.UUID, status Status, completedAt *time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bank_reconciliations SET status=$3, completed_at=$4 WHERE owner_id=$1 AND id=$2`,
		ownerID, id, status, completedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (BankReconciliation, error) {
	return scanRecon(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, id))
}

// ClearReferences releases every row the reconciliation had cleared. All
// three tables are swept in the surrounding transaction so a failure
// leaves no half-reset state.
func (r *txRepository) ClearReferences(ctx context.Context, ownerID int64, id uuid.UUID) (ResetResult, error) {
	var result ResetResult
	cmd, err := r.tx.Exec(ctx, `UPDATE bills SET reconciled=FALSE, reconciliation_id=NULL, updated_at=NOW()
WHERE owner_id=$1 AND reconciliation_id=$2`, ownerID, id)
	if err != nil {
		return ResetResult{}, err
	}
	result.Bills = cmd.RowsAffected()
	cmd, err = r.tx.Exec(ctx, `UPDATE deposits SET reconciled=FALSE, reconciliation_id=NULL, updated_at=NOW()
WHERE owner_id=$1 AND reconciliation_id=$2`, ownerID, id)
	if err != nil {
		return ResetResult{}, err
	}
	result.Deposits = cmd.RowsAffected()
	cmd, err = r.tx.Exec(ctx, `UPDATE journal_lines SET reconciled=FALSE, reconciliation_id=NULL
WHERE reconciliation_id=$2 AND entry_id IN (SELECT id FROM journal_entries WHERE owner_id=$1)`, ownerID, id)
	if err != nil {
		return ResetResult{}, err
	}
	result.JournalLines = cmd.RowsAffected()
	return result, nil
}

func (r *txRepository) DeleteReconciliation(ctx context.Context, ownerID int64, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM bank_reconciliations WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
