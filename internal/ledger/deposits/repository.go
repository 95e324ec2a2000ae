package deposits

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/journals"
	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Repository encapsulates DB operations for deposits.
type Repository interface {
	Get(ctx context.Context, ownerID, depositID int64) (Deposit, error)
	List(ctx context.Context, ownerID, projectID int64) ([]Deposit, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. It embeds
// the journals transactional repository so the deposit rows and the
// generated journal entry commit together, and carries the journal-line
// patch ops the update flow needs.
type TxRepository interface {
	journals.TxRepository
	InsertDeposit(ctx context.Context, ownerID int64, in CreateInput) (Deposit, error)
	InsertDepositLine(ctx context.Context, depositID int64, in CreateLineInput) (DepositLine, error)
	GetDepositForUpdate(ctx context.Context, ownerID, depositID int64) (Deposit, error)
	GetDepositLines(ctx context.Context, depositID int64) ([]DepositLine, error)
	SetJournalEntry(ctx context.Context, depositID, entryID int64) error
	UpdateDepositHeader(ctx context.Context, depositID int64, date time.Time, memo string, total money.Cents) error
	UpdateDepositLineAmount(ctx context.Context, lineID int64, amount money.Cents) error
	UpdateEntryHeader(ctx context.Context, entryID int64, date time.Time, description string) error
	UpdateJournalLineAmounts(ctx context.Context, lineID int64, debit, credit money.Cents) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const depositColumns = `id, owner_id, project_id, bank_account_id, deposit_date, total_amount::text, memo, journal_entry_id, created_at, updated_at`

func scanDeposit(row pgx.Row) (Deposit, error) {
	var d Deposit
	var total string
	err := row.Scan(&d.ID, &d.OwnerID, &d.ProjectID, &d.BankAccountID, &d.DepositDate, &total, &d.Memo, &d.JournalEntryID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deposit{}, ErrDepositNotFound
		}
		return Deposit{}, err
	}
	if d.TotalAmount, err = money.Parse(total); err != nil {
		return Deposit{}, err
	}
	return d, nil
}

func (r *repository) Get(ctx context.Context, ownerID, depositID int64) (Deposit, error) {
	deposit, err := scanDeposit(r.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE owner_id=$1 AND id=$2`, ownerID, depositID))
	if err != nil {
		return Deposit{}, err
	}
	lines, err := queryDepositLines(ctx, r.db, depositID)
	if err != nil {
		return Deposit{}, err
	}
	deposit.Lines = lines
	return deposit, nil
}

func (r *repository) List(ctx context.Context, ownerID, projectID int64) ([]Deposit, error) {
	rows, err := r.db.Query(ctx, `SELECT `+depositColumns+` FROM deposits
WHERE owner_id=$1 AND ($2::bigint = 0 OR project_id=$2)
ORDER BY deposit_date DESC, id DESC`, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Deposit
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, deposit)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{TxRepository: journals.TxFromPgx(tx), tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryDepositLines(ctx context.Context, q queryer, depositID int64) ([]DepositLine, error) {
	rows, err := q.Query(ctx, `SELECT id, deposit_id, kind, account_id, cost_code_id, amount::text, created_at
FROM deposit_lines WHERE deposit_id=$1 ORDER BY id ASC`, depositID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []DepositLine
	for rows.Next() {
		var line DepositLine
		var amount string
		if err := rows.Scan(&line.ID, &line.DepositID, &line.Kind, &line.AccountID, &line.CostCodeID, &amount, &line.CreatedAt); err != nil {
			return nil, err
		}
		if line.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	journals.TxRepository
	tx pgx.Tx
}

func (r *txRepository) InsertDeposit(ctx context.Context, ownerID int64, in CreateInput) (Deposit, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO deposits (owner_id, project_id, bank_account_id, deposit_date, total_amount, memo)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+depositColumns,
		ownerID, in.ProjectID, in.BankAccountID, in.DepositDate, in.TotalAmount.String(), in.Memo)
	return scanDeposit(row)
}

func (r *txRepository) InsertDepositLine(ctx context.Context, depositID int64, in CreateLineInput) (DepositLine, error) {
	line := DepositLine{
		DepositID:  depositID,
		Kind:       in.Kind,
		AccountID:  in.AccountID,
		CostCodeID: in.CostCodeID,
		Amount:     in.Amount,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO deposit_lines (deposit_id, kind, account_id, cost_code_id, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		depositID, in.Kind, in.AccountID, in.CostCodeID, in.Amount.String()).
		Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return DepositLine{}, err
	}
	return line, nil
}

func (r *txRepository) GetDepositForUpdate(ctx context.Context, ownerID, depositID int64) (Deposit, error) {
	return scanDeposit(r.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, depositID))
}

func (r *txRepository) GetDepositLines(ctx context.Context, depositID int64) ([]DepositLine, error) {
	return queryDepositLines(ctx, r.tx, depositID)
}

func (r *txRepository) SetJournalEntry(ctx context.Context, depositID, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE deposits SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, depositID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (r *txRepository) UpdateDepositHeader(ctx context.Context, depositID int64, date time.Time, memo string, total money.Cents) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE deposits SET deposit_date=$2, memo=$3, total_amount=$4, updated_at=NOW() WHERE id=$1`,
		depositID, date, memo, total.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (r *txRepository) UpdateDepositLineAmount(ctx context.Context, lineID int64, amount money.Cents) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE deposit_lines SET amount=$2 WHERE id=$1`, lineID, amount.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownLine
	}
	return nil
}

func (r *txRepository) UpdateEntryHeader(ctx context.Context, entryID int64, date time.Time, description string) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$2, description=$3, updated_at=NOW() WHERE id=$1`,
		entryID, date, description)
	return err
}

func (r *txRepository) UpdateJournalLineAmounts(ctx context.Context, lineID int64, debit, credit money.Cents) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_lines SET debit=$2, credit=$3 WHERE id=$1`,
		lineID, debit.String(), credit.String())
	return err
}
