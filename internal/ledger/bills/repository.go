package bills

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/journals"
	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Repository encapsulates DB operations for bills.
type Repository interface {
	Get(ctx context.Context, ownerID, billID int64) (Bill, error)
	List(ctx context.Context, ownerID int64, filter ListFilter) ([]Bill, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ListFilter narrows bill listings.
type ListFilter struct {
	Status    BillStatus
	VendorID  int64
	ProjectID int64
}

// TxRepository exposes methods available within a transaction. It embeds
// the journals transactional repository so bill posting and payment write
// their journal entries in the same transaction as the bill rows.
type TxRepository interface {
	journals.TxRepository
	InsertBill(ctx context.Context, ownerID int64, in CreateInput) (Bill, error)
	InsertBillLine(ctx context.Context, billID int64, in CreateLineInput) (BillLine, error)
	GetBillForUpdate(ctx context.Context, ownerID, billID int64) (Bill, error)
	GetBillLines(ctx context.Context, billID int64) ([]BillLine, error)
	MarkPosted(ctx context.Context, billID, entryID int64) error
	UpdatePayment(ctx context.Context, billID int64, amountPaid money.Cents, status BillStatus) error
	MarkBillReversed(ctx context.Context, billID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const billColumns = `id, owner_id, vendor_id, project_id, bill_date, due_date, total_amount::text, amount_paid::text, status, is_reversal, reversed_at, journal_entry_id, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	var total, paid string
	err := row.Scan(&b.ID, &b.OwnerID, &b.VendorID, &b.ProjectID, &b.BillDate, &b.DueDate, &total, &paid, &b.Status, &b.IsReversal, &b.ReversedAt, &b.JournalEntryID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	if b.TotalAmount, err = money.Parse(total); err != nil {
		return Bill{}, err
	}
	if b.AmountPaid, err = money.Parse(paid); err != nil {
		return Bill{}, err
	}
	return b, nil
}

func (r *repository) Get(ctx context.Context, ownerID, billID int64) (Bill, error) {
	bill, err := scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE owner_id=$1 AND id=$2`, ownerID, billID))
	if err != nil {
		return Bill{}, err
	}
	lines, err := queryBillLines(ctx, r.db, billID)
	if err != nil {
		return Bill{}, err
	}
	bill.Lines = lines
	return bill, nil
}

func (r *repository) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Bill, error) {
	rows, err := r.db.Query(ctx, `SELECT `+billColumns+` FROM bills
WHERE owner_id=$1
  AND ($2::text = '' OR status=$2)
  AND ($3::bigint = 0 OR vendor_id=$3)
  AND ($4::bigint = 0 OR project_id=$4)
ORDER BY bill_date DESC, id DESC`, ownerID, string(filter.Status), filter.VendorID, filter.ProjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bill)
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

func queryBillLines(ctx context.Context, q queryer, billID int64) ([]BillLine, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_id, account_id, cost_code_id, lot_id, po_link_kind, po_id, amount::text, created_at
FROM bill_lines WHERE bill_id=$1 ORDER BY id ASC`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BillLine
	for rows.Next() {
		var line BillLine
		var kind string
		var poID *int64
		var amount string
		if err := rows.Scan(&line.ID, &line.BillID, &line.AccountID, &line.CostCodeID, &line.LotID, &kind, &poID, &amount, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.POLink = POLink{Kind: POLinkKind(kind)}
		if poID != nil {
			line.POLink.POID = *poID
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

func (r *txRepository) InsertBill(ctx context.Context, ownerID int64, in CreateInput) (Bill, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bills (owner_id, vendor_id, project_id, bill_date, due_date, total_amount, amount_paid, status)
VALUES ($1,$2,$3,$4,$5,$6,'0.00','draft') RETURNING `+billColumns,
		ownerID, in.VendorID, in.ProjectID, in.BillDate, in.DueDate, in.TotalAmount.String())
	return scanBill(row)
}

func (r *txRepository) InsertBillLine(ctx context.Context, billID int64, in CreateLineInput) (BillLine, error) {
	var poID *int64
	if in.POLink.Kind == POLinkExplicit {
		poID = &in.POLink.POID
	}
	line := BillLine{
		BillID:     billID,
		AccountID:  in.AccountID,
		CostCodeID: in.CostCodeID,
		LotID:      in.LotID,
		POLink:     in.POLink,
		Amount:     in.Amount,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO bill_lines (bill_id, account_id, cost_code_id, lot_id, po_link_kind, po_id, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		billID, in.AccountID, in.CostCodeID, in.LotID, string(in.POLink.Kind), poID, in.Amount.String()).
		Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return BillLine{}, err
	}
	return line, nil
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, ownerID, billID int64) (Bill, error) {
	return scanBill(r.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, billID))
}

func (r *txRepository) GetBillLines(ctx context.Context, billID int64) ([]BillLine, error) {
	return queryBillLines(ctx, r.tx, billID)
}

func (r *txRepository) MarkPosted(ctx context.Context, billID, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bills SET status='posted', journal_entry_id=$2, updated_at=NOW() WHERE id=$1`, billID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *txRepository) UpdatePayment(ctx context.Context, billID int64, amountPaid money.Cents, status BillStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bills SET amount_paid=$2, status=$3, updated_at=NOW() WHERE id=$1`, billID, amountPaid.String(), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *txRepository) MarkBillReversed(ctx context.Context, billID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bills SET status='reversed', reversed_at=$2, updated_at=NOW() WHERE id=$1`, billID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}
