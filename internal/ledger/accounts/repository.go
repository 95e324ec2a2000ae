package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, ownerID int64, in CreateInput) (Account, error)
	Update(ctx context.Context, ownerID int64, in UpdateInput) (Account, error)
	Get(ctx context.Context, ownerID, accountID int64) (Account, error)
	GetByCode(ctx context.Context, ownerID int64, code string) (Account, error)
	List(ctx context.Context, ownerID int64) ([]Account, error)
	Balance(ctx context.Context, ownerID, accountID int64, asOf time.Time) (Balance, error)
	TrialBalance(ctx context.Context, ownerID int64, asOf time.Time) ([]Balance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed account repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, owner_id, code, name, type, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, ownerID int64, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (owner_id, code, name, type, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING `+accountColumns, ownerID, in.Code, in.Name, in.Type, in.ParentID)
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) Update(ctx context.Context, ownerID int64, in UpdateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET name=$3, is_active=COALESCE($4, is_active), updated_at=NOW()
WHERE owner_id=$1 AND id=$2 RETURNING `+accountColumns, ownerID, in.AccountID, in.Name, in.IsActive)
	return scanAccount(row)
}

func (r *repository) Get(ctx context.Context, ownerID, accountID int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 AND id=$2`, ownerID, accountID)
	return scanAccount(row)
}

func (r *repository) GetByCode(ctx context.Context, ownerID int64, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 AND code=$2`, ownerID, code)
	return scanAccount(row)
}

func (r *repository) List(ctx context.Context, ownerID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 ORDER BY code ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Balance sums posted journal lines up to asOf. Reversed entries stay in
// the sum: the original and its reversal carry swapped sides and net to
// zero, so filtering either one out would break that cancellation.
// Balances are derived here on every call, never cached in a column.
func (r *repository) Balance(ctx context.Context, ownerID, accountID int64, asOf time.Time) (Balance, error) {
	var debits, credits string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit),0)::text, COALESCE(SUM(l.credit),0)::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.owner_id=$1 AND l.account_id=$2 AND e.posted_at IS NOT NULL AND e.entry_date <= $3`,
		ownerID, accountID, asOf).Scan(&debits, &credits)
	if err != nil {
		return Balance{}, err
	}
	return buildBalance(accountID, asOf, debits, credits)
}

func (r *repository) TrialBalance(ctx context.Context, ownerID int64, asOf time.Time) ([]Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT l.account_id, COALESCE(SUM(l.debit),0)::text, COALESCE(SUM(l.credit),0)::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.owner_id=$1 AND e.posted_at IS NOT NULL AND e.entry_date <= $2
GROUP BY l.account_id ORDER BY l.account_id`, ownerID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var accountID int64
		var debits, credits string
		if err := rows.Scan(&accountID, &debits, &credits); err != nil {
			return nil, err
		}
		balance, err := buildBalance(accountID, asOf, debits, credits)
		if err != nil {
			return nil, err
		}
		out = append(out, balance)
	}
	return out, rows.Err()
}

func buildBalance(accountID int64, asOf time.Time, debits, credits string) (Balance, error) {
	d, err := money.Parse(debits)
	if err != nil {
		return Balance{}, err
	}
	c, err := money.Parse(credits)
	if err != nil {
		return Balance{}, err
	}
	return Balance{AccountID: accountID, Debits: d, Credits: c, Net: d - c, AsOf: asOf}, nil
}
