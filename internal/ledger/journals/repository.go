package journals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	// List returns one page of entries plus the total count for the owner.
	List(ctx context.Context, ownerID int64, limit, offset int) ([]JournalEntry, int, error)
	Get(ctx context.Context, ownerID, entryID int64) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, ownerID int64, in PostingInput, isReversal bool, postedAt time.Time) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	GetEntryWithLines(ctx context.Context, ownerID, entryID int64) (JournalEntry, []JournalLine, error)
	MarkReversed(ctx context.Context, entryID int64, at time.Time) error
	DeleteEntry(ctx context.Context, ownerID, entryID int64) error
	// MissingAccounts returns ids from the input set that do not exist in
	// the owner's chart of accounts.
	MissingAccounts(ctx context.Context, ownerID int64, accountIDs []int64) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, owner_id, entry_date, description, source_type, source_id, project_id, posted_at, reversed_at, is_reversal, created_at, updated_at`

func (r *repository) List(ctx context.Context, ownerID int64, limit, offset int) ([]JournalEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE owner_id=$1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE owner_id=$1
ORDER BY entry_date DESC, id DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.EntryDate, &e.Description, &e.SourceType, &e.SourceID, &e.ProjectID, &e.PostedAt, &e.ReversedAt, &e.IsReversal, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, ownerID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, lines, err := tx.GetEntryWithLines(ctx, ownerID, entryID)
		if err != nil {
			return err
		}
		e.Lines = lines
		entry = e
		return nil
	})
	return entry, err
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

// TxFromPgx wraps an in-flight pgx transaction with the journals
// transactional repository. Source document adapters use it so their own
// rows and the generated journal entries commit or roll back together.
func TxFromPgx(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertEntry(ctx context.Context, ownerID int64, in PostingInput, isReversal bool, postedAt time.Time) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (owner_id, entry_date, description, source_type, source_id, project_id, posted_at, is_reversal)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		ownerID, in.EntryDate, in.Description, in.SourceType, in.SourceID, in.ProjectID, postedAt, isReversal)
	entry := JournalEntry{
		OwnerID:     ownerID,
		EntryDate:   in.EntryDate,
		Description: in.Description,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		ProjectID:   in.ProjectID,
		PostedAt:    &postedAt,
		IsReversal:  isReversal,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, project_id, lot_id, cost_code_id, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entryID, line.AccountID, line.ProjectID, line.LotID, line.CostCodeID, line.Debit.String(), line.Credit.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, ownerID, entryID int64) (JournalEntry, []JournalLine, error) {
	var entry JournalEntry
	err := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE owner_id=$1 AND id=$2`, ownerID, entryID).
		Scan(&entry.ID, &entry.OwnerID, &entry.EntryDate, &entry.Description, &entry.SourceType, &entry.SourceID, &entry.ProjectID, &entry.PostedAt, &entry.ReversedAt, &entry.IsReversal, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, project_id, lot_id, cost_code_id, debit::text, credit::text, reconciled, reconciliation_id, created_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed_at=$2, updated_at=NOW() WHERE id=$1 AND reversed_at IS NULL`, entryID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryReversed
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, ownerID, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE owner_id=$1 AND id=$2`, ownerID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) MissingAccounts(ctx context.Context, ownerID int64, accountIDs []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT wanted.id FROM unnest($2::bigint[]) AS wanted(id)
WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.owner_id=$1 AND a.id=wanted.id)`, ownerID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func scanLine(rows pgx.Rows) (JournalLine, error) {
	var line JournalLine
	var debit, credit string
	if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.ProjectID, &line.LotID, &line.CostCodeID, &debit, &credit, &line.Reconciled, &line.ReconciliationID, &line.CreatedAt); err != nil {
		return JournalLine{}, err
	}
	var err error
	if line.Debit, err = money.Parse(debit); err != nil {
		return JournalLine{}, err
	}
	if line.Credit, err = money.Parse(credit); err != nil {
		return JournalLine{}, err
	}
	return line, nil
}
