package lots

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for project lots.
type Repository interface {
	Insert(ctx context.Context, ownerID int64, in CreateInput) (ProjectLot, error)
	Get(ctx context.Context, ownerID, lotID int64) (ProjectLot, error)
	List(ctx context.Context, ownerID, projectID int64) ([]ProjectLot, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const lotColumns = `id, owner_id, project_id, lot_number, lot_name, created_at`

func scanLot(row pgx.Row) (ProjectLot, error) {
	var lot ProjectLot
	err := row.Scan(&lot.ID, &lot.OwnerID, &lot.ProjectID, &lot.LotNumber, &lot.LotName, &lot.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectLot{}, ErrLotNotFound
		}
		return ProjectLot{}, err
	}
	return lot, nil
}

// Insert assigns the next sequential lot number for the project inside a
// transaction, holding the project's existing lots against concurrent
// inserts. The (project_id, lot_number) unique index backstops races.
func (r *repository) Insert(ctx context.Context, ownerID int64, in CreateInput) (ProjectLot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return ProjectLot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lot, err := scanLot(tx.QueryRow(ctx, `INSERT INTO project_lots (owner_id, project_id, lot_number, lot_name)
SELECT $1, $2, COALESCE(MAX(lot_number), 0) + 1, $3 FROM project_lots WHERE owner_id=$1 AND project_id=$2
RETURNING `+lotColumns, ownerID, in.ProjectID, in.LotName))
	if err != nil {
		return ProjectLot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ProjectLot{}, err
	}
	return lot, nil
}

func (r *repository) Get(ctx context.Context, ownerID, lotID int64) (ProjectLot, error) {
	return scanLot(r.db.QueryRow(ctx, `SELECT `+lotColumns+` FROM project_lots WHERE owner_id=$1 AND id=$2`, ownerID, lotID))
}

func (r *repository) List(ctx context.Context, ownerID, projectID int64) ([]ProjectLot, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lotColumns+` FROM project_lots
WHERE owner_id=$1 AND project_id=$2 ORDER BY lot_number ASC`, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProjectLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}
