package purchaseorders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Repository encapsulates DB operations for purchase orders and the
// aggregate queries the matching engine needs.
type Repository interface {
	Insert(ctx context.Context, ownerID int64, in CreateInput) (PurchaseOrder, error)
	Update(ctx context.Context, ownerID int64, in UpdateInput) (PurchaseOrder, error)
	Delete(ctx context.Context, ownerID, poID int64) error
	Get(ctx context.Context, ownerID, poID int64) (PurchaseOrder, error)
	List(ctx context.Context, ownerID, projectID int64) ([]PurchaseOrder, error)
	// GetByKey resolves the auto-match composite key.
	GetByKey(ctx context.Context, ownerID, projectID, vendorID int64, costCodeID *int64) (PurchaseOrder, error)
	// BilledTotals sums bill line amounts charged against each purchase
	// order, counting posted, partially paid, and paid bills and skipping
	// reversed ones. Explicitly linked lines count toward their pinned PO;
	// auto-linked lines count toward the PO matching their composite key.
	BilledTotals(ctx context.Context, ownerID int64, poIDs []int64) (map[int64]money.Cents, error)
	// ListProjectIDs returns the distinct projects that carry purchase
	// orders for an owner.
	ListProjectIDs(ctx context.Context, ownerID int64) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const poColumns = `id, owner_id, project_id, vendor_id, cost_code_id, po_number, description, total_amount::text, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var total string
	err := row.Scan(&po.ID, &po.OwnerID, &po.ProjectID, &po.VendorID, &po.CostCodeID, &po.PONumber, &po.Description, &total, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	if po.TotalAmount, err = money.Parse(total); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *repository) Insert(ctx context.Context, ownerID int64, in CreateInput) (PurchaseOrder, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO purchase_orders (owner_id, project_id, vendor_id, cost_code_id, po_number, description, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+poColumns,
		ownerID, in.ProjectID, in.VendorID, in.CostCodeID, in.PONumber, in.Description, in.TotalAmount.String())
	po, err := scanPO(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PurchaseOrder{}, ErrDuplicatePONumber
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *repository) Update(ctx context.Context, ownerID int64, in UpdateInput) (PurchaseOrder, error) {
	var total *string
	if in.TotalAmount != nil {
		s := in.TotalAmount.String()
		total = &s
	}
	row := r.db.QueryRow(ctx, `UPDATE purchase_orders
SET description=COALESCE($3, description), total_amount=COALESCE($4, total_amount), updated_at=NOW()
WHERE owner_id=$1 AND id=$2 RETURNING `+poColumns, ownerID, in.POID, in.Description, total)
	return scanPO(row)
}

func (r *repository) Delete(ctx context.Context, ownerID, poID int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM purchase_orders WHERE owner_id=$1 AND id=$2`, ownerID, poID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context, ownerID, poID int64) (PurchaseOrder, error) {
	return scanPO(r.db.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE owner_id=$1 AND id=$2`, ownerID, poID))
}

func (r *repository) List(ctx context.Context, ownerID, projectID int64) ([]PurchaseOrder, error) {
	rows, err := r.db.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE owner_id=$1 AND ($2::bigint = 0 OR project_id=$2) ORDER BY po_number ASC`, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (r *repository) GetByKey(ctx context.Context, ownerID, projectID, vendorID int64, costCodeID *int64) (PurchaseOrder, error) {
	return scanPO(r.db.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE owner_id=$1 AND project_id=$2 AND vendor_id=$3 AND cost_code_id IS NOT DISTINCT FROM $4
ORDER BY id ASC LIMIT 1`, ownerID, projectID, vendorID, costCodeID))
}

func (r *repository) BilledTotals(ctx context.Context, ownerID int64, poIDs []int64) (map[int64]money.Cents, error) {
	totals := make(map[int64]money.Cents, len(poIDs))
	if len(poIDs) == 0 {
		return totals, nil
	}
	rows, err := r.db.Query(ctx, `SELECT po.id, COALESCE(SUM(bl.amount), 0)::text
FROM purchase_orders po
JOIN bill_lines bl ON (
     (bl.po_link_kind = 'explicit' AND bl.po_id = po.id)
  OR (bl.po_link_kind = 'auto' AND bl.cost_code_id IS NOT DISTINCT FROM po.cost_code_id)
)
JOIN bills b ON b.id = bl.bill_id
WHERE po.owner_id = $1
  AND po.id = ANY($2::bigint[])
  AND b.owner_id = $1
  AND b.status IN ('posted','partial','paid')
  AND (bl.po_link_kind = 'explicit' OR (b.project_id = po.project_id AND b.vendor_id = po.vendor_id))
GROUP BY po.id`, ownerID, poIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var poID int64
		var sum string
		if err := rows.Scan(&poID, &sum); err != nil {
			return nil, err
		}
		if totals[poID], err = money.Parse(sum); err != nil {
			return nil, err
		}
	}
	return totals, rows.Err()
}

func (r *repository) ListProjectIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT project_id FROM purchase_orders WHERE owner_id=$1 ORDER BY project_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
