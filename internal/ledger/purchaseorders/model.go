package purchaseorders

import (
	"errors"
	"strings"
	"time"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// PurchaseOrder is a committed cost against a (project, vendor, cost code)
// key. Billed and remaining amounts are never stored; the matching engine
// derives them from posted bills on demand.
type PurchaseOrder struct {
	ID          int64
	OwnerID     int64
	ProjectID   int64
	VendorID    int64
	CostCodeID  *int64
	PONumber    string
	Description string
	TotalAmount money.Cents
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries fields for a new purchase order.
type CreateInput struct {
	ProjectID   int64
	VendorID    int64
	CostCodeID  *int64
	PONumber    string
	Description string
	TotalAmount money.Cents
}

// Validate checks create input coherence.
func (in CreateInput) Validate() error {
	if in.ProjectID == 0 {
		return errors.New("purchaseorders: project id required")
	}
	if in.VendorID == 0 {
		return errors.New("purchaseorders: vendor id required")
	}
	if strings.TrimSpace(in.PONumber) == "" {
		return errors.New("purchaseorders: po number required")
	}
	if in.TotalAmount <= 0 {
		return errors.New("purchaseorders: total amount must be positive")
	}
	return nil
}

// UpdateInput carries mutable purchase order fields.
type UpdateInput struct {
	POID        int64
	Description *string
	TotalAmount *money.Cents
}

// LineMatchStatus classifies one bill line against its resolved PO.
type LineMatchStatus string

const (
	LineMatched LineMatchStatus = "matched"
	LineOverPO  LineMatchStatus = "over_po"
)

// BillMatchStatus aggregates line outcomes for a bill.
type BillMatchStatus string

const (
	BillMatched BillMatchStatus = "matched"
	BillOverPO  BillMatchStatus = "over_po"
	BillNoPO    BillMatchStatus = "no_po"
	// BillPartial means some lines resolved a PO and some did not.
	BillPartial BillMatchStatus = "partial"
)

// LineMatch is the projection of one bill line against a purchase order.
// POID is zero when no PO resolved.
type LineMatch struct {
	BillLineID  int64           `json:"bill_line_id"`
	POID        int64           `json:"po_id,omitempty"`
	PONumber    string          `json:"po_number,omitempty"`
	POTotal     money.Cents     `json:"po_total"`
	TotalBilled money.Cents     `json:"total_billed"`
	Remaining   money.Cents     `json:"remaining"`
	Status      LineMatchStatus `json:"status,omitempty"`
	Matched     bool            `json:"matched"`
}

// BillMatch is the read-only matching projection for one bill.
type BillMatch struct {
	BillID int64           `json:"bill_id"`
	Status BillMatchStatus `json:"status"`
	Lines  []LineMatch     `json:"lines"`
}

var (
	// ErrPONotFound indicates a missing purchase order in the owner scope.
	ErrPONotFound = errors.New("purchaseorders: not found")
	// ErrDuplicatePONumber indicates the PO number is taken within the
	// owner scope.
	ErrDuplicatePONumber = errors.New("purchaseorders: po number already exists")
)
