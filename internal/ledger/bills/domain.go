package bills

import (
	"errors"
	"fmt"
	"time"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// BillStatus enumerates the bill lifecycle. Partial payment gets its own
// status rather than being inferred from amount comparisons.
type BillStatus string

const (
	BillStatusDraft    BillStatus = "draft"
	BillStatusPosted   BillStatus = "posted"
	BillStatusPartial  BillStatus = "partial"
	BillStatusPaid     BillStatus = "paid"
	BillStatusReversed BillStatus = "reversed"
)

// POLinkKind discriminates the purchase-order linkage variant.
type POLinkKind string

const (
	// POLinkAuto matches by (project, vendor, cost code) composite key.
	POLinkAuto POLinkKind = "auto"
	// POLinkNone opts the line out of PO matching entirely.
	POLinkNone POLinkKind = "none"
	// POLinkExplicit pins the line to a specific purchase order.
	POLinkExplicit POLinkKind = "explicit"
)

// POLink is the tagged purchase-order linkage on a bill line. POID is
// meaningful only for the explicit kind.
type POLink struct {
	Kind POLinkKind
	POID int64
}

// AutoMatch links a line by composite key.
func AutoMatch() POLink { return POLink{Kind: POLinkAuto} }

// NoPO opts a line out of matching.
func NoPO() POLink { return POLink{Kind: POLinkNone} }

// ExplicitPO pins a line to one purchase order.
func ExplicitPO(poID int64) POLink { return POLink{Kind: POLinkExplicit, POID: poID} }

// Valid reports whether the link is coherent.
func (l POLink) Valid() bool {
	switch l.Kind {
	case POLinkAuto, POLinkNone:
		return l.POID == 0
	case POLinkExplicit:
		return l.POID != 0
	default:
		return false
	}
}

// Bill is a vendor invoice. Posting generates the A/P journal entry;
// payments generate their own entries and advance AmountPaid.
type Bill struct {
	ID             int64
	OwnerID        int64
	VendorID       int64
	ProjectID      int64
	BillDate       time.Time
	DueDate        time.Time
	TotalAmount    money.Cents
	AmountPaid     money.Cents
	Status         BillStatus
	IsReversal     bool
	ReversedAt     *time.Time
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []BillLine
}

// Remaining returns the unpaid balance.
func (b Bill) Remaining() money.Cents {
	return b.TotalAmount - b.AmountPaid
}

// BillLine carries the job-cost breakdown of a bill. AccountID is the
// expense or job-cost account debited when the bill posts; CostCodeID and
// LotID ride along as dimensional tags.
type BillLine struct {
	ID         int64
	BillID     int64
	AccountID  int64
	CostCodeID *int64
	LotID      *int64
	POLink     POLink
	Amount     money.Cents
	CreatedAt  time.Time
}

// CreateInput carries fields for a new draft bill.
type CreateInput struct {
	VendorID    int64
	ProjectID   int64
	BillDate    time.Time
	DueDate     time.Time
	TotalAmount money.Cents
	Lines       []CreateLineInput
}

// CreateLineInput is one job-cost line of a new bill.
type CreateLineInput struct {
	AccountID  int64
	CostCodeID *int64
	LotID      *int64
	POLink     POLink
	Amount     money.Cents
}

// Validate checks create input coherence, including that the lines sum to
// the bill total exactly. The journal engine balances in exact cents, so
// any drift accepted here would leave the bill unpostable.
func (in CreateInput) Validate() error {
	if in.VendorID == 0 {
		return errors.New("bills: vendor id required")
	}
	if in.ProjectID == 0 {
		return errors.New("bills: project id required")
	}
	if in.BillDate.IsZero() {
		return errors.New("bills: bill date required")
	}
	if in.TotalAmount <= 0 {
		return errors.New("bills: total amount must be positive")
	}
	if len(in.Lines) == 0 {
		return errors.New("bills: at least one line is required")
	}
	var sum money.Cents
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("bills: line %d missing account", idx)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("bills: line %d amount must be positive", idx)
		}
		if !line.POLink.Valid() {
			return fmt.Errorf("bills: line %d invalid purchase order link", idx)
		}
		sum += line.Amount
	}
	if sum != in.TotalAmount {
		return fmt.Errorf("%w: lines %s vs total %s", ErrLineSumMismatch, sum, in.TotalAmount)
	}
	return nil
}

// PayInput bundles a payment batch. PaymentAmount is honoured only for a
// single-bill batch; multi-bill batches pay each bill in full.
type PayInput struct {
	BillIDs          []int64
	PaymentAccountID int64
	PaymentDate      time.Time
	Memo             string
	PaymentAmount    *money.Cents
}

// Validate checks payment input coherence.
func (in PayInput) Validate() error {
	if len(in.BillIDs) == 0 {
		return errors.New("bills: at least one bill required")
	}
	if in.PaymentAccountID == 0 {
		return errors.New("bills: payment account required")
	}
	if in.PaymentDate.IsZero() {
		return errors.New("bills: payment date required")
	}
	if in.PaymentAmount != nil && len(in.BillIDs) > 1 {
		return errors.New("bills: partial amount only applies to a single bill")
	}
	return nil
}

var (
	// ErrBillNotFound indicates a missing bill in the owner scope.
	ErrBillNotFound = errors.New("bills: not found")
	// ErrLineSumMismatch indicates lines do not sum to the bill total.
	ErrLineSumMismatch = errors.New("bills: line amounts do not sum to total")
	// ErrInvalidPaymentAmount indicates a partial payment outside
	// (0, remaining balance].
	ErrInvalidPaymentAmount = errors.New("bills: payment amount out of range")
	// ErrAlreadyPaid indicates a payment against a fully paid bill.
	ErrAlreadyPaid = errors.New("bills: already fully paid")
	// ErrMissingAPAccount indicates the owner has no accounts payable
	// account at the conventional code; posting cannot proceed.
	ErrMissingAPAccount = errors.New("bills: accounts payable account not configured")
	// ErrHasPayments indicates a reversal against a bill with recorded payments.
	ErrHasPayments = errors.New("bills: cannot reverse a bill with payments")
)
