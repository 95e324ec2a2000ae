package deposits

import (
	"errors"
	"fmt"
	"time"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// LineKind discriminates what a deposit line credits.
type LineKind string

const (
	// KindRevenue credits a revenue account chosen on the line.
	KindRevenue LineKind = "revenue"
	// KindCustomerPayment credits the configured customer-deposit equity
	// account; the line carries no account of its own.
	KindCustomerPayment LineKind = "customer_payment"
)

// ValidKind reports whether k is a known line kind.
func ValidKind(k LineKind) bool {
	return k == KindRevenue || k == KindCustomerPayment
}

// Deposit is money received into a bank account, broken down into revenue
// and customer-payment lines. Creating one posts its journal entry in the
// same transaction.
type Deposit struct {
	ID             int64
	OwnerID        int64
	ProjectID      int64
	BankAccountID  int64
	DepositDate    time.Time
	TotalAmount    money.Cents
	Memo           string
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []DepositLine
}

// DepositLine is one credit of a deposit. AccountID is set only for
// revenue lines.
type DepositLine struct {
	ID         int64
	DepositID  int64
	Kind       LineKind
	AccountID  *int64
	CostCodeID *int64
	Amount     money.Cents
	CreatedAt  time.Time
}

// CreateInput carries fields for a new deposit.
type CreateInput struct {
	ProjectID     int64
	BankAccountID int64
	DepositDate   time.Time
	Memo          string
	TotalAmount   money.Cents
	Lines         []CreateLineInput
}

// CreateLineInput is one credit line of a new deposit.
type CreateLineInput struct {
	Kind       LineKind
	AccountID  *int64
	CostCodeID *int64
	Amount     money.Cents
}

// Validate checks create input coherence, including that lines sum to the
// deposit total within one cent.
func (in CreateInput) Validate() error {
	if in.ProjectID == 0 {
		return errors.New("deposits: project id required")
	}
	if in.BankAccountID == 0 {
		return errors.New("deposits: bank account required")
	}
	if in.DepositDate.IsZero() {
		return errors.New("deposits: deposit date required")
	}
	if in.TotalAmount <= 0 {
		return errors.New("deposits: total amount must be positive")
	}
	if len(in.Lines) == 0 {
		return errors.New("deposits: at least one line is required")
	}
	var sum money.Cents
	for idx, line := range in.Lines {
		if !ValidKind(line.Kind) {
			return fmt.Errorf("deposits: line %d unknown kind %q", idx, line.Kind)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("deposits: line %d amount must be positive", idx)
		}
		switch line.Kind {
		case KindRevenue:
			if line.AccountID == nil || *line.AccountID == 0 {
				return fmt.Errorf("%w: line %d", ErrRevenueAccountRequired, idx)
			}
		case KindCustomerPayment:
			if line.AccountID != nil {
				return fmt.Errorf("deposits: line %d must not set an account", idx)
			}
		}
		sum += line.Amount
	}
	if sum != in.TotalAmount {
		return fmt.Errorf("%w: lines %s vs total %s", ErrLineSumMismatch, sum, in.TotalAmount)
	}
	return nil
}

// UpdateInput patches a deposit. Nil fields stay untouched; LineAmounts
// patches individual line amounts by line id and the total follows.
type UpdateInput struct {
	DepositID   int64
	DepositDate *time.Time
	Memo        *string
	LineAmounts map[int64]money.Cents
}

// Validate checks update input coherence.
func (in UpdateInput) Validate() error {
	if in.DepositID == 0 {
		return errors.New("deposits: deposit id required")
	}
	if in.DepositDate == nil && in.Memo == nil && len(in.LineAmounts) == 0 {
		return errors.New("deposits: nothing to update")
	}
	for id, amount := range in.LineAmounts {
		if amount <= 0 {
			return fmt.Errorf("deposits: line %d amount must be positive", id)
		}
	}
	return nil
}

var (
	// ErrDepositNotFound indicates a missing deposit in the owner scope.
	ErrDepositNotFound = errors.New("deposits: not found")
	// ErrLineSumMismatch indicates lines do not sum to the deposit total.
	ErrLineSumMismatch = errors.New("deposits: line amounts do not sum to total")
	// ErrRevenueAccountRequired indicates a revenue line without an account.
	ErrRevenueAccountRequired = errors.New("deposits: revenue line requires an account")
	// ErrMissingEquityAccount indicates the owner has no customer-deposit
	// equity account at the configured code.
	ErrMissingEquityAccount = errors.New("deposits: customer deposit account not configured")
	// ErrUnknownLine indicates a line amount patch referencing a line that
	// does not belong to the deposit.
	ErrUnknownLine = errors.New("deposits: unknown line")
)
