package recon

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// Status is the reconciliation lifecycle state. Completed is terminal in
// the normal flow; Undo reopens it under a distinct permission.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// BankReconciliation tracks matching a bank statement against the ledger.
type BankReconciliation struct {
	ID               uuid.UUID
	OwnerID          int64
	BankAccountID    int64
	StatementDate    time.Time
	StatementBalance money.Cents
	Status           Status
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// TxKind names a clearable row type.
type TxKind string

const (
	TxBill        TxKind = "bill"
	TxDeposit     TxKind = "deposit"
	TxJournalLine TxKind = "journal_line"
)

// ValidTxKind reports whether k is a known transaction kind.
func ValidTxKind(k TxKind) bool {
	return k == TxBill || k == TxDeposit || k == TxJournalLine
}

// TxRef identifies a clearable row.
type TxRef struct {
	Kind TxKind
	ID   int64
}

// StartInput carries fields for a new reconciliation.
type StartInput struct {
	BankAccountID    int64
	StatementDate    time.Time
	StatementBalance money.Cents
}

// Validate checks start input coherence.
func (in StartInput) Validate() error {
	if in.BankAccountID == 0 {
		return errors.New("recon: bank account required")
	}
	if in.StatementDate.IsZero() {
		return errors.New("recon: statement date required")
	}
	return nil
}

// ResetResult reports how many rows each table released when a
// reconciliation was reset.
type ResetResult struct {
	Bills        int64
	Deposits     int64
	JournalLines int64
}

var (
	// ErrNotFound indicates a missing reconciliation in the owner scope.
	ErrNotFound = errors.New("recon: not found")
	// ErrAlreadyInProgress indicates the bank account already has an open
	// reconciliation.
	ErrAlreadyInProgress = errors.New("recon: reconciliation already in progress for account")
	// ErrNotInProgress indicates an operation that needs an open
	// reconciliation hit a completed one.
	ErrNotInProgress = errors.New("recon: not in progress")
	// ErrNotCompleted indicates undo against a reconciliation that is not
	// completed.
	ErrNotCompleted = errors.New("recon: not completed")
	// ErrUnknownTransaction indicates a mark against a row that does not
	// exist in the owner scope.
	ErrUnknownTransaction = errors.New("recon: unknown transaction")
)
