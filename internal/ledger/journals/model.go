package journals

import (
	"time"

	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// SourceType identifies the document a journal entry was generated from.
type SourceType string

const (
	SourceBill        SourceType = "bill"
	SourceBillPayment SourceType = "bill_payment"
	SourceDeposit     SourceType = "deposit"
	SourceManual      SourceType = "journal_entry"
)

// JournalEntry captures one balanced financial event. Posted entries are
// never deleted in the normal flow; corrections go through Reverse.
type JournalEntry struct {
	ID          int64
	OwnerID     int64
	EntryDate   time.Time
	Description string
	SourceType  SourceType
	SourceID    uuid.UUID
	ProjectID   *int64
	PostedAt    *time.Time
	ReversedAt  *time.Time
	IsReversal  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// Posted reports whether the entry has been posted.
func (e JournalEntry) Posted() bool {
	return e.PostedAt != nil
}

// JournalLine stores a debit or credit amount for an account, tagged with
// optional job-cost dimensions.
type JournalLine struct {
	ID               int64
	EntryID          int64
	AccountID        int64
	ProjectID        *int64
	LotID            *int64
	CostCodeID       *int64
	Debit            money.Cents
	Credit           money.Cents
	Reconciled       bool
	ReconciliationID *uuid.UUID
	CreatedAt        time.Time
}
