package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrUnknownAccount indicates a line references an account outside the chart.
	ErrUnknownAccount = errors.New("ledger: unknown account")
	// ErrUnknownLot indicates a dangling lot reference.
	ErrUnknownLot = errors.New("ledger: unknown lot")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrPeriodClosed indicates the transaction date falls inside a closed period.
	ErrPeriodClosed = errors.New("ledger: period closed")
	// ErrEntryReversed indicates an edit against an already-reversed entry.
	// Kept distinct from ErrPeriodClosed so callers can surface the two
	// lock reasons differently.
	ErrEntryReversed = errors.New("ledger: entry reversed")
	// ErrInvalidStatus indicates action can't proceed from the current status.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
)
