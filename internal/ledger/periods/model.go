package periods

import (
	"errors"
	"strings"
	"time"
)

// PeriodStatus enumerates accounting period lifecycle stages.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period locks all transactions for a project dated on or before
// PeriodEndDate while closed. Reopening is audited: reason and timestamp
// are mandatory.
type Period struct {
	ID            int64
	OwnerID       int64
	ProjectID     int64
	PeriodEndDate time.Time
	Status        PeriodStatus
	ClosedAt      *time.Time
	ClosedBy      *int64
	ClosureNotes  string
	ReopenedAt    *time.Time
	ReopenedBy    *int64
	ReopenReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CloseInput bundles parameters for closing the books through a date.
type CloseInput struct {
	ProjectID     int64
	PeriodEndDate time.Time
	Notes         string
}

// Validate ensures close input coherence.
func (in CloseInput) Validate() error {
	if in.ProjectID == 0 {
		return errors.New("periods: project id required")
	}
	if in.PeriodEndDate.IsZero() {
		return errors.New("periods: period end date required")
	}
	return nil
}

// ReopenInput bundles parameters for reopening a closed period.
type ReopenInput struct {
	PeriodID int64
	Reason   string
}

// Validate enforces the mandatory reopen reason.
func (in ReopenInput) Validate() error {
	if in.PeriodID == 0 {
		return errors.New("periods: period id required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ErrReopenReasonRequired
	}
	return nil
}

var (
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = errors.New("periods: not found")
	// ErrAlreadyClosed indicates a close against an already-closed range.
	ErrAlreadyClosed = errors.New("periods: already closed")
	// ErrAlreadyOpen indicates a reopen against an open period.
	ErrAlreadyOpen = errors.New("periods: already open")
	// ErrReopenReasonRequired enforces the audit trail on reopen.
	ErrReopenReasonRequired = errors.New("periods: reopen reason required")
	// ErrOpenReconciliation blocks closing while a bank reconciliation is
	// still in progress for the covered range.
	ErrOpenReconciliation = errors.New("periods: reconciliation in progress for range")
)
