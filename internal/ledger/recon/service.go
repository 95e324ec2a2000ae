package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records reconciliation mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (BankReconciliation, error) {
	return s.repo.Get(ctx, actor.OwnerID, id)
}

func (s *Service) List(ctx context.Context, actor shared.Actor) ([]BankReconciliation, error) {
	return s.repo.List(ctx, actor.OwnerID)
}

// HasInProgressThrough reports whether any reconciliation dated on or
// before the given date is still open. Period close consults this.
func (s *Service) HasInProgressThrough(ctx context.Context, ownerID int64, through time.Time) (bool, error) {
	return s.repo.HasInProgressThrough(ctx, ownerID, through)
}

// Start opens a reconciliation against a bank statement. One open
// reconciliation per bank account at a time.
func (s *Service) Start(ctx context.Context, actor shared.Actor, in StartInput) (BankReconciliation, error) {
	if err := in.Validate(); err != nil {
		return BankReconciliation{}, err
	}
	open, err := s.repo.HasInProgressForAccount(ctx, actor.OwnerID, in.BankAccountID)
	if err != nil {
		return BankReconciliation{}, err
	}
	if open {
		return BankReconciliation{}, ErrAlreadyInProgress
	}
	rec, err := s.repo.Insert(ctx, actor.OwnerID, in)
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, actor, "recon.start", rec.ID, map[string]any{"bank_account_id": in.BankAccountID})
	return rec, nil
}

// Mark clears a transaction against an in-progress reconciliation.
func (s *Service) Mark(ctx context.Context, actor shared.Actor, id uuid.UUID, ref TxRef) error {
	if !ValidTxKind(ref.Kind) {
		return fmt.Errorf("recon: unknown transaction kind %q", ref.Kind)
	}
	rec, err := s.repo.Get(ctx, actor.OwnerID, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusInProgress {
		return ErrNotInProgress
	}
	return s.repo.SetTransactionCleared(ctx, actor.OwnerID, ref, &rec.ID)
}

// Unmark releases a transaction from an in-progress reconciliation.
func (s *Service) Unmark(ctx context.Context, actor shared.Actor, id uuid.UUID, ref TxRef) error {
	if !ValidTxKind(ref.Kind) {
		return fmt.Errorf("recon: unknown transaction kind %q", ref.Kind)
	}
	rec, err := s.repo.Get(ctx, actor.OwnerID, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusInProgress {
		return ErrNotInProgress
	}
	return s.repo.SetTransactionCleared(ctx, actor.OwnerID, ref, nil)
}

// Complete finishes an in-progress reconciliation.
func (s *Service) Complete(ctx context.Context, actor shared.Actor, id uuid.UUID) (BankReconciliation, error) {
	rec, err := s.repo.Get(ctx, actor.OwnerID, id)
	if err != nil {
		return BankReconciliation{}, err
	}
	if rec.Status != StatusInProgress {
		return BankReconciliation{}, ErrNotInProgress
	}
	completedAt := s.now()
	if err := s.repo.SetStatus(ctx, actor.OwnerID, id, StatusCompleted, &completedAt); err != nil {
		return BankReconciliation{}, err
	}
	rec.Status = StatusCompleted
	rec.CompletedAt = &completedAt
	s.record(ctx, actor, "recon.complete", id, nil)
	return rec, nil
}

// Reset aborts a reconciliation: every row it had cleared is released and
// the reconciliation row removed, all in one transaction. A failure
// anywhere rolls the whole reset back, so no row is left pointing at a
// deleted reconciliation.
func (s *Service) Reset(ctx context.Context, actor shared.Actor, id uuid.UUID) (ResetResult, error) {
	var result ResetResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, actor.OwnerID, id); err != nil {
			return err
		}
		cleared, err := tx.ClearReferences(ctx, actor.OwnerID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReconciliation(ctx, actor.OwnerID, id); err != nil {
			return err
		}
		result = cleared
		return nil
	})
	if err != nil {
		return ResetResult{}, err
	}
	s.record(ctx, actor, "recon.reset", id, map[string]any{
		"bills":         result.Bills,
		"deposits":      result.Deposits,
		"journal_lines": result.JournalLines,
	})
	return result, nil
}

// Undo reopens a completed reconciliation. Cleared flags stay in place;
// this only moves the state machine back so marks can change.
func (s *Service) Undo(ctx context.Context, actor shared.Actor, id uuid.UUID) (BankReconciliation, error) {
	if !actor.Can(shared.PermUndoReconciliation) {
		return BankReconciliation{}, shared.ErrForbidden
	}
	rec, err := s.repo.Get(ctx, actor.OwnerID, id)
	if err != nil {
		return BankReconciliation{}, err
	}
	if rec.Status != StatusCompleted {
		return BankReconciliation{}, ErrNotCompleted
	}
	if err := s.repo.SetStatus(ctx, actor.OwnerID, id, StatusInProgress, nil); err != nil {
		return BankReconciliation{}, err
	}
	rec.Status = StatusInProgress
	rec.CompletedAt = nil
	s.record(ctx, actor, "recon.undo", id, nil)
	return rec, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  actor.OwnerID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
