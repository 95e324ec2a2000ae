package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records period lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReconciliationChecker reports whether any bank reconciliation is still
// in progress with a statement date inside the range being closed.
type ReconciliationChecker interface {
	HasInProgressThrough(ctx context.Context, ownerID int64, through time.Time) (bool, error)
}

// Service orchestrates the period close lifecycle and provides the
// posting guard consumed by the journal engine and source adapters.
type Service struct {
	repo  Repository
	recon ReconciliationChecker
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, recon ReconciliationChecker, audit AuditPort) *Service {
	return &Service{repo: repo, recon: recon, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, periodID int64) (Period, error) {
	return s.repo.Get(ctx, actor.OwnerID, periodID)
}

func (s *Service) ListByProject(ctx context.Context, actor shared.Actor, projectID int64) ([]Period, error) {
	return s.repo.ListByProject(ctx, actor.OwnerID, projectID)
}

// Close locks all transactions for the project dated on or before the
// period end date. It refuses while a bank reconciliation is still in
// progress for the covered range.
func (s *Service) Close(ctx context.Context, actor shared.Actor, in CloseInput) (Period, error) {
	if !actor.Can(shared.PermCloseBooks) {
		return Period{}, shared.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if s.recon != nil {
		open, err := s.recon.HasInProgressThrough(ctx, actor.OwnerID, in.PeriodEndDate)
		if err != nil {
			return Period{}, err
		}
		if open {
			return Period{}, ErrOpenReconciliation
		}
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByEndDateForUpdate(ctx, actor.OwnerID, in.ProjectID, in.PeriodEndDate)
		switch {
		case err == nil:
			if existing.Status == PeriodStatusClosed {
				return ErrAlreadyClosed
			}
			if err := tx.MarkClosed(ctx, existing.ID, actor.UserID, in.Notes, s.now()); err != nil {
				return err
			}
			period, err = tx.GetForUpdate(ctx, actor.OwnerID, existing.ID)
			return err
		case errors.Is(err, ErrPeriodNotFound):
			period, err = tx.Insert(ctx, actor.OwnerID, in, PeriodStatusClosed, actor.UserID, s.now())
			return err
		default:
			return err
		}
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "period.close",
			Entity:   "accounting_period",
			EntityID: fmt.Sprintf("%d", period.ID),
			Meta: map[string]any{
				"project_id":      in.ProjectID,
				"period_end_date": in.PeriodEndDate.Format("2006-01-02"),
				"notes":           in.Notes,
			},
			At: s.now(),
		})
	}
	return period, nil
}

// Reopen lifts the lock gate going forward. It does not re-validate
// entries posted while the period was open; the mandatory reason is the
// audit trail for the exception.
func (s *Service) Reopen(ctx context.Context, actor shared.Actor, in ReopenInput) (Period, error) {
	if !actor.Can(shared.PermCloseBooks) {
		return Period{}, shared.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, actor.OwnerID, in.PeriodID)
		if err != nil {
			return err
		}
		if current.Status == PeriodStatusOpen {
			return ErrAlreadyOpen
		}
		if err := tx.MarkReopened(ctx, current.ID, actor.UserID, in.Reason, s.now()); err != nil {
			return err
		}
		period, err = tx.GetForUpdate(ctx, actor.OwnerID, current.ID)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "period.reopen",
			Entity:   "accounting_period",
			EntityID: fmt.Sprintf("%d", in.PeriodID),
			Meta:     map[string]any{"reason": in.Reason},
			At:       s.now(),
		})
	}
	return period, nil
}

// EnsureOpenForDate is the posting guard: it fails with ErrPeriodClosed
// when any closed period for the project covers the date.
func (s *Service) EnsureOpenForDate(ctx context.Context, ownerID, projectID int64, date time.Time) error {
	end, covered, err := s.repo.LatestClosedEndDate(ctx, ownerID, projectID, date)
	if err != nil {
		return err
	}
	if covered {
		return fmt.Errorf("%w: project %d closed through %s", ledgershared.ErrPeriodClosed, projectID, end.Format("2006-01-02"))
	}
	return nil
}
