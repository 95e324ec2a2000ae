package periods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/periods"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/shared"
)

type fakePeriodRepo struct {
	periods map[int64]periods.Period
	nextID  int64
}

func newFakePeriodRepo() *fakePeriodRepo {
	return &fakePeriodRepo{periods: map[int64]periods.Period{}}
}

func (f *fakePeriodRepo) Get(_ context.Context, ownerID, periodID int64) (periods.Period, error) {
	p, ok := f.periods[periodID]
	if !ok || p.OwnerID != ownerID {
		return periods.Period{}, periods.ErrPeriodNotFound
	}
	return p, nil
}

func (f *fakePeriodRepo) ListByProject(_ context.Context, ownerID, projectID int64) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range f.periods {
		if p.OwnerID == ownerID && p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePeriodRepo) LatestClosedEndDate(_ context.Context, ownerID, projectID int64, date time.Time) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, p := range f.periods {
		if p.OwnerID == ownerID && p.ProjectID == projectID && p.Status == periods.PeriodStatusClosed && !p.PeriodEndDate.Before(date) {
			if !found || p.PeriodEndDate.After(latest) {
				latest = p.PeriodEndDate
				found = true
			}
		}
	}
	return latest, found, nil
}

func (f *fakePeriodRepo) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakePeriodRepo) GetForUpdate(ctx context.Context, ownerID, periodID int64) (periods.Period, error) {
	return f.Get(ctx, ownerID, periodID)
}

func (f *fakePeriodRepo) FindByEndDateForUpdate(_ context.Context, ownerID, projectID int64, endDate time.Time) (periods.Period, error) {
	for _, p := range f.periods {
		if p.OwnerID == ownerID && p.ProjectID == projectID && p.PeriodEndDate.Equal(endDate) {
			return p, nil
		}
	}
	return periods.Period{}, periods.ErrPeriodNotFound
}

func (f *fakePeriodRepo) Insert(_ context.Context, ownerID int64, in periods.CloseInput, status periods.PeriodStatus, actorID int64, at time.Time) (periods.Period, error) {
	f.nextID++
	p := periods.Period{
		ID:            f.nextID,
		OwnerID:       ownerID,
		ProjectID:     in.ProjectID,
		PeriodEndDate: in.PeriodEndDate,
		Status:        status,
		ClosedAt:      &at,
		ClosedBy:      &actorID,
		ClosureNotes:  in.Notes,
	}
	f.periods[p.ID] = p
	return p, nil
}

func (f *fakePeriodRepo) MarkClosed(_ context.Context, periodID, actorID int64, notes string, at time.Time) error {
	p, ok := f.periods[periodID]
	if !ok {
		return periods.ErrPeriodNotFound
	}
	p.Status = periods.PeriodStatusClosed
	p.ClosedAt = &at
	p.ClosedBy = &actorID
	p.ClosureNotes = notes
	f.periods[periodID] = p
	return nil
}

func (f *fakePeriodRepo) MarkReopened(_ context.Context, periodID, actorID int64, reason string, at time.Time) error {
	p, ok := f.periods[periodID]
	if !ok {
		return periods.ErrPeriodNotFound
	}
	p.Status = periods.PeriodStatusOpen
	p.ReopenedAt = &at
	p.ReopenedBy = &actorID
	p.ReopenReason = reason
	f.periods[periodID] = p
	return nil
}

type fakeRecon struct {
	open bool
}

func (f fakeRecon) HasInProgressThrough(context.Context, int64, time.Time) (bool, error) {
	return f.open, nil
}

func closer() shared.Actor {
	return shared.NewActor(42, 1, shared.PermCloseBooks)
}

func june30() time.Time {
	return time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
}

func TestCloseRequiresPermission(t *testing.T) {
	svc := periods.NewService(newFakePeriodRepo(), fakeRecon{}, nil)
	_, err := svc.Close(context.Background(), shared.NewActor(42, 1), periods.CloseInput{
		ProjectID: 3, PeriodEndDate: june30(),
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCloseBlockedByOpenReconciliation(t *testing.T) {
	svc := periods.NewService(newFakePeriodRepo(), fakeRecon{open: true}, nil)
	_, err := svc.Close(context.Background(), closer(), periods.CloseInput{
		ProjectID: 3, PeriodEndDate: june30(),
	})
	require.ErrorIs(t, err, periods.ErrOpenReconciliation)
}

func TestCloseThenGuardThenReopen(t *testing.T) {
	repo := newFakePeriodRepo()
	svc := periods.NewService(repo, fakeRecon{}, nil)

	period, err := svc.Close(context.Background(), closer(), periods.CloseInput{
		ProjectID: 3, PeriodEndDate: june30(), Notes: "Q2 close",
	})
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, period.Status)
	require.NotNil(t, period.ClosedAt)

	// Dates inside the closed range are rejected; later dates pass.
	err = svc.EnsureOpenForDate(context.Background(), 1, 3, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ledgershared.ErrPeriodClosed)
	require.NoError(t, svc.EnsureOpenForDate(context.Background(), 1, 3, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))

	// Other projects are unaffected.
	require.NoError(t, svc.EnsureOpenForDate(context.Background(), 1, 9, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))

	_, err = svc.Close(context.Background(), closer(), periods.CloseInput{
		ProjectID: 3, PeriodEndDate: june30(),
	})
	require.ErrorIs(t, err, periods.ErrAlreadyClosed)

	_, err = svc.Reopen(context.Background(), closer(), periods.ReopenInput{PeriodID: period.ID})
	require.ErrorIs(t, err, periods.ErrReopenReasonRequired)

	reopened, err := svc.Reopen(context.Background(), closer(), periods.ReopenInput{
		PeriodID: period.ID, Reason: "late vendor bill",
	})
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, reopened.Status)
	require.Equal(t, "late vendor bill", reopened.ReopenReason)
	require.NotNil(t, reopened.ReopenedAt)

	// Posting into June works again after the reopen.
	require.NoError(t, svc.EnsureOpenForDate(context.Background(), 1, 3, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))

	_, err = svc.Reopen(context.Background(), closer(), periods.ReopenInput{
		PeriodID: period.ID, Reason: "again",
	})
	require.ErrorIs(t, err, periods.ErrAlreadyOpen)
}
