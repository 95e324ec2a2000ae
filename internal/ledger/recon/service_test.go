package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/recon"
	"github.com/buildledger/buildledger/internal/shared"
)

type clearable struct {
	reconciled       bool
	reconciliationID *uuid.UUID
}

type fakeReconRepo struct {
	recons map[uuid.UUID]recon.BankReconciliation
	rows   map[recon.TxKind]map[int64]*clearable
}

func newFakeReconRepo() *fakeReconRepo {
	return &fakeReconRepo{
		recons: map[uuid.UUID]recon.BankReconciliation{},
		rows: map[recon.TxKind]map[int64]*clearable{
			recon.TxBill:        {},
			recon.TxDeposit:     {},
			recon.TxJournalLine: {},
		},
	}
}

func (f *fakeReconRepo) addRow(kind recon.TxKind, id int64) {
	f.rows[kind][id] = &clearable{}
}

func (f *fakeReconRepo) Insert(_ context.Context, ownerID int64, in recon.StartInput) (recon.BankReconciliation, error) {
	rec := recon.BankReconciliation{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		BankAccountID:    in.BankAccountID,
		StatementDate:    in.StatementDate,
		StatementBalance: in.StatementBalance,
		Status:           recon.StatusInProgress,
	}
	f.recons[rec.ID] = rec
	return rec, nil
}

func (f *fakeReconRepo) Get(_ context.Context, ownerID int64, id uuid.UUID) (recon.BankReconciliation, error) {
	rec, ok := f.recons[id]
	if !ok || rec.OwnerID != ownerID {
		return recon.BankReconciliation{}, recon.ErrNotFound
	}
	return rec, nil
}

func (f *fakeReconRepo) List(_ context.Context, ownerID int64) ([]recon.BankReconciliation, error) {
	var out []recon.BankReconciliation
	for _, rec := range f.recons {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeReconRepo) HasInProgressForAccount(_ context.Context, ownerID, bankAccountID int64) (bool, error) {
	for _, rec := range f.recons {
		if rec.OwnerID == ownerID && rec.BankAccountID == bankAccountID && rec.Status == recon.StatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReconRepo) HasInProgressThrough(_ context.Context, ownerID int64, through time.Time) (bool, error) {
	for _, rec := range f.recons {
		if rec.OwnerID == ownerID && rec.Status == recon.StatusInProgress && !rec.StatementDate.After(through) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReconRepo) SetTransactionCleared(_ context.Context, _ int64, ref recon.TxRef, reconciliationID *uuid.UUID) error {
	row, ok := f.rows[ref.Kind][ref.ID]
	if !ok {
		return recon.ErrUnknownTransaction
	}
	row.reconciled = reconciliationID != nil
	row.reconciliationID = reconciliationID
	return nil
}

func (f *fakeReconRepo) SetStatus(_ context.Context, ownerID int64, id uuid.UUID, status recon.Status, completedAt *time.Time) error {
	rec, ok := f.recons[id]
	if !ok || rec.OwnerID != ownerID {
		return recon.ErrNotFound
	}
	rec.Status = status
	rec.CompletedAt = completedAt
	f.recons[id] = rec
	return nil
}

func (f *fakeReconRepo) WithTx(ctx context.Context, fn func(context.Context, recon.TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeReconRepo) GetForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (recon.BankReconciliation, error) {
	return f.Get(ctx, ownerID, id)
}

func (f *fakeReconRepo) ClearReferences(_ context.Context, _ int64, id uuid.UUID) (recon.ResetResult, error) {
	var result recon.ResetResult
	counts := map[recon.TxKind]*int64{
		recon.TxBill:        &result.Bills,
		recon.TxDeposit:     &result.Deposits,
		recon.TxJournalLine: &result.JournalLines,
	}
	for kind, rows := range f.rows {
		for _, row := range rows {
			if row.reconciliationID != nil && *row.reconciliationID == id {
				row.reconciled = false
				row.reconciliationID = nil
				*counts[kind]++
			}
		}
	}
	return result, nil
}

func (f *fakeReconRepo) DeleteReconciliation(_ context.Context, ownerID int64, id uuid.UUID) error {
	rec, ok := f.recons[id]
	if !ok || rec.OwnerID != ownerID {
		return recon.ErrNotFound
	}
	delete(f.recons, id)
	return nil
}

func actor(perms ...string) shared.Actor {
	return shared.NewActor(42, 1, perms...)
}

func start(t *testing.T, svc *recon.Service) recon.BankReconciliation {
	t.Helper()
	rec, err := svc.Start(context.Background(), actor(), recon.StartInput{
		BankAccountID:    100,
		StatementDate:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		StatementBalance: money.MustParse("12500.00"),
	})
	require.NoError(t, err)
	return rec
}

func TestStartRejectsSecondOpenReconciliation(t *testing.T) {
	repo := newFakeReconRepo()
	svc := recon.NewService(repo, nil)
	start(t, svc)

	_, err := svc.Start(context.Background(), actor(), recon.StartInput{
		BankAccountID:    100,
		StatementDate:    time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		StatementBalance: money.MustParse("9000.00"),
	})
	require.ErrorIs(t, err, recon.ErrAlreadyInProgress)
}

func TestMarkAndUnmark(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addRow(recon.TxBill, 1)
	svc := recon.NewService(repo, nil)
	rec := start(t, svc)

	ref := recon.TxRef{Kind: recon.TxBill, ID: 1}
	require.NoError(t, svc.Mark(context.Background(), actor(), rec.ID, ref))
	require.True(t, repo.rows[recon.TxBill][1].reconciled)

	require.NoError(t, svc.Unmark(context.Background(), actor(), rec.ID, ref))
	require.False(t, repo.rows[recon.TxBill][1].reconciled)

	err := svc.Mark(context.Background(), actor(), rec.ID, recon.TxRef{Kind: recon.TxDeposit, ID: 77})
	require.ErrorIs(t, err, recon.ErrUnknownTransaction)
}

func TestCompleteIsTerminalForMarks(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addRow(recon.TxBill, 1)
	svc := recon.NewService(repo, nil)
	rec := start(t, svc)

	completed, err := svc.Complete(context.Background(), actor(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, recon.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	err = svc.Mark(context.Background(), actor(), rec.ID, recon.TxRef{Kind: recon.TxBill, ID: 1})
	require.ErrorIs(t, err, recon.ErrNotInProgress)
	_, err = svc.Complete(context.Background(), actor(), rec.ID)
	require.ErrorIs(t, err, recon.ErrNotInProgress)
}

func TestResetReleasesEverythingAndDeletes(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addRow(recon.TxBill, 1)
	repo.addRow(recon.TxBill, 2)
	repo.addRow(recon.TxDeposit, 3)
	repo.addRow(recon.TxJournalLine, 4)
	svc := recon.NewService(repo, nil)
	rec := start(t, svc)

	for _, ref := range []recon.TxRef{
		{Kind: recon.TxBill, ID: 1},
		{Kind: recon.TxBill, ID: 2},
		{Kind: recon.TxDeposit, ID: 3},
		{Kind: recon.TxJournalLine, ID: 4},
	} {
		require.NoError(t, svc.Mark(context.Background(), actor(), rec.ID, ref))
	}

	result, err := svc.Reset(context.Background(), actor(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Bills)
	require.Equal(t, int64(1), result.Deposits)
	require.Equal(t, int64(1), result.JournalLines)

	// No dangling references and no reconciliation row remain.
	for kind, rows := range repo.rows {
		for id, row := range rows {
			require.False(t, row.reconciled, "%s %d still reconciled", kind, id)
			require.Nil(t, row.reconciliationID)
		}
	}
	_, err = svc.Get(context.Background(), actor(), rec.ID)
	require.ErrorIs(t, err, recon.ErrNotFound)
}

func TestUndoNeedsPermissionAndCompletedStatus(t *testing.T) {
	repo := newFakeReconRepo()
	svc := recon.NewService(repo, nil)
	rec := start(t, svc)

	_, err := svc.Undo(context.Background(), actor(), rec.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Undo(context.Background(), actor(shared.PermUndoReconciliation), rec.ID)
	require.ErrorIs(t, err, recon.ErrNotCompleted)

	_, err = svc.Complete(context.Background(), actor(), rec.ID)
	require.NoError(t, err)

	reopened, err := svc.Undo(context.Background(), actor(shared.PermUndoReconciliation), rec.ID)
	require.NoError(t, err)
	require.Equal(t, recon.StatusInProgress, reopened.Status)
	require.Nil(t, reopened.CompletedAt)
}

func TestHasInProgressThrough(t *testing.T) {
	repo := newFakeReconRepo()
	svc := recon.NewService(repo, nil)
	start(t, svc)

	open, err := svc.HasInProgressThrough(context.Background(), 1, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, open)

	open, err = svc.HasInProgressThrough(context.Background(), 1, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, open)
}
