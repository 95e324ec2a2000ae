package journals_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/journals"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/shared"
)

type fakeJournalRepo struct {
	entries  map[int64]journals.JournalEntry
	lines    map[int64][]journals.JournalLine
	accounts map[int64]bool
	nextID   int64
}

func newFakeJournalRepo(accountIDs ...int64) *fakeJournalRepo {
	f := &fakeJournalRepo{
		entries:  map[int64]journals.JournalEntry{},
		lines:    map[int64][]journals.JournalLine{},
		accounts: map[int64]bool{},
	}
	for _, id := range accountIDs {
		f.accounts[id] = true
	}
	return f
}

func (f *fakeJournalRepo) List(_ context.Context, ownerID int64, limit, offset int) ([]journals.JournalEntry, int, error) {
	var all []journals.JournalEntry
	for _, e := range f.entries {
		if e.OwnerID == ownerID {
			all = append(all, e)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeJournalRepo) Get(ctx context.Context, ownerID, entryID int64) (journals.JournalEntry, error) {
	entry, lines, err := f.GetEntryWithLines(ctx, ownerID, entryID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (f *fakeJournalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeJournalRepo) InsertEntry(_ context.Context, ownerID int64, in journals.PostingInput, isReversal bool, postedAt time.Time) (journals.JournalEntry, error) {
	f.nextID++
	entry := journals.JournalEntry{
		ID:          f.nextID,
		OwnerID:     ownerID,
		EntryDate:   in.EntryDate,
		Description: in.Description,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		ProjectID:   in.ProjectID,
		PostedAt:    &postedAt,
		IsReversal:  isReversal,
	}
	f.entries[entry.ID] = entry
	return entry, nil
}

func (f *fakeJournalRepo) InsertLines(_ context.Context, entryID int64, lines []journals.PostingLineInput) error {
	for _, line := range lines {
		f.nextID++
		f.lines[entryID] = append(f.lines[entryID], journals.JournalLine{
			ID:         f.nextID,
			EntryID:    entryID,
			AccountID:  line.AccountID,
			ProjectID:  line.ProjectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
			Debit:      line.Debit,
			Credit:     line.Credit,
		})
	}
	return nil
}

func (f *fakeJournalRepo) GetEntryWithLines(_ context.Context, ownerID, entryID int64) (journals.JournalEntry, []journals.JournalLine, error) {
	entry, ok := f.entries[entryID]
	if !ok || entry.OwnerID != ownerID {
		return journals.JournalEntry{}, nil, ledgershared.ErrJournalNotFound
	}
	return entry, f.lines[entryID], nil
}

func (f *fakeJournalRepo) MarkReversed(_ context.Context, entryID int64, at time.Time) error {
	entry, ok := f.entries[entryID]
	if !ok || entry.ReversedAt != nil {
		return ledgershared.ErrEntryReversed
	}
	entry.ReversedAt = &at
	f.entries[entryID] = entry
	return nil
}

func (f *fakeJournalRepo) DeleteEntry(_ context.Context, ownerID, entryID int64) error {
	entry, ok := f.entries[entryID]
	if !ok || entry.OwnerID != ownerID {
		return ledgershared.ErrJournalNotFound
	}
	delete(f.entries, entryID)
	delete(f.lines, entryID)
	return nil
}

func (f *fakeJournalRepo) MissingAccounts(_ context.Context, _ int64, accountIDs []int64) ([]int64, error) {
	var missing []int64
	for _, id := range accountIDs {
		if !f.accounts[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type guardFunc func(ctx context.Context, ownerID, projectID int64, date time.Time) error

func (g guardFunc) EnsureOpenForDate(ctx context.Context, ownerID, projectID int64, date time.Time) error {
	return g(ctx, ownerID, projectID, date)
}

func actor(perms ...string) shared.Actor {
	return shared.NewActor(42, 1, perms...)
}

func balancedInput() journals.PostingInput {
	return journals.PostingInput{
		EntryDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Description: "Progress billing",
		SourceType:  journals.SourceManual,
		SourceID:    uuid.New(),
		Lines: []journals.PostingLineInput{
			{AccountID: 1, Debit: money.MustParse("250.00")},
			{AccountID: 2, Credit: money.MustParse("250.00")},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	entry, err := svc.Post(context.Background(), actor(), balancedInput())
	require.NoError(t, err)
	require.True(t, entry.Posted())
	require.Len(t, repo.lines[entry.ID], 2)
}

func TestPostValidation(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	in := balancedInput()
	in.Lines[1].Credit = money.MustParse("250.01")
	_, err := svc.Post(context.Background(), actor(), in)
	require.ErrorIs(t, err, ledgershared.ErrUnbalanced)

	in = balancedInput()
	in.Lines = in.Lines[:1]
	_, err = svc.Post(context.Background(), actor(), in)
	require.ErrorIs(t, err, ledgershared.ErrTooFewLines)

	in = balancedInput()
	in.Lines[0].Credit = in.Lines[0].Debit
	_, err = svc.Post(context.Background(), actor(), in)
	require.Error(t, err)
}

func TestPostUnknownAccount(t *testing.T) {
	repo := newFakeJournalRepo(1)
	svc := journals.NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), actor(), balancedInput())
	require.ErrorIs(t, err, ledgershared.ErrUnknownAccount)
	require.Empty(t, repo.entries)
}

func TestPostClosedPeriod(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	guard := guardFunc(func(_ context.Context, _, _ int64, _ time.Time) error {
		return ledgershared.ErrPeriodClosed
	})
	svc := journals.NewService(repo, nil, guard)

	in := balancedInput()
	projectID := int64(3)
	in.ProjectID = &projectID
	_, err := svc.Post(context.Background(), actor(), in)
	require.ErrorIs(t, err, ledgershared.ErrPeriodClosed)
	require.Empty(t, repo.entries)
}

func TestReverseSwapsSidesAndStampsOriginal(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	entry, err := svc.Post(context.Background(), actor(), balancedInput())
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), actor(), journals.ReverseInput{EntryID: entry.ID})
	require.NoError(t, err)
	require.True(t, reversal.IsReversal)

	lines := repo.lines[reversal.ID]
	require.Len(t, lines, 2)
	require.Equal(t, money.MustParse("250.00"), lines[0].Credit)
	require.Equal(t, money.MustParse("250.00"), lines[1].Debit)

	require.NotNil(t, repo.entries[entry.ID].ReversedAt)

	// A reversed entry cannot be reversed again.
	_, err = svc.Reverse(context.Background(), actor(), journals.ReverseInput{EntryID: entry.ID})
	require.ErrorIs(t, err, ledgershared.ErrEntryReversed)
}

func TestDeleteNeedsPermission(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	entry, err := svc.Post(context.Background(), actor(), balancedInput())
	require.NoError(t, err)

	err = svc.DeleteWithOwnerCheck(context.Background(), actor(), journals.DeleteInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = svc.DeleteWithOwnerCheck(context.Background(), actor(shared.PermDeleteJournal), journals.DeleteInput{
		EntryID: entry.ID, Reason: "duplicate import",
	})
	require.NoError(t, err)
	require.Empty(t, repo.entries)
}

func TestDeleteOtherOwnerEntry(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	entry, err := svc.Post(context.Background(), actor(), balancedInput())
	require.NoError(t, err)

	other := shared.NewActor(43, 2, shared.PermDeleteJournal)
	err = svc.DeleteWithOwnerCheck(context.Background(), other, journals.DeleteInput{
		EntryID: entry.ID, Reason: "not mine",
	})
	require.ErrorIs(t, err, ledgershared.ErrJournalNotFound)
}

func TestListPaginates(t *testing.T) {
	repo := newFakeJournalRepo(1, 2)
	svc := journals.NewService(repo, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := svc.Post(context.Background(), actor(), balancedInput())
		require.NoError(t, err)
	}

	entries, meta, err := svc.List(context.Background(), actor(), 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 5, meta.Total)
	require.Equal(t, 3, meta.TotalPages)

	entries, meta, err = svc.List(context.Background(), actor(), 3, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 3, meta.Page)
}
