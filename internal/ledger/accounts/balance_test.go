package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/ledger/journals"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/ledger/money"
)

// ledgerStore backs both the account registry and the journal engine so
// balances can be derived from posted lines the way the SQL repository
// does: every posted entry counts, reversals included, and an
// original/reversal pair nets to zero.
type ledgerStore struct {
	*fakeAccountRepo
	entries map[int64]journals.JournalEntry
	lines   map[int64][]journals.JournalLine
	nextID  int64
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{
		fakeAccountRepo: newFakeAccountRepo(),
		entries:         map[int64]journals.JournalEntry{},
		lines:           map[int64][]journals.JournalLine{},
	}
}

func (s *ledgerStore) Balance(_ context.Context, _, accountID int64, asOf time.Time) (accounts.Balance, error) {
	balance := accounts.Balance{AccountID: accountID, AsOf: asOf}
	for entryID, lines := range s.lines {
		entry := s.entries[entryID]
		if entry.PostedAt == nil || entry.EntryDate.After(asOf) {
			continue
		}
		for _, line := range lines {
			if line.AccountID != accountID {
				continue
			}
			balance.Debits += line.Debit
			balance.Credits += line.Credit
		}
	}
	balance.Net = balance.Debits - balance.Credits
	return balance, nil
}

// journalFacade adapts ledgerStore to the journals repository contract;
// its List and Get signatures collide with the account registry's, so
// they live on a separate type.
type journalFacade struct {
	store *ledgerStore
}

func (f journalFacade) List(_ context.Context, ownerID int64, limit, offset int) ([]journals.JournalEntry, int, error) {
	var all []journals.JournalEntry
	for _, e := range f.store.entries {
		if e.OwnerID == ownerID {
			all = append(all, e)
		}
	}
	return all, len(all), nil
}

func (f journalFacade) Get(ctx context.Context, ownerID, entryID int64) (journals.JournalEntry, error) {
	entry, lines, err := f.store.GetEntryWithLines(ctx, ownerID, entryID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (f journalFacade) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return fn(ctx, f.store)
}

func (s *ledgerStore) InsertEntry(_ context.Context, ownerID int64, in journals.PostingInput, isReversal bool, postedAt time.Time) (journals.JournalEntry, error) {
	s.nextID++
	entry := journals.JournalEntry{
		ID:          s.nextID,
		OwnerID:     ownerID,
		EntryDate:   in.EntryDate,
		Description: in.Description,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		ProjectID:   in.ProjectID,
		PostedAt:    &postedAt,
		IsReversal:  isReversal,
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *ledgerStore) InsertLines(_ context.Context, entryID int64, lines []journals.PostingLineInput) error {
	for _, line := range lines {
		s.nextID++
		s.lines[entryID] = append(s.lines[entryID], journals.JournalLine{
			ID:        s.nextID,
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return nil
}

func (s *ledgerStore) GetEntryWithLines(_ context.Context, ownerID, entryID int64) (journals.JournalEntry, []journals.JournalLine, error) {
	entry, ok := s.entries[entryID]
	if !ok || entry.OwnerID != ownerID {
		return journals.JournalEntry{}, nil, ledgershared.ErrJournalNotFound
	}
	return entry, s.lines[entryID], nil
}

func (s *ledgerStore) MarkReversed(_ context.Context, entryID int64, at time.Time) error {
	entry, ok := s.entries[entryID]
	if !ok || entry.ReversedAt != nil {
		return ledgershared.ErrEntryReversed
	}
	entry.ReversedAt = &at
	s.entries[entryID] = entry
	return nil
}

func (s *ledgerStore) DeleteEntry(_ context.Context, ownerID, entryID int64) error {
	entry, ok := s.entries[entryID]
	if !ok || entry.OwnerID != ownerID {
		return ledgershared.ErrJournalNotFound
	}
	delete(s.entries, entryID)
	delete(s.lines, entryID)
	return nil
}

func (s *ledgerStore) MissingAccounts(_ context.Context, ownerID int64, accountIDs []int64) ([]int64, error) {
	var missing []int64
	for _, id := range accountIDs {
		if a, ok := s.accounts[id]; !ok || a.OwnerID != ownerID {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func TestBalanceNetsToZeroAfterReversal(t *testing.T) {
	store := newLedgerStore()
	accountSvc := accounts.NewService(store, nil)
	journalSvc := journals.NewService(journalFacade{store: store}, nil, nil)

	cash, err := accountSvc.Create(context.Background(), actor(), accounts.CreateInput{
		Code: "1000", Name: "Operating Cash", Type: accounts.AccountTypeAsset,
	})
	require.NoError(t, err)
	revenue, err := accountSvc.Create(context.Background(), actor(), accounts.CreateInput{
		Code: "4000", Name: "Home Sales Revenue", Type: accounts.AccountTypeRevenue,
	})
	require.NoError(t, err)

	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	entry, err := journalSvc.Post(context.Background(), actor(), journals.PostingInput{
		EntryDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Description: "Closing proceeds",
		SourceType:  journals.SourceManual,
		SourceID:    uuid.New(),
		Lines: []journals.PostingLineInput{
			{AccountID: cash.ID, Debit: money.MustParse("250.00")},
			{AccountID: revenue.ID, Credit: money.MustParse("250.00")},
		},
	})
	require.NoError(t, err)

	balance, err := accountSvc.Balance(context.Background(), actor(), cash.ID, asOf)
	require.NoError(t, err)
	require.Equal(t, money.MustParse("250.00"), balance.Net)

	_, err = journalSvc.Reverse(context.Background(), actor(), journals.ReverseInput{EntryID: entry.ID})
	require.NoError(t, err)

	// The pair must cancel: dropping either side of it from the sum
	// would report +250.00 or -250.00 instead.
	balance, err = accountSvc.Balance(context.Background(), actor(), cash.ID, asOf)
	require.NoError(t, err)
	require.Equal(t, money.Cents(0), balance.Net)
	require.Equal(t, money.MustParse("250.00"), balance.Debits)
	require.Equal(t, money.MustParse("250.00"), balance.Credits)

	balance, err = accountSvc.Balance(context.Background(), actor(), revenue.ID, asOf)
	require.NoError(t, err)
	require.Equal(t, money.Cents(0), balance.Net)
}
