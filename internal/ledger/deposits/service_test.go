package deposits_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/ledger/deposits"
	"github.com/buildledger/buildledger/internal/ledger/journals"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/shared"
)

type fakeDepositRepo struct {
	deposits   map[int64]deposits.Deposit
	lines      map[int64][]deposits.DepositLine
	entries    map[int64]journals.JournalEntry
	entryLines map[int64][]journals.JournalLine
	nextID     int64
}

func newFakeDepositRepo() *fakeDepositRepo {
	return &fakeDepositRepo{
		deposits:   map[int64]deposits.Deposit{},
		lines:      map[int64][]deposits.DepositLine{},
		entries:    map[int64]journals.JournalEntry{},
		entryLines: map[int64][]journals.JournalLine{},
	}
}

func (f *fakeDepositRepo) next() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeDepositRepo) Get(_ context.Context, ownerID, depositID int64) (deposits.Deposit, error) {
	d, ok := f.deposits[depositID]
	if !ok || d.OwnerID != ownerID {
		return deposits.Deposit{}, deposits.ErrDepositNotFound
	}
	d.Lines = f.lines[depositID]
	return d, nil
}

func (f *fakeDepositRepo) List(_ context.Context, ownerID, projectID int64) ([]deposits.Deposit, error) {
	var out []deposits.Deposit
	for _, d := range f.deposits {
		if d.OwnerID == ownerID && (projectID == 0 || d.ProjectID == projectID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDepositRepo) WithTx(ctx context.Context, fn func(context.Context, deposits.TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeDepositRepo) InsertDeposit(_ context.Context, ownerID int64, in deposits.CreateInput) (deposits.Deposit, error) {
	d := deposits.Deposit{
		ID:            f.next(),
		OwnerID:       ownerID,
		ProjectID:     in.ProjectID,
		BankAccountID: in.BankAccountID,
		DepositDate:   in.DepositDate,
		TotalAmount:   in.TotalAmount,
		Memo:          in.Memo,
	}
	f.deposits[d.ID] = d
	return d, nil
}

func (f *fakeDepositRepo) InsertDepositLine(_ context.Context, depositID int64, in deposits.CreateLineInput) (deposits.DepositLine, error) {
	line := deposits.DepositLine{
		ID:         f.next(),
		DepositID:  depositID,
		Kind:       in.Kind,
		AccountID:  in.AccountID,
		CostCodeID: in.CostCodeID,
		Amount:     in.Amount,
	}
	f.lines[depositID] = append(f.lines[depositID], line)
	return line, nil
}

func (f *fakeDepositRepo) GetDepositForUpdate(ctx context.Context, ownerID, depositID int64) (deposits.Deposit, error) {
	return f.Get(ctx, ownerID, depositID)
}

func (f *fakeDepositRepo) GetDepositLines(_ context.Context, depositID int64) ([]deposits.DepositLine, error) {
	return f.lines[depositID], nil
}

func (f *fakeDepositRepo) SetJournalEntry(_ context.Context, depositID, entryID int64) error {
	d := f.deposits[depositID]
	d.JournalEntryID = &entryID
	f.deposits[depositID] = d
	return nil
}

func (f *fakeDepositRepo) UpdateDepositHeader(_ context.Context, depositID int64, date time.Time, memo string, total money.Cents) error {
	d, ok := f.deposits[depositID]
	if !ok {
		return deposits.ErrDepositNotFound
	}
	d.DepositDate = date
	d.Memo = memo
	d.TotalAmount = total
	f.deposits[depositID] = d
	return nil
}

func (f *fakeDepositRepo) UpdateDepositLineAmount(_ context.Context, lineID int64, amount money.Cents) error {
	for depositID, lines := range f.lines {
		for idx, line := range lines {
			if line.ID == lineID {
				f.lines[depositID][idx].Amount = amount
				return nil
			}
		}
	}
	return deposits.ErrUnknownLine
}

func (f *fakeDepositRepo) UpdateEntryHeader(_ context.Context, entryID int64, date time.Time, description string) error {
	entry := f.entries[entryID]
	entry.EntryDate = date
	entry.Description = description
	f.entries[entryID] = entry
	return nil
}

func (f *fakeDepositRepo) UpdateJournalLineAmounts(_ context.Context, lineID int64, debit, credit money.Cents) error {
	for entryID, lines := range f.entryLines {
		for idx, line := range lines {
			if line.ID == lineID {
				f.entryLines[entryID][idx].Debit = debit
				f.entryLines[entryID][idx].Credit = credit
				return nil
			}
		}
	}
	return ledgershared.ErrJournalNotFound
}

func (f *fakeDepositRepo) InsertEntry(_ context.Context, ownerID int64, in journals.PostingInput, isReversal bool, postedAt time.Time) (journals.JournalEntry, error) {
	entry := journals.JournalEntry{
		ID:          f.next(),
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

func (f *fakeDepositRepo) InsertLines(_ context.Context, entryID int64, lines []journals.PostingLineInput) error {
	for _, line := range lines {
		f.entryLines[entryID] = append(f.entryLines[entryID], journals.JournalLine{
			ID:         f.next(),
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

func (f *fakeDepositRepo) GetEntryWithLines(_ context.Context, ownerID, entryID int64) (journals.JournalEntry, []journals.JournalLine, error) {
	entry, ok := f.entries[entryID]
	if !ok || entry.OwnerID != ownerID {
		return journals.JournalEntry{}, nil, ledgershared.ErrJournalNotFound
	}
	return entry, f.entryLines[entryID], nil
}

func (f *fakeDepositRepo) MarkReversed(_ context.Context, entryID int64, at time.Time) error {
	entry := f.entries[entryID]
	entry.ReversedAt = &at
	f.entries[entryID] = entry
	return nil
}

func (f *fakeDepositRepo) DeleteEntry(_ context.Context, _, entryID int64) error {
	delete(f.entries, entryID)
	delete(f.entryLines, entryID)
	return nil
}

func (f *fakeDepositRepo) MissingAccounts(_ context.Context, _ int64, _ []int64) ([]int64, error) {
	return nil, nil
}

type fakeDirectory struct {
	byCode map[string]accounts.Account
}

func (f *fakeDirectory) GetByCode(_ context.Context, _ int64, code string) (accounts.Account, error) {
	account, ok := f.byCode[code]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return account, nil
}

const (
	bankAccount    = int64(100)
	revenueAccount = int64(200)
	equityAccount  = int64(300)
)

func newDepositService(t *testing.T) (*deposits.Service, *fakeDepositRepo) {
	t.Helper()
	repo := newFakeDepositRepo()
	dir := &fakeDirectory{byCode: map[string]accounts.Account{
		"2905": {ID: equityAccount, Code: "2905", Name: "Customer Deposits", Type: accounts.AccountTypeEquity},
	}}
	svc := deposits.NewService(repo, dir, nil, nil, deposits.ServiceConfig{})
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func actor() shared.Actor {
	return shared.NewActor(42, 1)
}

func revenueLine(amount string) deposits.CreateLineInput {
	id := revenueAccount
	return deposits.CreateLineInput{Kind: deposits.KindRevenue, AccountID: &id, Amount: money.MustParse(amount)}
}

func customerLine(amount string) deposits.CreateLineInput {
	return deposits.CreateLineInput{Kind: deposits.KindCustomerPayment, Amount: money.MustParse(amount)}
}

func TestCreatePostsBankDebitAndCredits(t *testing.T) {
	svc, repo := newDepositService(t)

	deposit, err := svc.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("1500.00"),
		Lines: []deposits.CreateLineInput{
			revenueLine("1000.00"),
			customerLine("500.00"),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, deposit.JournalEntryID)

	lines := repo.entryLines[*deposit.JournalEntryID]
	require.Len(t, lines, 3)
	require.Equal(t, bankAccount, lines[0].AccountID)
	require.Equal(t, money.MustParse("1500.00"), lines[0].Debit)
	require.Equal(t, revenueAccount, lines[1].AccountID)
	require.Equal(t, money.MustParse("1000.00"), lines[1].Credit)
	require.Equal(t, equityAccount, lines[2].AccountID)
	require.Equal(t, money.MustParse("500.00"), lines[2].Credit)
}

func TestCreateRequiresEquityAccountForCustomerPayments(t *testing.T) {
	_, repo := newDepositService(t)
	bare := deposits.NewService(repo, &fakeDirectory{byCode: map[string]accounts.Account{}}, nil, nil, deposits.ServiceConfig{})

	_, err := bare.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("500.00"),
		Lines:         []deposits.CreateLineInput{customerLine("500.00")},
	})
	require.ErrorIs(t, err, deposits.ErrMissingEquityAccount)

	// Revenue-only deposits never touch the customer-deposit account.
	_, err = bare.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("500.00"),
		Lines:         []deposits.CreateLineInput{revenueLine("500.00")},
	})
	require.NoError(t, err)
}

func TestCreateRejectsLineSumMismatch(t *testing.T) {
	svc, _ := newDepositService(t)
	_, err := svc.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("1000.00"),
		Lines:         []deposits.CreateLineInput{revenueLine("900.00")},
	})
	require.ErrorIs(t, err, deposits.ErrLineSumMismatch)

	_, err = svc.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("1000.00"),
		Lines:         []deposits.CreateLineInput{revenueLine("999.99")},
	})
	require.ErrorIs(t, err, deposits.ErrLineSumMismatch)
}

func TestUpdatePatchesDepositAndJournal(t *testing.T) {
	svc, repo := newDepositService(t)
	deposit, err := svc.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("1500.00"),
		Lines: []deposits.CreateLineInput{
			revenueLine("1000.00"),
			customerLine("500.00"),
		},
	})
	require.NoError(t, err)

	newDate := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	memo := "June draw"
	updated, err := svc.Update(context.Background(), actor(), deposits.UpdateInput{
		DepositID:   deposit.ID,
		DepositDate: &newDate,
		Memo:        &memo,
		LineAmounts: map[int64]money.Cents{deposit.Lines[0].ID: money.MustParse("1200.00")},
	})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("1700.00"), updated.TotalAmount)
	require.Equal(t, memo, updated.Memo)

	entry := repo.entries[*deposit.JournalEntryID]
	require.Equal(t, newDate, entry.EntryDate)
	require.Equal(t, memo, entry.Description)

	lines := repo.entryLines[*deposit.JournalEntryID]
	require.Equal(t, money.MustParse("1700.00"), lines[0].Debit)
	require.Equal(t, money.MustParse("1200.00"), lines[1].Credit)
	// The untouched customer-payment credit keeps its amount.
	require.Equal(t, money.MustParse("500.00"), lines[2].Credit)

	var debits, credits money.Cents
	for _, line := range lines {
		debits += line.Debit
		credits += line.Credit
	}
	require.Equal(t, debits, credits)
}

func TestUpdateRejectsUnknownLine(t *testing.T) {
	svc, _ := newDepositService(t)
	deposit, err := svc.Create(context.Background(), actor(), deposits.CreateInput{
		ProjectID:     3,
		BankAccountID: bankAccount,
		DepositDate:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   money.MustParse("500.00"),
		Lines:         []deposits.CreateLineInput{revenueLine("500.00")},
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), actor(), deposits.UpdateInput{
		DepositID:   deposit.ID,
		LineAmounts: map[int64]money.Cents{9999: money.MustParse("100.00")},
	})
	require.ErrorIs(t, err, deposits.ErrUnknownLine)
}
