package bills

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/ledger/journals"
	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/shared"
)

// DefaultAPAccountCode is the conventional accounts payable code used when
// the service config leaves it blank.
const DefaultAPAccountCode = "2000"

// AuditPort records bill mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AccountDirectory resolves accounts by conventional code within an owner
// scope.
type AccountDirectory interface {
	GetByCode(ctx context.Context, ownerID int64, code string) (accounts.Account, error)
}

// MatchCacheInvalidator drops cached PO-match projections after bill
// mutations. May be nil.
type MatchCacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID int64)
}

// ServiceConfig tunes account conventions.
type ServiceConfig struct {
	APAccountCode string
}

type Service struct {
	repo     Repository
	dir      AccountDirectory
	guard    journals.PeriodGuard
	audit    AuditPort
	matches  MatchCacheInvalidator
	apCode   string
	now      func() time.Time
}

func NewService(repo Repository, dir AccountDirectory, guard journals.PeriodGuard, audit AuditPort, matches MatchCacheInvalidator, cfg ServiceConfig) *Service {
	apCode := cfg.APAccountCode
	if apCode == "" {
		apCode = DefaultAPAccountCode
	}
	return &Service{repo: repo, dir: dir, guard: guard, audit: audit, matches: matches, apCode: apCode, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, billID int64) (Bill, error) {
	return s.repo.Get(ctx, actor.OwnerID, billID)
}

func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Bill, error) {
	return s.repo.List(ctx, actor.OwnerID, filter)
}

// Create stores a draft bill with its lines. No journal entry is written
// until the bill posts.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Bill, error) {
	if err := in.Validate(); err != nil {
		return Bill{}, err
	}
	var bill Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertBill(ctx, actor.OwnerID, in)
		if err != nil {
			return err
		}
		for _, lineInput := range in.Lines {
			line, err := tx.InsertBillLine(ctx, inserted.ID, lineInput)
			if err != nil {
				return err
			}
			inserted.Lines = append(inserted.Lines, line)
		}
		bill = inserted
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// Post turns a draft bill into a journal entry: one debit per line against
// its expense or job-cost account, one aggregated accounts payable credit
// for the bill total. Bill row update and journal entry share a
// transaction.
func (s *Service) Post(ctx context.Context, actor shared.Actor, billID int64) (Bill, error) {
	apAccount, err := s.apAccount(ctx, actor.OwnerID)
	if err != nil {
		return Bill{}, err
	}
	var bill Bill
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBillForUpdate(ctx, actor.OwnerID, billID)
		if err != nil {
			return err
		}
		if current.Status != BillStatusDraft {
			return ledgershared.ErrInvalidStatus
		}
		lines, err := tx.GetBillLines(ctx, current.ID)
		if err != nil {
			return err
		}
		var sum money.Cents
		for _, line := range lines {
			sum += line.Amount
		}
		if sum != current.TotalAmount {
			return fmt.Errorf("%w: lines %s vs total %s", ErrLineSumMismatch, sum, current.TotalAmount)
		}
		posting := journals.PostingInput{
			EntryDate:   current.BillDate,
			Description: fmt.Sprintf("Bill %d from vendor %d", current.ID, current.VendorID),
			SourceType:  journals.SourceBill,
			SourceID:    uuid.New(),
			ProjectID:   &current.ProjectID,
			Lines:       billPostingLines(current, lines, apAccount.ID),
		}
		entry, err := journals.PostEntryTx(ctx, tx, s.guard, actor.OwnerID, posting, false, s.now())
		if err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, current.ID, entry.ID); err != nil {
			return err
		}
		current.Status = BillStatusPosted
		current.JournalEntryID = &entry.ID
		current.Lines = lines
		bill = current
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.invalidateMatches(ctx, actor.OwnerID)
	s.record(ctx, actor, "bill.post", bill.ID, map[string]any{"total": bill.TotalAmount.String()})
	return bill, nil
}

// Pay settles one or more bills from a cash, bank, or credit-card
// account. A multi-bill batch pays each bill in full; a single-bill batch
// may carry a partial amount bounded by the remaining balance. The whole
// batch produces one journal entry and commits atomically with the bill
// updates.
func (s *Service) Pay(ctx context.Context, actor shared.Actor, in PayInput) (journals.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return journals.JournalEntry{}, err
	}
	apAccount, err := s.apAccount(ctx, actor.OwnerID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	var entry journals.JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var postingLines []journals.PostingLineInput
		var total money.Cents
		for _, billID := range in.BillIDs {
			bill, err := tx.GetBillForUpdate(ctx, actor.OwnerID, billID)
			if err != nil {
				return err
			}
			if bill.Status != BillStatusPosted && bill.Status != BillStatusPartial {
				if bill.Status == BillStatusPaid {
					return ErrAlreadyPaid
				}
				return ledgershared.ErrInvalidStatus
			}
			amount := bill.Remaining()
			if in.PaymentAmount != nil {
				amount = *in.PaymentAmount
				if amount <= 0 || amount > bill.Remaining() {
					return fmt.Errorf("%w: %s against remaining %s", ErrInvalidPaymentAmount, amount, bill.Remaining())
				}
			}
			paid := bill.AmountPaid + amount
			status := BillStatusPartial
			if paid >= bill.TotalAmount {
				status = BillStatusPaid
			}
			if err := tx.UpdatePayment(ctx, bill.ID, paid, status); err != nil {
				return err
			}
			projectID := bill.ProjectID
			postingLines = append(postingLines, journals.PostingLineInput{
				AccountID: apAccount.ID,
				Debit:     amount,
				ProjectID: &projectID,
			})
			total += amount
		}
		postingLines = append(postingLines, journals.PostingLineInput{
			AccountID: in.PaymentAccountID,
			Credit:    total,
		})
		posting := journals.PostingInput{
			EntryDate:   in.PaymentDate,
			Description: paymentDescription(in),
			SourceType:  journals.SourceBillPayment,
			SourceID:    uuid.New(),
			Lines:       postingLines,
		}
		inserted, err := journals.PostEntryTx(ctx, tx, s.guard, actor.OwnerID, posting, false, s.now())
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	s.invalidateMatches(ctx, actor.OwnerID)
	s.record(ctx, actor, "bill.pay", entry.ID, map[string]any{"bill_ids": in.BillIDs})
	return entry, nil
}

// Reverse backs out a posted, unpaid bill: the posting journal entry gets
// a swapped-line reversal and the bill is marked reversed. Reversed bills
// drop out of PO matching.
func (s *Service) Reverse(ctx context.Context, actor shared.Actor, billID int64) (Bill, error) {
	var bill Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBillForUpdate(ctx, actor.OwnerID, billID)
		if err != nil {
			return err
		}
		if current.Status != BillStatusPosted {
			if current.AmountPaid > 0 {
				return ErrHasPayments
			}
			return ledgershared.ErrInvalidStatus
		}
		if current.AmountPaid > 0 {
			return ErrHasPayments
		}
		if current.JournalEntryID == nil {
			return ledgershared.ErrJournalNotFound
		}
		original, lines, err := tx.GetEntryWithLines(ctx, actor.OwnerID, *current.JournalEntryID)
		if err != nil {
			return err
		}
		if original.ReversedAt != nil {
			return ledgershared.ErrEntryReversed
		}
		if s.guard != nil {
			if err := s.guard.EnsureOpenForDate(ctx, actor.OwnerID, current.ProjectID, original.EntryDate); err != nil {
				return err
			}
		}
		posting := journals.PostingInput{
			EntryDate:   original.EntryDate,
			Description: fmt.Sprintf("Reversal of bill %d", current.ID),
			SourceType:  journals.SourceBill,
			SourceID:    uuid.New(),
			ProjectID:   original.ProjectID,
			Lines:       journals.ReverseLines(lines),
		}
		if _, err := journals.PostEntryTx(ctx, tx, s.guard, actor.OwnerID, posting, true, s.now()); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, s.now()); err != nil {
			return err
		}
		if err := tx.MarkBillReversed(ctx, current.ID, s.now()); err != nil {
			return err
		}
		current.Status = BillStatusReversed
		bill = current
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.invalidateMatches(ctx, actor.OwnerID)
	s.record(ctx, actor, "bill.reverse", billID, nil)
	return bill, nil
}

func (s *Service) apAccount(ctx context.Context, ownerID int64) (accounts.Account, error) {
	account, err := s.dir.GetByCode(ctx, ownerID, s.apCode)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return accounts.Account{}, ErrMissingAPAccount
		}
		return accounts.Account{}, err
	}
	return account, nil
}

func (s *Service) invalidateMatches(ctx context.Context, ownerID int64) {
	if s.matches != nil {
		s.matches.Invalidate(ctx, ownerID)
	}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  actor.OwnerID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "bill",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func billPostingLines(bill Bill, lines []BillLine, apAccountID int64) []journals.PostingLineInput {
	out := make([]journals.PostingLineInput, 0, len(lines)+1)
	projectID := bill.ProjectID
	for _, line := range lines {
		out = append(out, journals.PostingLineInput{
			AccountID:  line.AccountID,
			Debit:      line.Amount,
			ProjectID:  &projectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
		})
	}
	out = append(out, journals.PostingLineInput{
		AccountID: apAccountID,
		Credit:    bill.TotalAmount,
		ProjectID: &projectID,
	})
	return out
}

func paymentDescription(in PayInput) string {
	if in.Memo != "" {
		return in.Memo
	}
	if len(in.BillIDs) == 1 {
		return fmt.Sprintf("Payment for bill %d", in.BillIDs[0])
	}
	return fmt.Sprintf("Payment for %d bills", len(in.BillIDs))
}
