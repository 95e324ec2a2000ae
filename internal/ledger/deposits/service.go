package deposits

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

// DefaultEquityAccountCode is the conventional customer-deposit liability
// code used when the service config leaves it blank.
const DefaultEquityAccountCode = "2905"

// AuditPort records deposit mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AccountDirectory resolves accounts by conventional code within an owner
// scope.
type AccountDirectory interface {
	GetByCode(ctx context.Context, ownerID int64, code string) (accounts.Account, error)
}

// ServiceConfig tunes account conventions.
type ServiceConfig struct {
	EquityAccountCode string
}

type Service struct {
	repo       Repository
	dir        AccountDirectory
	guard      journals.PeriodGuard
	audit      AuditPort
	equityCode string
	now        func() time.Time
}

func NewService(repo Repository, dir AccountDirectory, guard journals.PeriodGuard, audit AuditPort, cfg ServiceConfig) *Service {
	code := cfg.EquityAccountCode
	if code == "" {
		code = DefaultEquityAccountCode
	}
	return &Service{repo: repo, dir: dir, guard: guard, audit: audit, equityCode: code, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// VerifyConfiguration checks the customer-deposit account exists for an
// owner. Called at startup so misconfiguration surfaces before the first
// customer payment, and re-checked defensively at posting time.
func (s *Service) VerifyConfiguration(ctx context.Context, ownerID int64) error {
	_, err := s.equityAccount(ctx, ownerID)
	return err
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, depositID int64) (Deposit, error) {
	return s.repo.Get(ctx, actor.OwnerID, depositID)
}

func (s *Service) List(ctx context.Context, actor shared.Actor, projectID int64) ([]Deposit, error) {
	return s.repo.List(ctx, actor.OwnerID, projectID)
}

// Create stores a deposit and posts its journal entry in one transaction:
// a single bank debit for the total, then one credit per line against the
// line's revenue account or the configured customer-deposit account.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Deposit, error) {
	if err := in.Validate(); err != nil {
		return Deposit{}, err
	}
	var equityAccountID int64
	if hasCustomerPayment(in.Lines) {
		account, err := s.equityAccount(ctx, actor.OwnerID)
		if err != nil {
			return Deposit{}, err
		}
		equityAccountID = account.ID
	}
	var deposit Deposit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertDeposit(ctx, actor.OwnerID, in)
		if err != nil {
			return err
		}
		for _, lineInput := range in.Lines {
			line, err := tx.InsertDepositLine(ctx, inserted.ID, lineInput)
			if err != nil {
				return err
			}
			inserted.Lines = append(inserted.Lines, line)
		}
		posting := journals.PostingInput{
			EntryDate:   in.DepositDate,
			Description: depositDescription(inserted),
			SourceType:  journals.SourceDeposit,
			SourceID:    uuid.New(),
			ProjectID:   &inserted.ProjectID,
			Lines:       depositPostingLines(inserted, equityAccountID),
		}
		entry, err := journals.PostEntryTx(ctx, tx, s.guard, actor.OwnerID, posting, false, s.now())
		if err != nil {
			return err
		}
		if err := tx.SetJournalEntry(ctx, inserted.ID, entry.ID); err != nil {
			return err
		}
		inserted.JournalEntryID = &entry.ID
		deposit = inserted
		return nil
	})
	if err != nil {
		return Deposit{}, err
	}
	s.record(ctx, actor, "deposit.create", deposit.ID, map[string]any{"total": deposit.TotalAmount.String()})
	return deposit, nil
}

// Update patches a deposit's date, memo, or individual line amounts. The
// deposit rows and the linked journal entry change in the same
// transaction; journal lines not touched by the patch keep their amounts.
func (s *Service) Update(ctx context.Context, actor shared.Actor, in UpdateInput) (Deposit, error) {
	if err := in.Validate(); err != nil {
		return Deposit{}, err
	}
	var deposit Deposit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDepositForUpdate(ctx, actor.OwnerID, in.DepositID)
		if err != nil {
			return err
		}
		lines, err := tx.GetDepositLines(ctx, current.ID)
		if err != nil {
			return err
		}
		byID := map[int64]int{}
		for idx, line := range lines {
			byID[line.ID] = idx
		}
		for lineID := range in.LineAmounts {
			if _, ok := byID[lineID]; !ok {
				return fmt.Errorf("%w: %d", ErrUnknownLine, lineID)
			}
		}
		if current.JournalEntryID == nil {
			return ledgershared.ErrJournalNotFound
		}
		entry, journalLines, err := tx.GetEntryWithLines(ctx, actor.OwnerID, *current.JournalEntryID)
		if err != nil {
			return err
		}
		if entry.ReversedAt != nil {
			return ledgershared.ErrEntryReversed
		}
		newDate := current.DepositDate
		if in.DepositDate != nil {
			newDate = *in.DepositDate
		}
		if s.guard != nil {
			if err := s.guard.EnsureOpenForDate(ctx, actor.OwnerID, current.ProjectID, entry.EntryDate); err != nil {
				return err
			}
			if err := s.guard.EnsureOpenForDate(ctx, actor.OwnerID, current.ProjectID, newDate); err != nil {
				return err
			}
		}
		var total money.Cents
		for idx, line := range lines {
			if amount, ok := in.LineAmounts[line.ID]; ok {
				lines[idx].Amount = amount
			}
			total += lines[idx].Amount
		}
		memo := current.Memo
		if in.Memo != nil {
			memo = *in.Memo
		}
		if err := tx.UpdateDepositHeader(ctx, current.ID, newDate, memo, total); err != nil {
			return err
		}
		for lineID, amount := range in.LineAmounts {
			if err := tx.UpdateDepositLineAmount(ctx, lineID, amount); err != nil {
				return err
			}
		}
		current.DepositDate = newDate
		current.Memo = memo
		current.TotalAmount = total
		if err := tx.UpdateEntryHeader(ctx, entry.ID, newDate, depositDescription(current)); err != nil {
			return err
		}
		if err := patchJournalLines(ctx, tx, current, lines, journalLines, in.LineAmounts, total); err != nil {
			return err
		}
		current.Lines = lines
		deposit = current
		return nil
	})
	if err != nil {
		return Deposit{}, err
	}
	s.record(ctx, actor, "deposit.update", deposit.ID, map[string]any{"total": deposit.TotalAmount.String()})
	return deposit, nil
}

// patchJournalLines rewrites the bank debit to the new total and every
// credit whose deposit line was patched. Credits were inserted in deposit
// line order, so position links the two sets.
func patchJournalLines(ctx context.Context, tx TxRepository, deposit Deposit, lines []DepositLine, journalLines []journals.JournalLine, patched map[int64]money.Cents, total money.Cents) error {
	var credits []journals.JournalLine
	var bankLine *journals.JournalLine
	for idx, jl := range journalLines {
		if jl.Debit > 0 && jl.AccountID == deposit.BankAccountID {
			bankLine = &journalLines[idx]
			continue
		}
		if jl.Credit > 0 {
			credits = append(credits, jl)
		}
	}
	if bankLine == nil || len(credits) != len(lines) {
		return ledgershared.ErrJournalNotFound
	}
	if err := tx.UpdateJournalLineAmounts(ctx, bankLine.ID, total, 0); err != nil {
		return err
	}
	for idx, line := range lines {
		amount, ok := patched[line.ID]
		if !ok {
			continue
		}
		if err := tx.UpdateJournalLineAmounts(ctx, credits[idx].ID, 0, amount); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) equityAccount(ctx context.Context, ownerID int64) (accounts.Account, error) {
	account, err := s.dir.GetByCode(ctx, ownerID, s.equityCode)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return accounts.Account{}, ErrMissingEquityAccount
		}
		return accounts.Account{}, err
	}
	return account, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  actor.OwnerID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "deposit",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func hasCustomerPayment(lines []CreateLineInput) bool {
	for _, line := range lines {
		if line.Kind == KindCustomerPayment {
			return true
		}
	}
	return false
}

func depositPostingLines(deposit Deposit, equityAccountID int64) []journals.PostingLineInput {
	out := make([]journals.PostingLineInput, 0, len(deposit.Lines)+1)
	projectID := deposit.ProjectID
	out = append(out, journals.PostingLineInput{
		AccountID: deposit.BankAccountID,
		Debit:     deposit.TotalAmount,
		ProjectID: &projectID,
	})
	for _, line := range deposit.Lines {
		accountID := equityAccountID
		if line.Kind == KindRevenue && line.AccountID != nil {
			accountID = *line.AccountID
		}
		out = append(out, journals.PostingLineInput{
			AccountID:  accountID,
			Credit:     line.Amount,
			ProjectID:  &projectID,
			CostCodeID: line.CostCodeID,
		})
	}
	return out
}

func depositDescription(deposit Deposit) string {
	if deposit.Memo != "" {
		return deposit.Memo
	}
	return fmt.Sprintf("Deposit %d", deposit.ID)
}
