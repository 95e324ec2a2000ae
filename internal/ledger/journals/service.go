package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	ledgershared "github.com/buildledger/buildledger/internal/ledger/shared"
	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records journal mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PeriodGuard rejects postings dated inside a closed accounting period.
type PeriodGuard interface {
	EnsureOpenForDate(ctx context.Context, ownerID, projectID int64, date time.Time) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	guard PeriodGuard
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort, guard PeriodGuard) *Service {
	return &Service{repo: repo, audit: audit, guard: guard, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, actor shared.Actor, page, perPage int) ([]JournalEntry, shared.Pagination, error) {
	meta := shared.NewPagination(page, perPage, 0)
	entries, total, err := s.repo.List(ctx, actor.OwnerID, meta.PerPage, (meta.Page-1)*meta.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(meta.Page, meta.PerPage, total), nil
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, entryID int64) (JournalEntry, error) {
	return s.repo.Get(ctx, actor.OwnerID, entryID)
}

// Post validates and posts a balanced journal entry. Validation, the
// period guard, the account existence check, and the insert all run inside
// one transaction so a failure leaves no partial entry behind.
func (s *Service) Post(ctx context.Context, actor shared.Actor, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := s.postLocked(ctx, tx, actor.OwnerID, input, false)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"source_type": input.SourceType,
				"source_id":   input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

func (s *Service) postLocked(ctx context.Context, tx TxRepository, ownerID int64, input PostingInput, isReversal bool) (JournalEntry, error) {
	return PostEntryTx(ctx, tx, s.guard, ownerID, input, isReversal, s.now())
}

// PostingExecutor is the subset of transactional primitives a source
// document adapter's transaction must provide so its own rows and the
// generated journal entry commit or roll back together. The journals
// TxRepository satisfies it; bill, payment, and deposit transaction
// repositories implement the same three methods against their own pgx.Tx.
type PostingExecutor interface {
	InsertEntry(ctx context.Context, ownerID int64, in PostingInput, isReversal bool, postedAt time.Time) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	MissingAccounts(ctx context.Context, ownerID int64, accountIDs []int64) ([]int64, error)
}

// PostEntryTx validates and posts a journal entry using an in-flight
// transaction: period guard, account existence re-check, then entry and
// line inserts.
func PostEntryTx(ctx context.Context, tx PostingExecutor, guard PeriodGuard, ownerID int64, input PostingInput, isReversal bool, postedAt time.Time) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if guard != nil {
		for _, projectID := range input.projectIDs() {
			if err := guard.EnsureOpenForDate(ctx, ownerID, projectID, input.EntryDate); err != nil {
				return JournalEntry{}, err
			}
		}
	}
	accountIDs := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		accountIDs = append(accountIDs, line.AccountID)
	}
	missing, err := tx.MissingAccounts(ctx, ownerID, accountIDs)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(missing) > 0 {
		return JournalEntry{}, fmt.Errorf("%w: account %d", ledgershared.ErrUnknownAccount, missing[0])
	}
	entry, err := tx.InsertEntry(ctx, ownerID, input, isReversal, postedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = toJournalLines(entry.ID, input.Lines)
	return entry, nil
}

// Reverse creates a new entry with debit and credit swapped on every line
// and stamps reversed_at on the original. The original lines are never
// mutated; reversal is the only correction path for posted entries outside
// the explicit delete escape hatch.
func (s *Service) Reverse(ctx context.Context, actor shared.Actor, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("journals: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetEntryWithLines(ctx, actor.OwnerID, input.EntryID)
		if err != nil {
			return err
		}
		if !original.Posted() {
			return ledgershared.ErrInvalidStatus
		}
		if original.ReversedAt != nil {
			return ledgershared.ErrEntryReversed
		}
		// Stamping reversed_at edits the original row, so the original's
		// date must sit in an open period.
		if s.guard != nil {
			for _, projectID := range entryProjects(original, lines) {
				if err := s.guard.EnsureOpenForDate(ctx, actor.OwnerID, projectID, original.EntryDate); err != nil {
					return err
				}
			}
		}
		entryDate := input.EntryDate
		if entryDate.IsZero() {
			entryDate = original.EntryDate
		}
		posting := PostingInput{
			EntryDate:   entryDate,
			Description: defaultReversalDescription(input.Description, original.ID),
			SourceType:  original.SourceType,
			SourceID:    uuid.New(),
			ProjectID:   original.ProjectID,
			Lines:       ReverseLines(lines),
		}
		inserted, err := s.postLocked(ctx, tx, actor.OwnerID, posting, true)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, s.now()); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", input.EntryID),
			Meta:     map[string]any{"reversal_id": reversal.ID},
			At:       s.now(),
		})
	}
	return reversal, nil
}

// DeleteWithOwnerCheck is the period-aware escape hatch for removing a
// posted entry outright. It demands an explicit permission and still
// refuses when the entry's date falls in a closed period.
func (s *Service) DeleteWithOwnerCheck(ctx context.Context, actor shared.Actor, input DeleteInput) error {
	if input.EntryID == 0 {
		return errors.New("journals: entry id required")
	}
	if !actor.Can(shared.PermDeleteJournal) {
		return shared.ErrForbidden
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, lines, err := tx.GetEntryWithLines(ctx, actor.OwnerID, input.EntryID)
		if err != nil {
			return err
		}
		if s.guard != nil {
			for _, projectID := range entryProjects(entry, lines) {
				if err := s.guard.EnsureOpenForDate(ctx, actor.OwnerID, projectID, entry.EntryDate); err != nil {
					return err
				}
			}
		}
		return tx.DeleteEntry(ctx, actor.OwnerID, input.EntryID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "journal.delete",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", input.EntryID),
			Meta:     map[string]any{"reason": input.Reason},
			At:       s.now(),
		})
	}
	return nil
}

// ReverseLines swaps debit and credit on every line, preserving the
// dimensional tags.
func ReverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:  line.AccountID,
			Debit:      line.Credit,
			Credit:     line.Debit,
			ProjectID:  line.ProjectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:    entryID,
			AccountID:  line.AccountID,
			ProjectID:  line.ProjectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
			Debit:      line.Debit,
			Credit:     line.Credit,
		})
	}
	return out
}

func entryProjects(entry JournalEntry, lines []JournalLine) []int64 {
	seen := map[int64]struct{}{}
	if entry.ProjectID != nil && *entry.ProjectID != 0 {
		seen[*entry.ProjectID] = struct{}{}
	}
	for _, line := range lines {
		if line.ProjectID != nil && *line.ProjectID != 0 {
			seen[*line.ProjectID] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func defaultReversalDescription(description string, originalID int64) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("Reversal of JE %d", originalID)
}
