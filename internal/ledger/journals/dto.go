package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/shared"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID  int64
	Debit      money.Cents
	Credit     money.Cents
	ProjectID  *int64
	LotID      *int64
	CostCodeID *int64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EntryDate   time.Time
	Description string
	SourceType  SourceType
	SourceID    uuid.UUID
	ProjectID   *int64
	Lines       []PostingLineInput
}

// Validate ensures posting input meets minimum criteria: at least two
// lines, every line strictly one-sided, and debits equal to credits exact
// to the cent.
func (in PostingInput) Validate() error {
	if in.EntryDate.IsZero() {
		return errors.New("journals: entry date required")
	}
	if in.SourceType == "" {
		return errors.New("journals: source type required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("journals: source id required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit money.Cents
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("journals: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("journals: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("journals: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("journals: line %d has no amount", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return shared.ErrUnbalanced
	}
	return nil
}

// projectIDs collects the distinct projects the posting touches, from the
// entry header and every dimensional line tag.
func (in PostingInput) projectIDs() []int64 {
	seen := map[int64]struct{}{}
	if in.ProjectID != nil && *in.ProjectID != 0 {
		seen[*in.ProjectID] = struct{}{}
	}
	for _, line := range in.Lines {
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

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	Description string
	// EntryDate defaults to the original entry's date when zero.
	EntryDate time.Time
}

// DeleteInput wraps parameters for the period-aware delete escape hatch.
type DeleteInput struct {
	EntryID int64
	Reason  string
}
