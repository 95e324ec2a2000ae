package lots

import (
	"fmt"

	"github.com/buildledger/buildledger/internal/ledger/money"
)

// EvenSplit divides a total across the selected lots in whole cents. Each
// lot gets the floored share and the last selected lot absorbs the
// remainder, so the parts always sum back to the total exactly.
func EvenSplit(total money.Cents, lotIDs []int64) (map[int64]money.Cents, error) {
	if len(lotIDs) == 0 {
		return nil, ErrNoLotsSelected
	}
	n := money.Cents(len(lotIDs))
	share := total / n
	out := make(map[int64]money.Cents, len(lotIDs))
	for _, id := range lotIDs {
		out[id] = share
	}
	out[lotIDs[len(lotIDs)-1]] += total - share*n
	return out, nil
}

// ValidateManual checks that manual allocations sum to the total within
// one cent.
func ValidateManual(total money.Cents, amounts map[int64]money.Cents) error {
	if len(amounts) == 0 {
		return ErrNoLotsSelected
	}
	var sum money.Cents
	for _, amount := range amounts {
		sum += amount
	}
	if !money.WithinTolerance(sum, total) {
		return fmt.Errorf("%w: %s vs %s", ErrAllocationMismatch, sum, total)
	}
	return nil
}

// Allocator is an in-memory allocation session for spreading a cost
// across lots. It starts in even-split mode; setting any explicit amount
// switches it to manual and stops recomputation on toggle.
type Allocator struct {
	total    money.Cents
	selected []int64
	amounts  map[int64]money.Cents
	manual   bool
}

func NewAllocator(total money.Cents) *Allocator {
	return &Allocator{total: total, amounts: map[int64]money.Cents{}}
}

// ToggleLot adds or removes a lot from the selection. In even-split mode
// the amounts are recomputed over the remaining selection; in manual mode
// a removed lot just drops its amount and an added lot starts at zero.
func (a *Allocator) ToggleLot(lotID int64) {
	for idx, id := range a.selected {
		if id == lotID {
			a.selected = append(a.selected[:idx], a.selected[idx+1:]...)
			delete(a.amounts, lotID)
			if !a.manual {
				a.recompute()
			}
			return
		}
	}
	a.selected = append(a.selected, lotID)
	if a.manual {
		a.amounts[lotID] = 0
		return
	}
	a.recompute()
}

// SetAmount pins an explicit amount on a selected lot and switches the
// session to manual mode.
func (a *Allocator) SetAmount(lotID int64, amount money.Cents) {
	found := false
	for _, id := range a.selected {
		if id == lotID {
			found = true
			break
		}
	}
	if !found {
		a.selected = append(a.selected, lotID)
	}
	a.manual = true
	a.amounts[lotID] = amount
}

// Manual reports whether the session has switched to manual amounts.
func (a *Allocator) Manual() bool { return a.manual }

// Allocations returns a copy of the current per-lot amounts.
func (a *Allocator) Allocations() map[int64]money.Cents {
	out := make(map[int64]money.Cents, len(a.amounts))
	for id, amount := range a.amounts {
		out[id] = amount
	}
	return out
}

// Validate checks the session can be committed: even-split sessions are
// exact by construction, manual sessions must sum within one cent.
func (a *Allocator) Validate() error {
	if len(a.selected) == 0 {
		return ErrNoLotsSelected
	}
	if !a.manual {
		return nil
	}
	return ValidateManual(a.total, a.amounts)
}

func (a *Allocator) recompute() {
	a.amounts = map[int64]money.Cents{}
	if len(a.selected) == 0 {
		return
	}
	split, err := EvenSplit(a.total, a.selected)
	if err != nil {
		return
	}
	a.amounts = split
}
