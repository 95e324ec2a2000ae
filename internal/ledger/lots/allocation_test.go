package lots_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/lots"
	"github.com/buildledger/buildledger/internal/ledger/money"
)

func TestEvenSplitLastLotAbsorbsRemainder(t *testing.T) {
	split, err := lots.EvenSplit(money.MustParse("100.00"), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("33.33"), split[1])
	require.Equal(t, money.MustParse("33.33"), split[2])
	require.Equal(t, money.MustParse("33.34"), split[3])

	var sum money.Cents
	for _, amount := range split {
		sum += amount
	}
	require.Equal(t, money.MustParse("100.00"), sum)
}

func TestEvenSplitTinyAmounts(t *testing.T) {
	split, err := lots.EvenSplit(money.MustParse("0.03"), []int64{1, 2, 3})
	require.NoError(t, err)
	for _, id := range []int64{1, 2, 3} {
		require.Equal(t, money.MustParse("0.01"), split[id])
	}

	_, err = lots.EvenSplit(money.MustParse("10.00"), nil)
	require.ErrorIs(t, err, lots.ErrNoLotsSelected)
}

func TestValidateManual(t *testing.T) {
	total := money.MustParse("100.00")
	require.NoError(t, lots.ValidateManual(total, map[int64]money.Cents{
		1: money.MustParse("60.00"),
		2: money.MustParse("40.00"),
	}))
	// One cent off is tolerated.
	require.NoError(t, lots.ValidateManual(total, map[int64]money.Cents{
		1: money.MustParse("60.00"),
		2: money.MustParse("40.01"),
	}))
	require.ErrorIs(t, lots.ValidateManual(total, map[int64]money.Cents{
		1: money.MustParse("60.00"),
		2: money.MustParse("50.00"),
	}), lots.ErrAllocationMismatch)
}

func TestAllocatorToggleRecomputesEvenSplit(t *testing.T) {
	a := lots.NewAllocator(money.MustParse("100.00"))
	a.ToggleLot(1)
	a.ToggleLot(2)
	a.ToggleLot(3)
	require.Equal(t, money.MustParse("33.34"), a.Allocations()[3])

	// Dropping a lot respreads the total over the remaining two.
	a.ToggleLot(2)
	alloc := a.Allocations()
	require.Len(t, alloc, 2)
	require.Equal(t, money.MustParse("50.00"), alloc[1])
	require.Equal(t, money.MustParse("50.00"), alloc[3])
	require.NoError(t, a.Validate())
}

func TestAllocatorSetAmountSwitchesToManual(t *testing.T) {
	a := lots.NewAllocator(money.MustParse("100.00"))
	a.ToggleLot(1)
	a.ToggleLot(2)
	a.SetAmount(1, money.MustParse("70.00"))
	require.True(t, a.Manual())

	// Toggling in manual mode no longer respreads pinned amounts.
	a.ToggleLot(3)
	require.Equal(t, money.MustParse("70.00"), a.Allocations()[1])
	require.Equal(t, money.Cents(0), a.Allocations()[3])

	require.ErrorIs(t, a.Validate(), lots.ErrAllocationMismatch)
	a.SetAmount(2, money.MustParse("20.00"))
	a.SetAmount(3, money.MustParse("10.00"))
	require.NoError(t, a.Validate())
}
