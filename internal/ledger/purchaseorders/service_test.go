package purchaseorders_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/ledger/bills"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/purchaseorders"
	"github.com/buildledger/buildledger/internal/shared"
)

type fakeBills struct {
	bills map[int64]bills.Bill
}

func (f *fakeBills) Get(_ context.Context, ownerID, billID int64) (bills.Bill, error) {
	bill, ok := f.bills[billID]
	if !ok || bill.OwnerID != ownerID {
		return bills.Bill{}, bills.ErrBillNotFound
	}
	return bill, nil
}

func (f *fakeBills) List(_ context.Context, ownerID int64, filter bills.ListFilter) ([]bills.Bill, error) {
	var out []bills.Bill
	for _, bill := range f.bills {
		if bill.OwnerID != ownerID {
			continue
		}
		if filter.ProjectID != 0 && bill.ProjectID != filter.ProjectID {
			continue
		}
		out = append(out, bill)
	}
	return out, nil
}

type fakePORepo struct {
	pos    map[int64]purchaseorders.PurchaseOrder
	source *fakeBills
	nextID int64
}

func (f *fakePORepo) Insert(_ context.Context, ownerID int64, in purchaseorders.CreateInput) (purchaseorders.PurchaseOrder, error) {
	for _, po := range f.pos {
		if po.OwnerID == ownerID && po.PONumber == in.PONumber {
			return purchaseorders.PurchaseOrder{}, purchaseorders.ErrDuplicatePONumber
		}
	}
	f.nextID++
	po := purchaseorders.PurchaseOrder{
		ID:          f.nextID,
		OwnerID:     ownerID,
		ProjectID:   in.ProjectID,
		VendorID:    in.VendorID,
		CostCodeID:  in.CostCodeID,
		PONumber:    in.PONumber,
		Description: in.Description,
		TotalAmount: in.TotalAmount,
	}
	f.pos[po.ID] = po
	return po, nil
}

func (f *fakePORepo) Update(_ context.Context, ownerID int64, in purchaseorders.UpdateInput) (purchaseorders.PurchaseOrder, error) {
	po, ok := f.pos[in.POID]
	if !ok || po.OwnerID != ownerID {
		return purchaseorders.PurchaseOrder{}, purchaseorders.ErrPONotFound
	}
	if in.Description != nil {
		po.Description = *in.Description
	}
	if in.TotalAmount != nil {
		po.TotalAmount = *in.TotalAmount
	}
	f.pos[in.POID] = po
	return po, nil
}

func (f *fakePORepo) Delete(_ context.Context, ownerID, poID int64) error {
	po, ok := f.pos[poID]
	if !ok || po.OwnerID != ownerID {
		return purchaseorders.ErrPONotFound
	}
	delete(f.pos, poID)
	return nil
}

func (f *fakePORepo) Get(_ context.Context, ownerID, poID int64) (purchaseorders.PurchaseOrder, error) {
	po, ok := f.pos[poID]
	if !ok || po.OwnerID != ownerID {
		return purchaseorders.PurchaseOrder{}, purchaseorders.ErrPONotFound
	}
	return po, nil
}

func (f *fakePORepo) List(_ context.Context, ownerID, projectID int64) ([]purchaseorders.PurchaseOrder, error) {
	var out []purchaseorders.PurchaseOrder
	for _, po := range f.pos {
		if po.OwnerID == ownerID && (projectID == 0 || po.ProjectID == projectID) {
			out = append(out, po)
		}
	}
	return out, nil
}

func (f *fakePORepo) GetByKey(_ context.Context, ownerID, projectID, vendorID int64, costCodeID *int64) (purchaseorders.PurchaseOrder, error) {
	for _, po := range f.pos {
		if po.OwnerID == ownerID && po.ProjectID == projectID && po.VendorID == vendorID && intPtrEq(po.CostCodeID, costCodeID) {
			return po, nil
		}
	}
	return purchaseorders.PurchaseOrder{}, purchaseorders.ErrPONotFound
}

func (f *fakePORepo) BilledTotals(_ context.Context, ownerID int64, poIDs []int64) (map[int64]money.Cents, error) {
	totals := map[int64]money.Cents{}
	for _, poID := range poIDs {
		po, ok := f.pos[poID]
		if !ok {
			continue
		}
		for _, bill := range f.source.bills {
			if bill.OwnerID != ownerID {
				continue
			}
			switch bill.Status {
			case bills.BillStatusPosted, bills.BillStatusPartial, bills.BillStatusPaid:
			default:
				continue
			}
			for _, line := range bill.Lines {
				switch line.POLink.Kind {
				case bills.POLinkExplicit:
					if line.POLink.POID == po.ID {
						totals[poID] += line.Amount
					}
				case bills.POLinkAuto:
					if bill.ProjectID == po.ProjectID && bill.VendorID == po.VendorID && intPtrEq(line.CostCodeID, po.CostCodeID) {
						totals[poID] += line.Amount
					}
				}
			}
		}
	}
	return totals, nil
}

func (f *fakePORepo) ListProjectIDs(_ context.Context, ownerID int64) ([]int64, error) {
	seen := map[int64]struct{}{}
	var out []int64
	for _, po := range f.pos {
		if po.OwnerID != ownerID {
			continue
		}
		if _, ok := seen[po.ProjectID]; !ok {
			seen[po.ProjectID] = struct{}{}
			out = append(out, po.ProjectID)
		}
	}
	return out, nil
}

func intPtrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func actor() shared.Actor {
	return shared.NewActor(42, 1)
}

func newMatcher(t *testing.T) (*purchaseorders.Service, *fakePORepo, *fakeBills) {
	t.Helper()
	source := &fakeBills{bills: map[int64]bills.Bill{}}
	repo := &fakePORepo{pos: map[int64]purchaseorders.PurchaseOrder{}, source: source}
	return purchaseorders.NewService(repo, source, nil, nil), repo, source
}

func addBill(source *fakeBills, id, projectID, vendorID int64, status bills.BillStatus, lines ...bills.BillLine) {
	source.bills[id] = bills.Bill{
		ID:        id,
		OwnerID:   1,
		VendorID:  vendorID,
		ProjectID: projectID,
		Status:    status,
		Lines:     lines,
	}
}

func TestMatchCompositeKey(t *testing.T) {
	svc, _, source := newMatcher(t)
	costCode := int64(510)
	_, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, CostCodeID: &costCode, PONumber: "PO-100", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)

	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("600.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	match := matches[1]
	require.Equal(t, purchaseorders.BillMatched, match.Status)
	require.Len(t, match.Lines, 1)
	require.Equal(t, "PO-100", match.Lines[0].PONumber)
	require.Equal(t, money.MustParse("600.00"), match.Lines[0].TotalBilled)
	require.Equal(t, money.MustParse("400.00"), match.Lines[0].Remaining)
}

func TestMatchExplicitLinkWinsOverComposite(t *testing.T) {
	svc, _, source := newMatcher(t)
	_, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, PONumber: "PO-AUTO", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)
	pinned, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 9, VendorID: 8, PONumber: "PO-PINNED", TotalAmount: money.MustParse("700.00"),
	})
	require.NoError(t, err)

	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.ExplicitPO(pinned.ID), Amount: money.MustParse("100.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, "PO-PINNED", matches[1].Lines[0].PONumber)
}

func TestMatchOverBilling(t *testing.T) {
	svc, _, source := newMatcher(t)
	costCode := int64(510)
	_, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, CostCodeID: &costCode, PONumber: "PO-100", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)

	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("600.00")})
	addBill(source, 2, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 21, BillID: 2, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("500.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1, 2})
	require.NoError(t, err)
	for _, billID := range []int64{1, 2} {
		match := matches[billID]
		require.Equal(t, purchaseorders.BillOverPO, match.Status)
		require.Equal(t, money.MustParse("1100.00"), match.Lines[0].TotalBilled)
		require.Equal(t, money.MustParse("-100.00"), match.Lines[0].Remaining)
		require.Equal(t, purchaseorders.LineOverPO, match.Lines[0].Status)
	}
}

func TestMatchSkipsOptedOutLines(t *testing.T) {
	svc, _, source := newMatcher(t)
	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.NoPO(), Amount: money.MustParse("600.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, purchaseorders.BillNoPO, matches[1].Status)
	require.Empty(t, matches[1].Lines)
}

func TestMatchIgnoresAutoLinesWithoutCostCode(t *testing.T) {
	svc, _, source := newMatcher(t)
	costCode := int64(510)
	_, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, CostCodeID: &costCode, PONumber: "PO-100", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)

	// The uncoded line has no key to match on, so it sits out of the
	// projection. The bill stays fully matched instead of partial.
	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("600.00")},
		bills.BillLine{ID: 12, BillID: 1, POLink: bills.AutoMatch(), Amount: money.MustParse("50.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	match := matches[1]
	require.Equal(t, purchaseorders.BillMatched, match.Status)
	require.Len(t, match.Lines, 1)
	require.Equal(t, int64(11), match.Lines[0].BillLineID)
}

func TestMatchPartialAndDanglingExplicit(t *testing.T) {
	svc, _, source := newMatcher(t)
	costCode := int64(510)
	_, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, CostCodeID: &costCode, PONumber: "PO-100", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)

	// One auto line resolves; the dangling explicit link degrades rather
	// than erroring.
	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("400.00")},
		bills.BillLine{ID: 12, BillID: 1, POLink: bills.ExplicitPO(999), Amount: money.MustParse("200.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	match := matches[1]
	require.Equal(t, purchaseorders.BillPartial, match.Status)
	require.Len(t, match.Lines, 2)
	require.True(t, match.Lines[0].Matched)
	require.False(t, match.Lines[1].Matched)
}

func TestMatchUsesCacheUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := purchaseorders.NewCache(rdb, time.Minute)

	source := &fakeBills{bills: map[int64]bills.Bill{}}
	repo := &fakePORepo{pos: map[int64]purchaseorders.PurchaseOrder{}, source: source}
	svc := purchaseorders.NewService(repo, source, cache, nil)

	costCode := int64(510)
	po, err := svc.Create(context.Background(), actor(), purchaseorders.CreateInput{
		ProjectID: 3, VendorID: 7, CostCodeID: &costCode, PONumber: "PO-100", TotalAmount: money.MustParse("1000.00"),
	})
	require.NoError(t, err)
	addBill(source, 1, 3, 7, bills.BillStatusPosted,
		bills.BillLine{ID: 11, BillID: 1, POLink: bills.AutoMatch(), CostCodeID: &costCode, Amount: money.MustParse("600.00")})

	matches, err := svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("400.00"), matches[1].Lines[0].Remaining)

	// A direct repo mutation is invisible while the projection is cached.
	raised := money.MustParse("2000.00")
	fresh := repo.pos[po.ID]
	fresh.TotalAmount = raised
	repo.pos[po.ID] = fresh

	matches, err = svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("400.00"), matches[1].Lines[0].Remaining)

	cache.Invalidate(context.Background(), actor().OwnerID)
	matches, err = svc.Match(context.Background(), actor(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("1400.00"), matches[1].Lines[0].Remaining)
}
