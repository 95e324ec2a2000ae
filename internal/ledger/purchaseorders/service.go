package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/buildledger/buildledger/internal/ledger/bills"
	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records purchase order mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BillSource provides the bills the matching engine projects against.
type BillSource interface {
	Get(ctx context.Context, ownerID, billID int64) (bills.Bill, error)
	List(ctx context.Context, ownerID int64, filter bills.ListFilter) ([]bills.Bill, error)
}

type Service struct {
	repo  Repository
	bills BillSource
	cache *Cache
	audit AuditPort
	group singleflight.Group
	now   func() time.Time
}

func NewService(repo Repository, billSource BillSource, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, bills: billSource, cache: cache, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, poID int64) (PurchaseOrder, error) {
	return s.repo.Get(ctx, actor.OwnerID, poID)
}

func (s *Service) List(ctx context.Context, actor shared.Actor, projectID int64) ([]PurchaseOrder, error) {
	return s.repo.List(ctx, actor.OwnerID, projectID)
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (PurchaseOrder, error) {
	if err := in.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.Insert(ctx, actor.OwnerID, in)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.cache.Invalidate(ctx, actor.OwnerID)
	s.record(ctx, actor, "po.create", po.ID, map[string]any{"po_number": po.PONumber})
	return po, nil
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, in UpdateInput) (PurchaseOrder, error) {
	if in.POID == 0 {
		return PurchaseOrder{}, errors.New("purchaseorders: po id required")
	}
	if in.TotalAmount != nil && *in.TotalAmount <= 0 {
		return PurchaseOrder{}, errors.New("purchaseorders: total amount must be positive")
	}
	po, err := s.repo.Update(ctx, actor.OwnerID, in)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.cache.Invalidate(ctx, actor.OwnerID)
	s.record(ctx, actor, "po.update", po.ID, nil)
	return po, nil
}

func (s *Service) Delete(ctx context.Context, actor shared.Actor, poID int64) error {
	if err := s.repo.Delete(ctx, actor.OwnerID, poID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, actor.OwnerID)
	s.record(ctx, actor, "po.delete", poID, nil)
	return nil
}

// Match projects the given bills against the owner's purchase orders. The
// projection is read-only and tolerant: a dangling explicit link or a key
// with no PO degrades the line to unmatched rather than erroring. Results
// are cached per bill with a short TTL; concurrent recomputes of the same
// bill collapse via singleflight.
func (s *Service) Match(ctx context.Context, actor shared.Actor, billIDs []int64) (map[int64]BillMatch, error) {
	out := make(map[int64]BillMatch, len(billIDs))
	for _, billID := range billIDs {
		if match, ok := s.cache.Get(ctx, actor.OwnerID, billID); ok {
			out[billID] = match
			continue
		}
		key := fmt.Sprintf("%d:%d", actor.OwnerID, billID)
		v, err, _ := s.group.Do(key, func() (any, error) {
			match, err := s.matchBill(ctx, actor.OwnerID, billID)
			if err != nil {
				return nil, err
			}
			s.cache.Set(ctx, actor.OwnerID, match)
			return match, nil
		})
		if err != nil {
			return nil, err
		}
		out[billID] = v.(BillMatch)
	}
	return out, nil
}

// WarmProject recomputes and caches the projection for every countable
// bill in a project. The background warmup task fans out over projects.
func (s *Service) WarmProject(ctx context.Context, ownerID, projectID int64) (int, error) {
	list, err := s.bills.List(ctx, ownerID, bills.ListFilter{ProjectID: projectID})
	if err != nil {
		return 0, err
	}
	warmed := 0
	for _, bill := range list {
		if bill.Status == bills.BillStatusDraft || bill.Status == bills.BillStatusReversed {
			continue
		}
		match, err := s.matchBill(ctx, ownerID, bill.ID)
		if err != nil {
			return warmed, err
		}
		s.cache.Set(ctx, ownerID, match)
		warmed++
	}
	return warmed, nil
}

// ProjectIDs exposes the owner's PO-bearing projects for the warmup task.
func (s *Service) ProjectIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	return s.repo.ListProjectIDs(ctx, ownerID)
}

func (s *Service) matchBill(ctx context.Context, ownerID, billID int64) (BillMatch, error) {
	bill, err := s.bills.Get(ctx, ownerID, billID)
	if err != nil {
		return BillMatch{}, err
	}
	type resolved struct {
		line bills.BillLine
		po   *PurchaseOrder
	}
	var candidates []resolved
	poByID := map[int64]PurchaseOrder{}
	for _, line := range bill.Lines {
		switch line.POLink.Kind {
		case bills.POLinkNone:
			continue
		case bills.POLinkExplicit:
			po, err := s.lookupPO(ctx, ownerID, line.POLink.POID)
			if err != nil {
				return BillMatch{}, err
			}
			candidates = append(candidates, resolved{line: line, po: po})
		case bills.POLinkAuto:
			// Auto linking keys on the cost code. A line without one has
			// nothing to key on, so it sits out of the projection entirely
			// instead of dragging the bill to partial.
			if line.CostCodeID == nil {
				continue
			}
			po, err := s.lookupKey(ctx, ownerID, bill.ProjectID, bill.VendorID, line.CostCodeID)
			if err != nil {
				return BillMatch{}, err
			}
			candidates = append(candidates, resolved{line: line, po: po})
		}
	}
	for _, c := range candidates {
		if c.po != nil {
			poByID[c.po.ID] = *c.po
		}
	}
	poIDs := make([]int64, 0, len(poByID))
	for id := range poByID {
		poIDs = append(poIDs, id)
	}
	billed, err := s.repo.BilledTotals(ctx, ownerID, poIDs)
	if err != nil {
		return BillMatch{}, err
	}

	match := BillMatch{BillID: bill.ID}
	var matched, unmatched, over int
	for _, c := range candidates {
		lm := LineMatch{BillLineID: c.line.ID}
		if c.po == nil {
			unmatched++
			match.Lines = append(match.Lines, lm)
			continue
		}
		lm.Matched = true
		lm.POID = c.po.ID
		lm.PONumber = c.po.PONumber
		lm.POTotal = c.po.TotalAmount
		lm.TotalBilled = billed[c.po.ID]
		lm.Remaining = lm.POTotal - lm.TotalBilled
		if lm.Remaining < 0 {
			lm.Status = LineOverPO
			over++
		} else {
			lm.Status = LineMatched
			matched++
		}
		match.Lines = append(match.Lines, lm)
	}
	switch {
	case over > 0:
		match.Status = BillOverPO
	case matched > 0 && unmatched > 0:
		match.Status = BillPartial
	case matched > 0:
		match.Status = BillMatched
	default:
		match.Status = BillNoPO
	}
	return match, nil
}

func (s *Service) lookupPO(ctx context.Context, ownerID, poID int64) (*PurchaseOrder, error) {
	po, err := s.repo.Get(ctx, ownerID, poID)
	if err != nil {
		if errors.Is(err, ErrPONotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &po, nil
}

func (s *Service) lookupKey(ctx context.Context, ownerID, projectID, vendorID int64, costCodeID *int64) (*PurchaseOrder, error) {
	po, err := s.repo.GetByKey(ctx, ownerID, projectID, vendorID, costCodeID)
	if err != nil {
		if errors.Is(err, ErrPONotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &po, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  actor.OwnerID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
