package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records account mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	account, err := s.repo.Insert(ctx, actor.OwnerID, in)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "account.create",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", account.ID),
			Meta:     map[string]any{"code": account.Code, "type": account.Type},
			At:       s.now(),
		})
	}
	return account, nil
}

// Update changes name and active flag. Account type is immutable after
// creation; a differing type in the input is rejected outright.
func (s *Service) Update(ctx context.Context, actor shared.Actor, in UpdateInput) (Account, error) {
	current, err := s.repo.Get(ctx, actor.OwnerID, in.AccountID)
	if err != nil {
		return Account{}, err
	}
	if in.Type != "" && in.Type != current.Type {
		return Account{}, ErrTypeImmutable
	}
	if in.Name == "" {
		in.Name = current.Name
	}
	return s.repo.Update(ctx, actor.OwnerID, in)
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, accountID int64) (Account, error) {
	return s.repo.Get(ctx, actor.OwnerID, accountID)
}

func (s *Service) GetByCode(ctx context.Context, actor shared.Actor, code string) (Account, error) {
	return s.repo.GetByCode(ctx, actor.OwnerID, code)
}

func (s *Service) List(ctx context.Context, actor shared.Actor) ([]Account, error) {
	return s.repo.List(ctx, actor.OwnerID)
}

func (s *Service) Balance(ctx context.Context, actor shared.Actor, accountID int64, asOf time.Time) (Balance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	if _, err := s.repo.Get(ctx, actor.OwnerID, accountID); err != nil {
		return Balance{}, err
	}
	return s.repo.Balance(ctx, actor.OwnerID, accountID, asOf)
}

func (s *Service) TrialBalance(ctx context.Context, actor shared.Actor, asOf time.Time) ([]Balance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.TrialBalance(ctx, actor.OwnerID, asOf)
}
