package lots

import (
	"context"
	"fmt"
	"time"

	"github.com/buildledger/buildledger/internal/shared"
)

// AuditPort records lot mutations.
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

// Create adds a lot to a project with the next sequential lot number.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (ProjectLot, error) {
	if err := in.Validate(); err != nil {
		return ProjectLot{}, err
	}
	lot, err := s.repo.Insert(ctx, actor.OwnerID, in)
	if err != nil {
		return ProjectLot{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OwnerID:  actor.OwnerID,
			ActorID:  actor.UserID,
			Action:   "lot.create",
			Entity:   "project_lot",
			EntityID: fmt.Sprintf("%d", lot.ID),
			Meta:     map[string]any{"project_id": lot.ProjectID, "lot_number": lot.LotNumber},
			At:       s.now(),
		})
	}
	return lot, nil
}

func (s *Service) Get(ctx context.Context, actor shared.Actor, lotID int64) (ProjectLot, error) {
	return s.repo.Get(ctx, actor.OwnerID, lotID)
}

func (s *Service) List(ctx context.Context, actor shared.Actor, projectID int64) ([]ProjectLot, error) {
	return s.repo.List(ctx, actor.OwnerID, projectID)
}
