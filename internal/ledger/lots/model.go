package lots

import (
	"errors"
	"strings"
	"time"
)

// ProjectLot is one buildable lot inside a project. LotNumber is assigned
// sequentially per project and never reused.
type ProjectLot struct {
	ID        int64
	OwnerID   int64
	ProjectID int64
	LotNumber int
	LotName   string
	CreatedAt time.Time
}

// CreateInput carries fields for a new lot. The lot number is assigned by
// the repository.
type CreateInput struct {
	ProjectID int64
	LotName   string
}

// Validate checks create input coherence.
func (in CreateInput) Validate() error {
	if in.ProjectID == 0 {
		return errors.New("lots: project id required")
	}
	if strings.TrimSpace(in.LotName) == "" {
		return errors.New("lots: lot name required")
	}
	return nil
}

var (
	// ErrLotNotFound indicates a missing lot in the owner scope.
	ErrLotNotFound = errors.New("lots: not found")
	// ErrAllocationMismatch indicates manual allocations do not sum to the
	// total within one cent.
	ErrAllocationMismatch = errors.New("lots: allocations do not sum to total")
	// ErrNoLotsSelected indicates an allocation over an empty selection.
	ErrNoLotsSelected = errors.New("lots: no lots selected")
)
