package scheduler

import (
	"context"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Repository is the persisted-schedule store the engine reads from and writes to.
type Repository interface {
	// FetchDemandSlots returns the slots for a location and date, or ErrNotFound.
	FetchDemandSlots(ctx context.Context, locationID, date string) ([]models.DemandSlot, error)
	FetchEligibleActors(ctx context.Context, locationID string) ([]models.Actor, error)
	// FetchExistingAssignments returns persisted assignments of the actors on date.
	FetchExistingAssignments(ctx context.Context, actorIDs []string, date string) ([]models.Assignment, error)
	// FetchSlotAssignments returns the persisted, non-cancelled assignments
	// of every slot at a location on date, whoever holds them.
	FetchSlotAssignments(ctx context.Context, locationID, date string) ([]models.Assignment, error)
	// PersistAssignments writes assignments and returns those actually written.
	// When only some could be written it returns them with a *PartialPersistenceError.
	PersistAssignments(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error)
}

// ApprovalRecorder is implemented by repositories that store approval decisions.
type ApprovalRecorder interface {
	RecordApprovals(ctx context.Context, result ApprovalResult) error
}
