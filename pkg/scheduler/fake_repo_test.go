package scheduler

import (
	"context"
	"slices"
	"sync"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// memRepo is an in-memory Repository. Persist enforces the same per-actor
// overlap rule as the real store.
type memRepo struct {
	mu sync.Mutex

	slots  []models.DemandSlot
	actors []models.Actor
	stored []models.Assignment

	// Per-operation failure queues; each call pops the head.
	slotErrs     []error
	actorErrs    []error
	existingErrs []error
	heldErrs     []error
	persistErrs  []error
	recordErr    error

	// rejectIDs are refused by Persist with ErrPersistenceConflict.
	rejectIDs map[string]bool
	// persistHook, when set, replaces the Persist logic.
	persistHook func([]models.Assignment) ([]models.Assignment, error)

	calls    map[string]int
	recorded []ApprovalResult
}

func newMemRepo(slots []models.DemandSlot, actors []models.Actor) *memRepo {
	return &memRepo{slots: slots, actors: actors, calls: map[string]int{}}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (r *memRepo) FetchDemandSlots(ctx context.Context, locationID, date string) ([]models.DemandSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["slots"]++
	if err := pop(&r.slotErrs); err != nil {
		return nil, err
	}
	var out []models.DemandSlot
	for _, s := range r.slots {
		if s.LocationID == locationID && s.Date == date {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (r *memRepo) FetchEligibleActors(ctx context.Context, locationID string) ([]models.Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["actors"]++
	if err := pop(&r.actorErrs); err != nil {
		return nil, err
	}
	return slices.Clone(r.actors), nil
}

func (r *memRepo) FetchExistingAssignments(ctx context.Context, actorIDs []string, date string) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["existing"]++
	if err := pop(&r.existingErrs); err != nil {
		return nil, err
	}
	var out []models.Assignment
	for _, a := range r.stored {
		if a.Date == date && slices.Contains(actorIDs, a.ActorID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) FetchSlotAssignments(ctx context.Context, locationID, date string) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["held"]++
	if err := pop(&r.heldErrs); err != nil {
		return nil, err
	}
	var out []models.Assignment
	for _, a := range r.stored {
		if a.LocationID == locationID && a.Date == date && a.Blocks() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) PersistAssignments(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["persist"]++
	if err := pop(&r.persistErrs); err != nil {
		return nil, err
	}
	if r.persistHook != nil {
		return r.persistHook(assignments)
	}

	var (
		written []models.Assignment
		failed  []PersistFailure
	)
	for _, a := range assignments {
		if r.rejectIDs[a.ID] || r.clashes(a) {
			failed = append(failed, PersistFailure{AssignmentID: a.ID, Err: ErrPersistenceConflict})
			continue
		}
		r.stored = append(r.stored, a)
		written = append(written, a)
	}
	if len(failed) > 0 {
		return written, &PartialPersistenceError{Failed: failed}
	}
	return written, nil
}

func (r *memRepo) clashes(a models.Assignment) bool {
	for _, s := range r.stored {
		if s.Blocks() && sameShift(a, s) {
			return true
		}
	}
	return false
}

func (r *memRepo) RecordApprovals(ctx context.Context, result ApprovalResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["record"]++
	if r.recordErr != nil {
		return r.recordErr
	}
	r.recorded = append(r.recorded, result)
	decided := make(map[string]models.Assignment)
	for _, a := range result.Approved {
		decided[a.ID] = a
	}
	for _, a := range result.Pending {
		decided[a.ID] = a
	}
	for i, s := range r.stored {
		if d, ok := decided[s.ID]; ok {
			r.stored[i].Status = d.Status
			r.stored[i].Reason = d.Reason
		}
	}
	return nil
}
