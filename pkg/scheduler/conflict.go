package scheduler

import (
	"fmt"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

const (
	reasonOverlapsPersisted = "overlaps persisted assignment"
	reasonOverlapsProposed  = "overlaps earlier proposed assignment"
	reasonSlotFull          = "slot already staffed to headcount"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd models.Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

func sameShift(a, b models.Assignment) bool {
	return a.ActorID == b.ActorID && a.Date == b.Date && Overlaps(a.Start, a.End, b.Start, b.End)
}

// DetectConflicts checks proposed assignments against existing ones and
// against each other. A proposal overlapping a blocking existing assignment
// of the same actor is rejected first; the survivors are then walked in
// emission order and any that overlap an earlier survivor are rejected.
//
// The returned slice is a copy of proposed with statuses updated. Proposals
// without a status are treated as proposed. Only proposed entries are
// checked; others are passed through untouched.
func DetectConflicts(existing, proposed []models.Assignment) ([]models.Assignment, []models.ConflictReport) {
	out := make([]models.Assignment, len(proposed))
	copy(out, proposed)

	blocking := make(map[string][]models.Assignment)
	for _, e := range existing {
		if e.Blocks() {
			blocking[e.ActorID] = append(blocking[e.ActorID], e)
		}
	}

	reports := make(map[int]*models.ConflictReport)
	reject := func(i int, other models.Assignment, reason string) {
		r, ok := reports[i]
		if !ok {
			r = &models.ConflictReport{AssignmentID: out[i].ID, ActorID: out[i].ActorID}
			reports[i] = r
			out[i].Status = models.StatusConflictRejected
			out[i].Reason = reason
		}
		r.ConflictingIDs = append(r.ConflictingIDs, other.ID)
		r.Reasons = append(r.Reasons, fmt.Sprintf("%s %s (%s-%s)", reason, other.ID, other.Start, other.End))
	}

	for i := range out {
		if out[i].Status == "" {
			out[i].Status = models.StatusProposed
		}
		if out[i].Status != models.StatusProposed {
			continue
		}
		for _, e := range blocking[out[i].ActorID] {
			if sameShift(out[i], e) {
				reject(i, e, reasonOverlapsPersisted)
			}
		}
	}

	accepted := make(map[string][]models.Assignment)
	for i := range out {
		if out[i].Status != models.StatusProposed {
			continue
		}
		for _, prev := range accepted[out[i].ActorID] {
			if sameShift(out[i], prev) {
				reject(i, prev, reasonOverlapsProposed)
			}
		}
		if out[i].Status == models.StatusProposed {
			accepted[out[i].ActorID] = append(accepted[out[i].ActorID], out[i])
		}
	}

	conflicts := make([]models.ConflictReport, 0, len(reports))
	for i := range out {
		if r, ok := reports[i]; ok {
			conflicts = append(conflicts, *r)
		}
	}
	return out, conflicts
}

// EnforceHeadcount rejects proposed assignments that would staff a slot past
// its required headcount once the seats in held are counted. Proposals are
// admitted in emission order. Statuses are updated in place.
func EnforceHeadcount(assignments []models.Assignment, slots []models.DemandSlot, held []models.Assignment) []models.ConflictReport {
	headcount := make(map[string]int, len(slots))
	for _, slot := range slots {
		headcount[slot.ID] = max(slot.RequiredHeadcount, 0)
	}

	holders := make(map[string][]string)
	seen := make(map[string]bool, len(held))
	for _, h := range held {
		if !h.Blocks() || seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		holders[h.SlotID] = append(holders[h.SlotID], h.ID)
	}

	taken := make(map[string]int)
	var reports []models.ConflictReport
	for i := range assignments {
		a := &assignments[i]
		want, ok := headcount[a.SlotID]
		if !ok || a.Status != models.StatusProposed {
			continue
		}
		if len(holders[a.SlotID])+taken[a.SlotID] < want {
			taken[a.SlotID]++
			continue
		}
		a.Status = models.StatusConflictRejected
		a.Reason = reasonSlotFull
		reports = append(reports, models.ConflictReport{
			AssignmentID:   a.ID,
			ActorID:        a.ActorID,
			ConflictingIDs: append([]string{}, holders[a.SlotID]...),
			Reasons: []string{fmt.Sprintf("%s: slot %s already has %d of %d required actors",
				reasonSlotFull, a.SlotID, len(holders[a.SlotID])+taken[a.SlotID], want)},
		})
	}
	return reports
}
