package scheduler

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// IDFunc names the assignment of actorID to slot.
type IDFunc func(slot models.DemandSlot, actorID string) string

var assignmentNamespace = uuid.MustParse("6f1c1c7e-3b0e-5d8a-9a57-0e3b1b1f4a21")

// DeterministicID derives a UUIDv5 from the date, slot and actor so that
// identical inputs always produce identical assignment ids.
func DeterministicID(slot models.DemandSlot, actorID string) string {
	return uuid.NewSHA1(assignmentNamespace, []byte(slot.Date+"|"+slot.ID+"|"+actorID)).String()
}

// SolveResult is the output of the greedy solver.
type SolveResult struct {
	// Assignments are in emission order: slot-list order, then rank within a slot.
	Assignments []models.Assignment
	// Candidates holds the ranked scores for each slot, indexed like the input slots.
	Candidates [][]models.CandidateScore
}

// Solve independently fills each slot with its top-ranked eligible actors.
// An actor may be picked for several slots; overlaps are left to conflict detection.
// Slots are scored concurrently but the result is identical to a sequential run.
func Solve(ctx context.Context, actors []models.Actor, slots []models.DemandSlot, cfg Config, newID IDFunc) (SolveResult, error) {
	if newID == nil {
		newID = DeterministicID
	}

	perSlot := make([][]models.Assignment, len(slots))
	candidates := make([][]models.CandidateScore, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxWorkers > 0 {
		g.SetLimit(cfg.MaxWorkers)
	}
	for i := range slots {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slot := slots[i]
			eligible := FilterEligible(actors, slot.LocationID, slot.Date)
			ranked := RankCandidates(eligible, slot, cfg.Weights)
			candidates[i] = ranked
			perSlot[i] = pickTop(slot, ranked, cfg, newID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SolveResult{}, err
	}

	var assignments []models.Assignment
	for _, picked := range perSlot {
		assignments = append(assignments, picked...)
	}
	return SolveResult{Assignments: assignments, Candidates: candidates}, nil
}

func pickTop(slot models.DemandSlot, ranked []models.CandidateScore, cfg Config, newID IDFunc) []models.Assignment {
	n := slot.RequiredHeadcount
	if n <= 0 {
		return nil
	}
	if n > len(ranked) {
		n = len(ranked)
	}

	picked := make([]models.Assignment, 0, n)
	for _, cand := range ranked[:n] {
		picked = append(picked, models.Assignment{
			ID:         newID(slot, cand.ActorID),
			ActorID:    cand.ActorID,
			SlotID:     slot.ID,
			LocationID: slot.LocationID,
			Date:       slot.Date,
			Start:      slot.Start,
			End:        slot.End,
			Role:       slot.Role,
			Type:       models.TypeAutoAssigned,
			Score:      cand.Score,
			Confidence: cfg.Confidence(cand.Score),
			Status:     models.StatusProposed,
		})
	}
	return picked
}
