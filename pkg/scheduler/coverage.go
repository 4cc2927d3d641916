package scheduler

import (
	"math"
	"sort"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Summarize aggregates the outcome of a run. proposedCount is the number of
// assignments the solver emitted before conflict detection.
func Summarize(slots []models.DemandSlot, proposedCount int, assignments []models.Assignment) models.Summary {
	var (
		summary       models.Summary
		confidenceSum int
		surviving     int
	)
	approvedPerSlot := make(map[string]int)

	for _, a := range assignments {
		if !a.Blocks() {
			continue
		}
		surviving++
		switch a.Status {
		case models.StatusAutoApproved:
			summary.AutoApproved++
			confidenceSum += a.Confidence
			approvedPerSlot[a.SlotID]++
		case models.StatusPendingReview, models.StatusProposed:
			summary.RequiresReview++
		}
	}
	summary.TotalAssignments = surviving

	demand := 0
	for _, slot := range slots {
		if slot.RequiredHeadcount > 0 {
			demand += slot.RequiredHeadcount
		}
	}
	if demand > 0 {
		summary.CoveragePercentage = clampPercent(roundPercent(float64(summary.AutoApproved) / float64(demand) * 100))
	}
	if summary.AutoApproved > 0 {
		summary.AverageConfidence = roundPercent(float64(confidenceSum) / float64(summary.AutoApproved))
	}
	if resolved := proposedCount - surviving; resolved > 0 {
		summary.ConflictsResolved = resolved
	}

	summary.UnfilledSlots = []string{}
	for _, slot := range slots {
		if slot.RequiredHeadcount > 0 && approvedPerSlot[slot.ID] < slot.RequiredHeadcount {
			summary.UnfilledSlots = append(summary.UnfilledSlots, slot.ID)
		}
	}
	summary.FairnessScore = FairnessScore(assignments)
	return summary
}

// FairnessScore returns a percentage (0-100) describing how evenly assigned
// minutes are spread across the actors who received work. 100 means every
// assigned actor carries the same load.
func FairnessScore(assignments []models.Assignment) float64 {
	minutes := make(map[string]int)
	for _, a := range assignments {
		if a.Blocks() {
			minutes[a.ActorID] += a.End.Minutes() - a.Start.Minutes()
		}
	}
	if len(minutes) == 0 {
		return 100.0
	}

	// Summing in a fixed order keeps the float result stable between runs.
	actors := make([]string, 0, len(minutes))
	for id := range minutes {
		actors = append(actors, id)
	}
	sort.Strings(actors)

	var sum float64
	for _, id := range actors {
		sum += float64(minutes[id])
	}
	if sum == 0 {
		return 100.0
	}
	n := float64(len(actors))
	mean := sum / n

	var varianceSum float64
	for _, id := range actors {
		diff := float64(minutes[id]) - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / n)

	score := (1.0 - stdDev/mean) * 100.0
	if score < 0 {
		return 0.0
	}
	return math.Round(score*10) / 10
}

func roundPercent(v float64) int {
	return int(math.Round(v))
}
