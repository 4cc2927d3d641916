package scheduler

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Score computes the weighted suitability of actor for slot.
//
//	skill       = weights.SkillMatch  * |actor.skills ∩ slot.requiredSkills|
//	performance = weights.Performance * performanceScore (0 when absent)
//	timeFit     = weights.TimeFit if the slot lies inside an availability window on its weekday
func Score(actor models.Actor, slot models.DemandSlot, weights models.Weights) models.CandidateScore {
	breakdown := models.ScoreBreakdown{
		SkillMatch:  weights.SkillMatch * skillOverlap(actor.Skills, slot.RequiredSkills),
		Performance: weights.Performance * performanceOf(actor),
	}
	if fitsWindow(actor, slot) {
		breakdown.TimeFit = weights.TimeFit
	}

	return models.CandidateScore{
		ActorID:   actor.ID,
		SlotID:    slot.ID,
		Score:     breakdown.SkillMatch + breakdown.Performance + breakdown.TimeFit,
		Breakdown: breakdown,
	}
}

// RankCandidates scores every actor for slot and orders them by score
// descending, then by actor id ascending.
func RankCandidates(actors []models.Actor, slot models.DemandSlot, weights models.Weights) []models.CandidateScore {
	ranked := make([]models.CandidateScore, 0, len(actors))
	for _, actor := range actors {
		ranked = append(ranked, Score(actor, slot, weights))
	}
	slices.SortStableFunc(ranked, func(a, b models.CandidateScore) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ActorID, b.ActorID)
	})
	return ranked
}

func skillOverlap(actorSkills, required []string) int {
	if len(actorSkills) == 0 || len(required) == 0 {
		return 0
	}
	// Casers keep internal state, so each call gets its own.
	fold := cases.Fold()
	have := make(map[string]struct{}, len(actorSkills))
	for _, s := range actorSkills {
		have[normalizeSkill(fold, s)] = struct{}{}
	}

	matched := make(map[string]struct{}, len(required))
	for _, s := range required {
		key := normalizeSkill(fold, s)
		if key == "" {
			continue
		}
		if _, ok := have[key]; ok {
			matched[key] = struct{}{}
		}
	}
	return len(matched)
}

func normalizeSkill(fold cases.Caser, skill string) string {
	return fold.String(norm.NFC.String(strings.TrimSpace(skill)))
}

func performanceOf(actor models.Actor) int {
	if actor.PerformanceScore == nil {
		return 0
	}
	return clampPercent(*actor.PerformanceScore)
}

func fitsWindow(actor models.Actor, slot models.DemandSlot) bool {
	day, ok := slot.Weekday()
	if !ok {
		return false
	}
	for _, w := range actor.WindowsOn(day) {
		if w.Contains(slot.Start, slot.End) {
			return true
		}
	}
	return false
}
