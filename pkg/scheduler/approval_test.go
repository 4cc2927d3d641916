package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

func withConfidence(a models.Assignment, c int) models.Assignment {
	a.Confidence = c
	return a
}

func TestApprove_Threshold(t *testing.T) {
	in := []models.Assignment{
		withConfidence(testAssignment("at", "a", "09:00", "10:00"), 80),
		withConfidence(testAssignment("below", "b", "09:00", "10:00"), 79),
		withConfidence(testAssignment("above", "c", "09:00", "10:00"), 95),
	}

	out, result := Approve(in, nil, 80)
	assert.Equal(t, models.StatusAutoApproved, out[0].Status)
	assert.Equal(t, models.StatusPendingReview, out[1].Status)
	assert.Equal(t, "confidence below auto-approval threshold", out[1].Reason)
	assert.Equal(t, models.StatusAutoApproved, out[2].Status)

	assert.Len(t, result.Approved, 2)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, "below", result.Pending[0].ID)
	assert.Equal(t, map[string]string{"below": "confidence below auto-approval threshold"}, result.Reasons)
}

func TestApprove_ConflictsAndPassThrough(t *testing.T) {
	conflicted := withConfidence(testAssignment("p1", "a", "09:00", "10:00"), 95)
	rejected := withConfidence(testAssignment("p2", "a", "09:30", "10:30"), 95)
	rejected.Status = models.StatusConflictRejected
	persistFailed := withConfidence(testAssignment("p3", "b", "09:00", "10:00"), 95)
	persistFailed.Status = models.StatusPendingReview
	persistFailed.Reason = "persistence conflict"

	reports := []models.ConflictReport{{AssignmentID: "p1", ActorID: "a"}}
	out, result := Approve([]models.Assignment{conflicted, rejected, persistFailed}, reports, 80)

	assert.Equal(t, models.StatusPendingReview, out[0].Status)
	assert.Equal(t, "conflicts require review", out[0].Reason)
	assert.Equal(t, models.StatusConflictRejected, out[1].Status)
	assert.Equal(t, models.StatusPendingReview, out[2].Status)
	assert.Equal(t, "persistence conflict", out[2].Reason)

	assert.Empty(t, result.Approved)
	assert.Len(t, result.Pending, 2)
	assert.Equal(t, "persistence conflict", result.Reasons["p3"])
}

func TestSummarize(t *testing.T) {
	slots := []models.DemandSlot{
		testSlot("s1", "09:00", "12:00", 2),
		testSlot("s2", "13:00", "14:00", 1),
		testSlot("s3", "15:00", "16:00", 1),
	}
	approved := func(id, actor, slot, start, end string, conf int) models.Assignment {
		a := withConfidence(testAssignment(id, actor, start, end), conf)
		a.SlotID = slot
		a.Status = models.StatusAutoApproved
		return a
	}
	pending := approved("p", "c", "s3", "15:00", "16:00", 75)
	pending.Status = models.StatusPendingReview
	rejected := approved("r", "a", "s2", "11:00", "14:00", 90)
	rejected.Status = models.StatusConflictRejected

	final := []models.Assignment{
		approved("1", "a", "s1", "09:00", "12:00", 95),
		approved("2", "b", "s1", "09:00", "12:00", 90),
		pending,
		rejected,
	}
	got := Summarize(slots, 4, final)

	assert.Equal(t, 3, got.TotalAssignments)
	assert.Equal(t, 2, got.AutoApproved)
	assert.Equal(t, 1, got.RequiresReview)
	assert.Equal(t, 50, got.CoveragePercentage)
	assert.Equal(t, 93, got.AverageConfidence)
	assert.Equal(t, 1, got.ConflictsResolved)
	assert.Equal(t, []string{"s2", "s3"}, got.UnfilledSlots)
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil, 0, nil)
	assert.Zero(t, got.CoveragePercentage)
	assert.Zero(t, got.AverageConfidence)
	assert.Equal(t, []string{}, got.UnfilledSlots)
	assert.Equal(t, 100.0, got.FairnessScore)
}

func TestFairnessScore(t *testing.T) {
	even := []models.Assignment{
		testAssignment("1", "a", "09:00", "11:00"),
		testAssignment("2", "b", "13:00", "15:00"),
	}
	assert.Equal(t, 100.0, FairnessScore(even))

	// 180 and 60 minutes: mean 120, stddev 60.
	uneven := []models.Assignment{
		testAssignment("1", "a", "09:00", "12:00"),
		testAssignment("2", "b", "13:00", "14:00"),
	}
	assert.Equal(t, 50.0, FairnessScore(uneven))

	rejected := testAssignment("3", "b", "15:00", "18:00")
	rejected.Status = models.StatusConflictRejected
	assert.Equal(t, 50.0, FairnessScore(append(uneven, rejected)))
}
