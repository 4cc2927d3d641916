package scheduler

import "github.com/arnavshah/slot-assignment-api/pkg/models"

const (
	reasonBelowThreshold      = "confidence below auto-approval threshold"
	reasonConflictsNeedReview = "conflicts require review"
	reasonPersistConflict     = "persistence conflict"
	reasonPersistFailed       = "persistence failed"
)

// ApprovalResult classifies the decisions made by Approve.
type ApprovalResult struct {
	Approved []models.Assignment
	Pending  []models.Assignment
	// Reasons maps an assignment id to the reason it was held for review.
	Reasons map[string]string
}

// Approve moves every proposed assignment to auto_approved or pending_review.
// An assignment is auto-approved only when its confidence reaches threshold
// and no conflict report names it. Entries already pending review stay
// pending; rejected and cancelled entries are left alone.
func Approve(assignments []models.Assignment, reports []models.ConflictReport, threshold int) ([]models.Assignment, ApprovalResult) {
	conflicted := make(map[string]bool)
	for _, r := range reports {
		conflicted[r.AssignmentID] = true
	}

	out := make([]models.Assignment, len(assignments))
	copy(out, assignments)
	result := ApprovalResult{Reasons: make(map[string]string)}

	for i := range out {
		a := &out[i]
		switch a.Status {
		case models.StatusProposed:
			switch {
			case conflicted[a.ID]:
				a.Status = models.StatusPendingReview
				a.Reason = reasonConflictsNeedReview
			case a.Confidence < threshold:
				a.Status = models.StatusPendingReview
				a.Reason = reasonBelowThreshold
			default:
				a.Status = models.StatusAutoApproved
				a.Reason = ""
			}
		case models.StatusPendingReview:
		default:
			continue
		}

		if a.Status == models.StatusAutoApproved {
			result.Approved = append(result.Approved, *a)
			continue
		}
		result.Pending = append(result.Pending, *a)
		result.Reasons[a.ID] = a.Reason
	}
	return out, result
}
