package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// ValidateRequest checks a run request before any repository is touched.
func ValidateRequest(req models.RunRequest) error {
	vErr := &ValidationError{}
	if strings.TrimSpace(req.Date) == "" {
		vErr.add("date", "is required")
	} else if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
		vErr.add("date", "must be an ISO 8601 date (YYYY-MM-DD)")
	}
	if strings.TrimSpace(req.LocationID) == "" {
		vErr.add("locationId", "is required")
	}
	if p := req.Preferences; p != nil {
		if p.AutoApprovalThreshold != nil && !inPercentRange(*p.AutoApprovalThreshold) {
			vErr.add("preferences.autoApprovalThreshold", "must be between 0 and 100")
		}
		if p.ConfidenceFloor != nil && !inPercentRange(*p.ConfidenceFloor) {
			vErr.add("preferences.confidenceFloor", "must be between 0 and 100")
		}
		if p.ConfidenceCap != nil && !inPercentRange(*p.ConfidenceCap) {
			vErr.add("preferences.confidenceCap", "must be between 0 and 100")
		}
		if w := p.Weights; w != nil {
			negative(vErr, "preferences.weights.skillMatch", w.SkillMatch)
			negative(vErr, "preferences.weights.performance", w.Performance)
			negative(vErr, "preferences.weights.timeFit", w.TimeFit)
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// ValidateAssignments checks assignments submitted for a standalone conflict check.
func ValidateAssignments(field string, assignments []models.Assignment) error {
	vErr := &ValidationError{}
	for i, a := range assignments {
		prefix := field + "[" + strconv.Itoa(i) + "]"
		if a.ID == "" {
			vErr.add(prefix+".id", "is required")
		}
		if a.ActorID == "" {
			vErr.add(prefix+".actorId", "is required")
		}
		if _, err := time.Parse(models.DateLayout, a.Date); err != nil {
			vErr.add(prefix+".date", "must be an ISO 8601 date (YYYY-MM-DD)")
		}
		if !a.Start.Valid() || !a.End.Valid() || a.Start >= a.End {
			vErr.add(prefix+".end", "must be after start")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// ValidateSlots checks demand slots before they are stored.
func ValidateSlots(slots []models.DemandSlot) error {
	vErr := &ValidationError{}
	for i, s := range slots {
		checkSlot(vErr, "slots["+strconv.Itoa(i)+"].", s)
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func checkSlot(vErr *ValidationError, prefix string, s models.DemandSlot) {
	if strings.TrimSpace(s.ID) == "" {
		vErr.add(prefix+"id", "is required")
	}
	if strings.TrimSpace(s.LocationID) == "" {
		vErr.add(prefix+"locationId", "is required")
	}
	if _, err := time.Parse(models.DateLayout, s.Date); err != nil {
		vErr.add(prefix+"date", "must be an ISO 8601 date (YYYY-MM-DD)")
	}
	if !s.Start.Valid() || !s.End.Valid() || s.Start >= s.End {
		vErr.add(prefix+"end", "must be after start")
	}
	if s.RequiredHeadcount < 0 {
		vErr.add(prefix+"requiredHeadcount", "must not be negative")
	}
}

func negative(vErr *ValidationError, field string, v *int) {
	if v != nil && *v < 0 {
		vErr.add(field, "must not be negative")
	}
}
