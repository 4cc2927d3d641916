package scheduler

import (
	"slices"
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// FilterEligible returns the actors that may legally work at locationID on date.
// An actor qualifies when active, eligible for the location and, if it has any
// availability data, available on the date's weekday. Order is preserved.
func FilterEligible(actors []models.Actor, locationID, date string) []models.Actor {
	day, dateOK := models.WeekdayOf(date)

	eligible := make([]models.Actor, 0, len(actors))
	for _, actor := range actors {
		if !actor.Active {
			continue
		}
		if !slices.Contains(actor.EligibleLocations, locationID) {
			continue
		}
		if dateOK && len(actor.Availability) > 0 && !availableOn(actor, day) {
			continue
		}
		eligible = append(eligible, actor)
	}
	return eligible
}

func availableOn(actor models.Actor, day time.Weekday) bool {
	for _, w := range actor.WindowsOn(day) {
		if w.Start < w.End {
			return true
		}
	}
	return false
}
