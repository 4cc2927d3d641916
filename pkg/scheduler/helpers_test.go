package scheduler

import (
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// 2026-10-19 is a Monday.
const (
	testDate     = "2026-10-19"
	testLocation = "loc-1"
)

func clock(s string) models.Clock {
	return models.MustParseClock(s)
}

func intPtr(v int) *int {
	return &v
}

func mondayWindow(start, end string) models.AvailabilityWindow {
	return models.AvailabilityWindow{Weekday: time.Monday, Start: clock(start), End: clock(end)}
}

func testActor(id string, skills ...string) models.Actor {
	return models.Actor{
		ID:                id,
		Name:              "Actor " + id,
		Kind:              models.KindStaff,
		Skills:            skills,
		EligibleLocations: []string{testLocation},
		Availability:      []models.AvailabilityWindow{mondayWindow("08:00", "17:00")},
		Active:            true,
	}
}

func testSlot(id, start, end string, headcount int, skills ...string) models.DemandSlot {
	return models.DemandSlot{
		ID:                id,
		LocationID:        testLocation,
		Date:              testDate,
		Start:             clock(start),
		End:               clock(end),
		RequiredHeadcount: headcount,
		RequiredSkills:    skills,
		Role:              "nurse",
	}
}

func testAssignment(id, actorID, start, end string) models.Assignment {
	return models.Assignment{
		ID:      id,
		ActorID: actorID,
		SlotID:  "slot-" + id,
		Date:    testDate,
		Start:   clock(start),
		End:     clock(end),
		Status:  models.StatusProposed,
	}
}

// testConfig is DefaultConfig without retry backoff.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 0
	cfg.RepositoryTimeout = time.Second
	return cfg
}

type recordedRun struct {
	outcome string
	summary models.Summary
}

type fakeMetrics struct {
	runs    []recordedRun
	retries map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{retries: map[string]int{}}
}

func (m *fakeMetrics) ObserveRun(outcome string, _ time.Duration, s models.Summary) {
	m.runs = append(m.runs, recordedRun{outcome: outcome, summary: s})
}

func (m *fakeMetrics) IncRepositoryRetry(op string) {
	m.retries[op]++
}
