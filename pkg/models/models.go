package models

import "time"

// DateLayout is the ISO 8601 calendar date format used for slot and assignment dates.
const DateLayout = "2006-01-02"

// AssignmentStatus is the lifecycle state of an assignment
type AssignmentStatus string

const (
	StatusProposed         AssignmentStatus = "proposed"
	StatusConflictRejected AssignmentStatus = "conflict_rejected"
	StatusPendingReview    AssignmentStatus = "pending_review"
	StatusAutoApproved     AssignmentStatus = "auto_approved"
	// StatusCancelled is only ever set by the store; cancelled rows never conflict.
	StatusCancelled AssignmentStatus = "cancelled"
)

// AssignmentType records how an assignment was produced
type AssignmentType string

const (
	TypeAutoAssigned AssignmentType = "auto_assigned"
	TypeManual       AssignmentType = "manual"
)

// ActorKind distinguishes clinical staff from visiting representatives
type ActorKind string

const (
	KindStaff ActorKind = "staff"
	KindRep   ActorKind = "rep"
)

// AvailabilityWindow is the daily window an actor can work on one weekday
type AvailabilityWindow struct {
	Weekday time.Weekday `json:"weekday"`
	Start   Clock        `json:"start"`
	End     Clock        `json:"end"`
}

// Contains reports whether [start, end) lies fully inside the window.
func (w AvailabilityWindow) Contains(start, end Clock) bool {
	return w.Start <= start && end <= w.End
}

// Actor is a staff member or representative who can fill slots
type Actor struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Kind              ActorKind            `json:"kind,omitempty"`
	Skills            []string             `json:"skills,omitempty"`
	HomeLocation      string               `json:"homeLocation,omitempty"`
	EligibleLocations []string             `json:"eligibleLocations"`
	Availability      []AvailabilityWindow `json:"availability,omitempty"`
	Active            bool                 `json:"active"`
	PerformanceScore  *int                 `json:"performanceScore,omitempty"`
}

// WindowsOn returns the availability windows that apply to the given weekday.
func (a Actor) WindowsOn(day time.Weekday) []AvailabilityWindow {
	var out []AvailabilityWindow
	for _, w := range a.Availability {
		if w.Weekday == day {
			out = append(out, w)
		}
	}
	return out
}

// DemandSlot is a time window at a location that needs a headcount of actors
type DemandSlot struct {
	ID                string   `json:"id"`
	LocationID        string   `json:"locationId"`
	Date              string   `json:"date"`
	Start             Clock    `json:"start"`
	End               Clock    `json:"end"`
	RequiredHeadcount int      `json:"requiredHeadcount"`
	RequiredSkills    []string `json:"requiredSkills,omitempty"`
	Role              string   `json:"role,omitempty"`
}

// Weekday returns the weekday of the slot date, or false if the date does not parse.
func (s DemandSlot) Weekday() (time.Weekday, bool) {
	return WeekdayOf(s.Date)
}

// ScoreBreakdown holds the independently weighted factors of a suitability score
type ScoreBreakdown struct {
	SkillMatch  int `json:"skillMatch"`
	Performance int `json:"performance"`
	TimeFit     int `json:"timeFit"`
}

// CandidateScore is the suitability of one actor for one slot
type CandidateScore struct {
	ActorID   string         `json:"actorId"`
	SlotID    string         `json:"slotId"`
	Score     int            `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Assignment pairs an actor with a slot's time window
type Assignment struct {
	ID         string           `json:"id"`
	ActorID    string           `json:"actorId"`
	SlotID     string           `json:"slotId,omitempty"`
	LocationID string           `json:"locationId"`
	Date       string           `json:"date"`
	Start      Clock            `json:"start"`
	End        Clock            `json:"end"`
	Role       string           `json:"role,omitempty"`
	Type       AssignmentType   `json:"assignmentType"`
	Score      int              `json:"score"`
	Confidence int              `json:"confidence"`
	Status     AssignmentStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
}

// Blocks reports whether the assignment still occupies the actor's time.
func (a Assignment) Blocks() bool {
	return a.Status != StatusConflictRejected && a.Status != StatusCancelled
}

// ConflictReport explains why an assignment was rejected
type ConflictReport struct {
	AssignmentID   string   `json:"assignmentId"`
	ActorID        string   `json:"actorId"`
	ConflictingIDs []string `json:"conflictingIds"`
	Reasons        []string `json:"reasons"`
}

// WeekdayOf parses an ISO date and returns its weekday.
func WeekdayOf(date string) (time.Weekday, bool) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, false
	}
	return d.Weekday(), true
}
