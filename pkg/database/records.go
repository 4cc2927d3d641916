package database

import (
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// ActorRecord represents the actors table
type ActorRecord struct {
	ID               string   `gorm:"primaryKey"`
	Name             string   `gorm:"not null"`
	Kind             string   `gorm:"not null"`
	Skills           []string `gorm:"serializer:json"`
	HomeLocation     string
	Active           bool
	PerformanceScore *int

	Locations    []ActorLocationRecord `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE"`
	Availability []AvailabilityRecord  `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ActorRecord) TableName() string { return "actors" }

// ActorLocationRecord links an actor to a location it may work at.
type ActorLocationRecord struct {
	ActorID    string `gorm:"primaryKey"`
	LocationID string `gorm:"primaryKey;index"`
}

func (ActorLocationRecord) TableName() string { return "actor_locations" }

// AvailabilityRecord is one weekly availability window.
type AvailabilityRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ActorID     string `gorm:"not null;index"`
	Weekday     int    `gorm:"not null"`
	StartMinute int    `gorm:"not null"`
	EndMinute   int    `gorm:"not null"`
}

func (AvailabilityRecord) TableName() string { return "availability_windows" }

// DemandSlotRecord represents the demand_slots table
type DemandSlotRecord struct {
	ID                string   `gorm:"primaryKey"`
	LocationID        string   `gorm:"not null;index:idx_slot_location_date"`
	Date              string   `gorm:"not null;index:idx_slot_location_date"`
	StartMinute       int      `gorm:"not null"`
	EndMinute         int      `gorm:"not null"`
	RequiredHeadcount int      `gorm:"not null"`
	RequiredSkills    []string `gorm:"serializer:json"`
	Role              string
}

func (DemandSlotRecord) TableName() string { return "demand_slots" }

// AssignmentRecord represents the assignments table. The unique index is the
// store's last line of defence against double-booking an actor.
type AssignmentRecord struct {
	ID             string `gorm:"primaryKey"`
	ActorID        string `gorm:"not null;uniqueIndex:idx_actor_date_start"`
	Date           string `gorm:"not null;uniqueIndex:idx_actor_date_start"`
	StartMinute    int    `gorm:"not null;uniqueIndex:idx_actor_date_start"`
	EndMinute      int    `gorm:"not null"`
	SlotID         string `gorm:"not null;index"`
	LocationID     string `gorm:"not null"`
	Role           string
	AssignmentType string `gorm:"not null"`
	Score          int
	Confidence     int
	Status         string `gorm:"not null;index"`
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (AssignmentRecord) TableName() string { return "assignments" }

// CancelledAssignmentRecord is a cancelled assignment moved out of the
// assignments table, which frees its id and start minute for a new booking.
type CancelledAssignmentRecord struct {
	ID             uint   `gorm:"primaryKey"`
	AssignmentID   string `gorm:"not null;index"`
	ActorID        string `gorm:"not null"`
	Date           string `gorm:"not null;index:idx_cancelled_location_date"`
	LocationID     string `gorm:"not null;index:idx_cancelled_location_date"`
	StartMinute    int    `gorm:"not null"`
	EndMinute      int    `gorm:"not null"`
	SlotID         string `gorm:"not null"`
	Role           string
	AssignmentType string `gorm:"not null"`
	Score          int
	Confidence     int
	Reason         string
	BookedAt       time.Time
	CancelledAt    time.Time `gorm:"not null"`
}

func (CancelledAssignmentRecord) TableName() string { return "cancelled_assignments" }

func tombstone(r AssignmentRecord, at time.Time) CancelledAssignmentRecord {
	return CancelledAssignmentRecord{
		AssignmentID:   r.ID,
		ActorID:        r.ActorID,
		Date:           r.Date,
		LocationID:     r.LocationID,
		StartMinute:    r.StartMinute,
		EndMinute:      r.EndMinute,
		SlotID:         r.SlotID,
		Role:           r.Role,
		AssignmentType: r.AssignmentType,
		Score:          r.Score,
		Confidence:     r.Confidence,
		Reason:         r.Reason,
		BookedAt:       r.CreatedAt,
		CancelledAt:    at,
	}
}

func (r CancelledAssignmentRecord) assignment() models.Assignment {
	return models.Assignment{
		ID:         r.AssignmentID,
		ActorID:    r.ActorID,
		SlotID:     r.SlotID,
		LocationID: r.LocationID,
		Date:       r.Date,
		Start:      models.Clock(r.StartMinute),
		End:        models.Clock(r.EndMinute),
		Role:       r.Role,
		Type:       models.AssignmentType(r.AssignmentType),
		Score:      r.Score,
		Confidence: r.Confidence,
		Status:     models.StatusCancelled,
		Reason:     r.Reason,
	}
}

// ApprovalAuditRecord is one approval decision.
type ApprovalAuditRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssignmentID string    `gorm:"not null;index" json:"assignment_id"`
	Action       string    `gorm:"not null" json:"action"`
	Reason       string    `json:"reason"`
	Confidence   int       `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ApprovalAuditRecord) TableName() string { return "approval_audits" }

const (
	auditAutoApproved  = "assignment_auto_approved"
	auditPendingReview = "assignment_pending_review"
)

func actorFromRecord(r ActorRecord) models.Actor {
	a := models.Actor{
		ID:                r.ID,
		Name:              r.Name,
		Kind:              models.ActorKind(r.Kind),
		Skills:            r.Skills,
		HomeLocation:      r.HomeLocation,
		EligibleLocations: make([]string, 0, len(r.Locations)),
		Active:            r.Active,
		PerformanceScore:  r.PerformanceScore,
	}
	for _, l := range r.Locations {
		a.EligibleLocations = append(a.EligibleLocations, l.LocationID)
	}
	for _, w := range r.Availability {
		a.Availability = append(a.Availability, models.AvailabilityWindow{
			Weekday: time.Weekday(w.Weekday),
			Start:   models.Clock(w.StartMinute),
			End:     models.Clock(w.EndMinute),
		})
	}
	return a
}

func actorToRecord(a models.Actor) ActorRecord {
	r := ActorRecord{
		ID:               a.ID,
		Name:             a.Name,
		Kind:             string(a.Kind),
		Skills:           a.Skills,
		HomeLocation:     a.HomeLocation,
		Active:           a.Active,
		PerformanceScore: a.PerformanceScore,
	}
	for _, loc := range a.EligibleLocations {
		r.Locations = append(r.Locations, ActorLocationRecord{ActorID: a.ID, LocationID: loc})
	}
	for _, w := range a.Availability {
		r.Availability = append(r.Availability, AvailabilityRecord{
			ActorID:     a.ID,
			Weekday:     int(w.Weekday),
			StartMinute: w.Start.Minutes(),
			EndMinute:   w.End.Minutes(),
		})
	}
	return r
}

func slotFromRecord(r DemandSlotRecord) models.DemandSlot {
	return models.DemandSlot{
		ID:                r.ID,
		LocationID:        r.LocationID,
		Date:              r.Date,
		Start:             models.Clock(r.StartMinute),
		End:               models.Clock(r.EndMinute),
		RequiredHeadcount: r.RequiredHeadcount,
		RequiredSkills:    r.RequiredSkills,
		Role:              r.Role,
	}
}

func slotToRecord(s models.DemandSlot) DemandSlotRecord {
	return DemandSlotRecord{
		ID:                s.ID,
		LocationID:        s.LocationID,
		Date:              s.Date,
		StartMinute:       s.Start.Minutes(),
		EndMinute:         s.End.Minutes(),
		RequiredHeadcount: s.RequiredHeadcount,
		RequiredSkills:    s.RequiredSkills,
		Role:              s.Role,
	}
}

func assignmentFromRecord(r AssignmentRecord) models.Assignment {
	return models.Assignment{
		ID:         r.ID,
		ActorID:    r.ActorID,
		SlotID:     r.SlotID,
		LocationID: r.LocationID,
		Date:       r.Date,
		Start:      models.Clock(r.StartMinute),
		End:        models.Clock(r.EndMinute),
		Role:       r.Role,
		Type:       models.AssignmentType(r.AssignmentType),
		Score:      r.Score,
		Confidence: r.Confidence,
		Status:     models.AssignmentStatus(r.Status),
		Reason:     r.Reason,
	}
}

func assignmentToRecord(a models.Assignment) AssignmentRecord {
	typ := a.Type
	if typ == "" {
		typ = models.TypeAutoAssigned
	}
	status := a.Status
	if status == "" {
		status = models.StatusProposed
	}
	return AssignmentRecord{
		ID:             a.ID,
		ActorID:        a.ActorID,
		Date:           a.Date,
		StartMinute:    a.Start.Minutes(),
		EndMinute:      a.End.Minutes(),
		SlotID:         a.SlotID,
		LocationID:     a.LocationID,
		Role:           a.Role,
		AssignmentType: string(typ),
		Score:          a.Score,
		Confidence:     a.Confidence,
		Status:         string(status),
		Reason:         a.Reason,
	}
}
