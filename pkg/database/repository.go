package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// Repository is the gorm-backed persisted-schedule store.
type Repository struct {
	db *gorm.DB
}

var (
	_ scheduler.Repository       = (*Repository)(nil)
	_ scheduler.ApprovalRecorder = (*Repository)(nil)
)

// NewRepository wraps db, which must already be migrated.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FetchDemandSlots returns the slots for locationID on date ordered by start
// time, or scheduler.ErrNotFound when there are none.
func (r *Repository) FetchDemandSlots(ctx context.Context, locationID, date string) ([]models.DemandSlot, error) {
	var records []DemandSlotRecord
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND date = ?", locationID, date).
		Order("start_minute, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetching demand slots: %w", err)
	}
	if len(records) == 0 {
		return nil, scheduler.ErrNotFound
	}

	slots := make([]models.DemandSlot, 0, len(records))
	for _, rec := range records {
		slots = append(slots, slotFromRecord(rec))
	}
	return slots, nil
}

// FetchEligibleActors returns every actor linked to locationID, active or not.
// The engine applies the eligibility rules itself.
func (r *Repository) FetchEligibleActors(ctx context.Context, locationID string) ([]models.Actor, error) {
	linked := r.db.Model(&ActorLocationRecord{}).Select("actor_id").Where("location_id = ?", locationID)

	var records []ActorRecord
	err := r.db.WithContext(ctx).
		Preload("Locations").
		Preload("Availability", func(db *gorm.DB) *gorm.DB { return db.Order("weekday, start_minute") }).
		Where("id IN (?)", linked).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetching actors: %w", err)
	}

	actors := make([]models.Actor, 0, len(records))
	for _, rec := range records {
		actors = append(actors, actorFromRecord(rec))
	}
	return actors, nil
}

// FetchExistingAssignments returns the non-cancelled assignments of actorIDs on date.
func (r *Repository) FetchExistingAssignments(ctx context.Context, actorIDs []string, date string) ([]models.Assignment, error) {
	if len(actorIDs) == 0 {
		return nil, nil
	}
	var records []AssignmentRecord
	err := r.db.WithContext(ctx).
		Where("actor_id IN ? AND date = ? AND status <> ?", actorIDs, date, string(models.StatusCancelled)).
		Order("actor_id, start_minute").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetching assignments: %w", err)
	}

	out := make([]models.Assignment, 0, len(records))
	for _, rec := range records {
		out = append(out, assignmentFromRecord(rec))
	}
	return out, nil
}

// FetchSlotAssignments returns the non-cancelled assignments at locationID on
// date, grouped by slot.
func (r *Repository) FetchSlotAssignments(ctx context.Context, locationID, date string) ([]models.Assignment, error) {
	var records []AssignmentRecord
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND date = ? AND status NOT IN ?", locationID, date,
			[]string{string(models.StatusCancelled), string(models.StatusConflictRejected)}).
		Order("slot_id, start_minute, actor_id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetching slot assignments: %w", err)
	}

	out := make([]models.Assignment, 0, len(records))
	for _, rec := range records {
		out = append(out, assignmentFromRecord(rec))
	}
	return out, nil
}

// PersistAssignments writes each assignment in its own transaction so that a
// rejected row does not undo the others. Rows that would double-book an actor
// are reported through *scheduler.PartialPersistenceError. Any other failure
// stops the batch and is returned together with the rows written so far.
func (r *Repository) PersistAssignments(ctx context.Context, assignments []models.Assignment) ([]models.Assignment, error) {
	var (
		written []models.Assignment
		failed  []scheduler.PersistFailure
	)
	for _, a := range assignments {
		err := r.insertAssignment(ctx, a)
		switch {
		case err == nil:
			written = append(written, a)
		case errors.Is(err, scheduler.ErrPersistenceConflict):
			failed = append(failed, scheduler.PersistFailure{AssignmentID: a.ID, Err: err})
		default:
			return written, fmt.Errorf("persisting assignment %s: %w", a.ID, err)
		}
	}
	if len(failed) > 0 {
		return written, &scheduler.PartialPersistenceError{Failed: failed}
	}
	return written, nil
}

func (r *Repository) insertAssignment(ctx context.Context, a models.Assignment) error {
	rec := assignmentToRecord(a)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clashes int64
		err := tx.Model(&AssignmentRecord{}).
			Where("actor_id = ? AND date = ? AND status NOT IN ? AND start_minute < ? AND end_minute > ?",
				rec.ActorID, rec.Date,
				[]string{string(models.StatusCancelled), string(models.StatusConflictRejected)},
				rec.EndMinute, rec.StartMinute).
			Count(&clashes).Error
		if err != nil {
			return err
		}
		if clashes > 0 {
			return scheduler.ErrPersistenceConflict
		}
		return tx.Create(&rec).Error
	})
	if isUniqueViolation(err) {
		return scheduler.ErrPersistenceConflict
	}
	return err
}

// isUniqueViolation also matches drivers gorm does not translate.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// RecordApprovals stores the approval decisions on persisted assignments and
// appends one audit row per decision. Decisions for assignments that were
// never persisted are skipped.
func (r *Repository) RecordApprovals(ctx context.Context, result scheduler.ApprovalResult) error {
	decided := make([]models.Assignment, 0, len(result.Approved)+len(result.Pending))
	decided = append(decided, result.Approved...)
	decided = append(decided, result.Pending...)
	if len(decided) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range decided {
			res := tx.Model(&AssignmentRecord{}).
				Where("id = ?", a.ID).
				Updates(map[string]any{"status": string(a.Status), "reason": a.Reason})
			if res.Error != nil {
				return fmt.Errorf("updating assignment %s: %w", a.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			audit := ApprovalAuditRecord{
				AssignmentID: a.ID,
				Action:       auditPendingReview,
				Reason:       a.Reason,
				Confidence:   a.Confidence,
			}
			if a.Status == models.StatusAutoApproved {
				audit.Action = auditAutoApproved
			}
			if err := tx.Create(&audit).Error; err != nil {
				return fmt.Errorf("auditing assignment %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// CancelAssignment moves an assignment to cancelled_assignments so the actor
// can be booked into the same time again.
func (r *Repository) CancelAssignment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec AssignmentRecord
		err := tx.Where("id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return scheduler.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("loading assignment %s: %w", id, err)
		}
		return cancelRecord(tx, rec, time.Now().UTC())
	})
}

func cancelRecord(tx *gorm.DB, rec AssignmentRecord, at time.Time) error {
	tomb := tombstone(rec, at)
	if err := tx.Create(&tomb).Error; err != nil {
		return fmt.Errorf("archiving assignment %s: %w", rec.ID, err)
	}
	if err := tx.Delete(&AssignmentRecord{}, "id = ?", rec.ID).Error; err != nil {
		return fmt.Errorf("cancelling assignment %s: %w", rec.ID, err)
	}
	return nil
}

// ListAssignments returns the assignments of a location on date, cancelled
// ones included, ordered by start then actor.
func (r *Repository) ListAssignments(ctx context.Context, locationID, date string) ([]models.Assignment, error) {
	db := r.db.WithContext(ctx)
	var records []AssignmentRecord
	err := db.Where("location_id = ? AND date = ?", locationID, date).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	var cancelled []CancelledAssignmentRecord
	err = db.Where("location_id = ? AND date = ?", locationID, date).Order("id").Find(&cancelled).Error
	if err != nil {
		return nil, fmt.Errorf("listing cancelled assignments: %w", err)
	}

	out := make([]models.Assignment, 0, len(records)+len(cancelled))
	for _, rec := range records {
		out = append(out, assignmentFromRecord(rec))
	}
	for _, rec := range cancelled {
		out = append(out, rec.assignment())
	}
	slices.SortStableFunc(out, func(a, b models.Assignment) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ActorID, b.ActorID)
	})
	return out, nil
}

// ApprovalAudits returns the audit trail of one assignment, oldest first.
func (r *Repository) ApprovalAudits(ctx context.Context, assignmentID string) ([]ApprovalAuditRecord, error) {
	var audits []ApprovalAuditRecord
	err := r.db.WithContext(ctx).Where("assignment_id = ?", assignmentID).Order("id").Find(&audits).Error
	return audits, err
}

// UpsertActors creates or replaces actors together with their locations and
// availability windows.
func (r *Repository) UpsertActors(ctx context.Context, actors []models.Actor) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range actors {
			rec := actorToRecord(a)
			if err := tx.Where("actor_id = ?", a.ID).Delete(&ActorLocationRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("actor_id = ?", a.ID).Delete(&AvailabilityRecord{}).Error; err != nil {
				return err
			}
			err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Omit("Locations", "Availability").
				Create(&rec).Error
			if err != nil {
				return fmt.Errorf("saving actor %s: %w", a.ID, err)
			}
			if len(rec.Locations) > 0 {
				if err := tx.Create(&rec.Locations).Error; err != nil {
					return fmt.Errorf("saving locations of %s: %w", a.ID, err)
				}
			}
			if len(rec.Availability) > 0 {
				if err := tx.Create(&rec.Availability).Error; err != nil {
					return fmt.Errorf("saving availability of %s: %w", a.ID, err)
				}
			}
		}
		return nil
	})
}

// UpsertDemandSlots creates or replaces demand slots.
func (r *Repository) UpsertDemandSlots(ctx context.Context, slots []models.DemandSlot) error {
	if len(slots) == 0 {
		return nil
	}
	records := make([]DemandSlotRecord, 0, len(slots))
	for _, s := range slots {
		records = append(records, slotToRecord(s))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
}
