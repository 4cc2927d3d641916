package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

var (
	// ErrNotFound is returned by repositories when the requested records do not exist.
	ErrNotFound = errors.New("scheduler: not found")
	// ErrPersistenceConflict is returned by repositories when the store rejects an
	// assignment because it would double-book an actor.
	ErrPersistenceConflict = errors.New("scheduler: persistence conflict")
)

// ValidationError captures field level problems with a request or configuration.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// NoDemandError means no demand slots exist for the requested location and date.
type NoDemandError struct {
	LocationID string
	Date       string
}

func (e *NoDemandError) Error() string {
	return fmt.Sprintf("no demand slots for location %s on %s", e.LocationID, e.Date)
}

// NoEligibleActorsError means the eligibility filter left nobody to assign.
type NoEligibleActorsError struct {
	LocationID string
	Date       string
	PoolSize   int
}

func (e *NoEligibleActorsError) Error() string {
	return fmt.Sprintf("no eligible actors for location %s on %s (pool of %d)", e.LocationID, e.Date, e.PoolSize)
}

// NoValidAssignmentsError means every proposed assignment was conflict-rejected.
// Conflicts explains each rejection.
type NoValidAssignmentsError struct {
	Conflicts []models.ConflictReport
}

func (e *NoValidAssignmentsError) Error() string {
	return fmt.Sprintf("all %d proposed assignments were rejected by conflict detection", len(e.Conflicts))
}

// RepositoryError wraps a failure of an external repository call.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// PersistFailure records one assignment the store refused to write.
type PersistFailure struct {
	AssignmentID string
	Err          error
}

// PartialPersistenceError is returned by repositories when some assignments were written
// and others were rejected. It is not fatal to a run.
type PartialPersistenceError struct {
	Failed []PersistFailure
}

func (e *PartialPersistenceError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.AssignmentID)
	}
	return fmt.Sprintf("%d assignments were not persisted: %s", len(e.Failed), strings.Join(ids, ", "))
}

// Unwrap exposes the individual failures to errors.Is.
func (e *PartialPersistenceError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// ErrorKind maps engine errors to a stable label for logs, metrics and transports.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		vErr       *ValidationError
		noDemand   *NoDemandError
		noEligible *NoEligibleActorsError
		noValid    *NoValidAssignmentsError
		partial    *PartialPersistenceError
		repoErr    *RepositoryError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &noDemand):
		return "no_demand"
	case errors.As(err, &noEligible):
		return "no_eligible_actors"
	case errors.As(err, &noValid):
		return "no_valid_assignments"
	case errors.As(err, &partial):
		return "partial_persistence"
	case errors.As(err, &repoErr):
		return "repository"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "unexpected"
}
