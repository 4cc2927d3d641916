package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

const (
	testDate     = "2026-10-19"
	testLocation = "loc-1"
)

func newSQLiteDB(t *testing.T, driver string) *gorm.DB {
	t.Helper()
	db, err := InitDB(Config{
		DataPath:     filepath.Join(t.TempDir(), "test.db"),
		SQLiteDriver: driver,
	})
	require.NoError(t, err)
	return db
}

func seededRepo(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(newSQLiteDB(t, ""))
	perf := 7
	ctx := context.Background()

	require.NoError(t, repo.UpsertActors(ctx, []models.Actor{
		{
			ID:                "a",
			Name:              "Ada",
			Kind:              models.KindStaff,
			Skills:            []string{"cpr", "triage"},
			EligibleLocations: []string{testLocation, "loc-2"},
			Availability: []models.AvailabilityWindow{
				{Weekday: time.Monday, Start: models.MustParseClock("08:00"), End: models.MustParseClock("17:00")},
			},
			Active:           true,
			PerformanceScore: &perf,
		},
		{ID: "b", Name: "Bo", Kind: models.KindRep, EligibleLocations: []string{testLocation}, Active: true},
		{ID: "c", Name: "Cy", Kind: models.KindStaff, EligibleLocations: []string{"loc-2"}, Active: true},
	}))
	require.NoError(t, repo.UpsertDemandSlots(ctx, []models.DemandSlot{
		{ID: "s2", LocationID: testLocation, Date: testDate, Start: models.MustParseClock("13:00"), End: models.MustParseClock("15:00"), RequiredHeadcount: 1},
		{ID: "s1", LocationID: testLocation, Date: testDate, Start: models.MustParseClock("09:00"), End: models.MustParseClock("12:00"), RequiredHeadcount: 2, RequiredSkills: []string{"cpr"}, Role: "nurse"},
		{ID: "s3", LocationID: "loc-2", Date: testDate, Start: models.MustParseClock("09:00"), End: models.MustParseClock("12:00"), RequiredHeadcount: 1},
	}))
	return repo
}

func assignment(id, actorID, start, end string) models.Assignment {
	return models.Assignment{
		ID:         id,
		ActorID:    actorID,
		SlotID:     "s1",
		LocationID: testLocation,
		Date:       testDate,
		Start:      models.MustParseClock(start),
		End:        models.MustParseClock(end),
		Type:       models.TypeAutoAssigned,
		Confidence: 90,
		Status:     models.StatusProposed,
	}
}

func TestInitDB_SchemaVersion(t *testing.T) {
	for _, driver := range []string{"", "modernc"} {
		db := newSQLiteDB(t, driver)
		require.NoError(t, Migrate(db), "migrate is repeatable")
		version, err := CurrentVersion(db)
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, version, driver)
	}
}

func TestRepository_FetchDemandSlots(t *testing.T) {
	repo := seededRepo(t)

	slots, err := repo.FetchDemandSlots(context.Background(), testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "s1", slots[0].ID)
	assert.Equal(t, []string{"cpr"}, slots[0].RequiredSkills)
	assert.Equal(t, "09:00", slots[0].Start.String())
	assert.Equal(t, "s2", slots[1].ID)

	_, err = repo.FetchDemandSlots(context.Background(), testLocation, "2026-10-20")
	assert.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestRepository_FetchEligibleActors(t *testing.T) {
	repo := seededRepo(t)

	actors, err := repo.FetchEligibleActors(context.Background(), testLocation)
	require.NoError(t, err)
	require.Len(t, actors, 2)

	a := actors[0]
	assert.Equal(t, "a", a.ID)
	assert.ElementsMatch(t, []string{testLocation, "loc-2"}, a.EligibleLocations)
	assert.Equal(t, []string{"cpr", "triage"}, a.Skills)
	require.NotNil(t, a.PerformanceScore)
	assert.Equal(t, 7, *a.PerformanceScore)
	require.Len(t, a.Availability, 1)
	assert.Equal(t, time.Monday, a.Availability[0].Weekday)
	assert.Equal(t, "b", actors[1].ID)
	assert.Empty(t, actors[1].Availability)
}

func TestRepository_UpsertActorsReplacesLinks(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertActors(ctx, []models.Actor{
		{ID: "a", Name: "Ada", Kind: models.KindStaff, EligibleLocations: []string{"loc-2"}, Active: false},
	}))

	actors, err := repo.FetchEligibleActors(ctx, testLocation)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "b", actors[0].ID)

	moved, err := repo.FetchEligibleActors(ctx, "loc-2")
	require.NoError(t, err)
	require.Len(t, moved, 2)
	assert.False(t, moved[0].Active)
	assert.Empty(t, moved[0].Availability)
}

func TestRepository_PersistAssignments(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	written, err := repo.PersistAssignments(ctx, []models.Assignment{
		assignment("x1", "a", "09:00", "12:00"),
		assignment("x2", "b", "09:00", "12:00"),
	})
	require.NoError(t, err)
	assert.Len(t, written, 2)

	// x3 overlaps x1, x4 is back to back with it, x5 repeats x2's key.
	written, err = repo.PersistAssignments(ctx, []models.Assignment{
		assignment("x3", "a", "11:00", "13:00"),
		assignment("x4", "a", "12:00", "13:00"),
		assignment("x5", "b", "09:00", "10:00"),
	})
	var partial *scheduler.PartialPersistenceError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, scheduler.ErrPersistenceConflict)
	require.Len(t, written, 1)
	assert.Equal(t, "x4", written[0].ID)
	require.Len(t, partial.Failed, 2)
	assert.Equal(t, "x3", partial.Failed[0].AssignmentID)
	assert.Equal(t, "x5", partial.Failed[1].AssignmentID)

	existing, err := repo.FetchExistingAssignments(ctx, []string{"a", "b"}, testDate)
	require.NoError(t, err)
	ids := make([]string, 0, len(existing))
	for _, e := range existing {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"x1", "x4", "x2"}, ids)
}

func TestRepository_UniqueIndexIsAuthoritative(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	// A rejected row stays in the table but does not count as a clash; the
	// unique index still refuses a second row with the same start.
	rejected := assignment("r1", "a", "09:00", "10:00")
	rejected.Status = models.StatusConflictRejected
	_, err := repo.PersistAssignments(ctx, []models.Assignment{rejected})
	require.NoError(t, err)

	_, err = repo.PersistAssignments(ctx, []models.Assignment{assignment("r2", "a", "09:00", "09:30")})
	var partial *scheduler.PartialPersistenceError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "r2", partial.Failed[0].AssignmentID)
}

func TestRepository_CancelledDoesNotBlock(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	_, err := repo.PersistAssignments(ctx, []models.Assignment{assignment("c1", "a", "09:00", "12:00")})
	require.NoError(t, err)
	require.NoError(t, repo.CancelAssignment(ctx, "c1"))
	assert.ErrorIs(t, repo.CancelAssignment(ctx, "missing"), scheduler.ErrNotFound)

	existing, err := repo.FetchExistingAssignments(ctx, []string{"a"}, testDate)
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = repo.PersistAssignments(ctx, []models.Assignment{assignment("c2", "a", "10:00", "11:00")})
	require.NoError(t, err)
}

func TestRepository_CancelFreesSeatForRebooking(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	_, err := repo.PersistAssignments(ctx, []models.Assignment{assignment("c1", "a", "09:00", "12:00")})
	require.NoError(t, err)
	require.NoError(t, repo.CancelAssignment(ctx, "c1"))
	assert.ErrorIs(t, repo.CancelAssignment(ctx, "c1"), scheduler.ErrNotFound, "already cancelled")

	// Same id and start minute as the cancelled booking.
	written, err := repo.PersistAssignments(ctx, []models.Assignment{assignment("c1", "a", "09:00", "12:00")})
	require.NoError(t, err)
	require.Len(t, written, 1)

	listed, err := repo.ListAssignments(ctx, testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	statuses := []models.AssignmentStatus{listed[0].Status, listed[1].Status}
	assert.ElementsMatch(t, []models.AssignmentStatus{models.StatusCancelled, models.StatusProposed}, statuses)
	for _, a := range listed {
		assert.Equal(t, "c1", a.ID)
		assert.Equal(t, "09:00", a.Start.String())
	}

	held, err := repo.FetchSlotAssignments(ctx, testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, models.StatusProposed, held[0].Status)
}

func TestRepository_FetchSlotAssignments(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	other := assignment("o1", "c", "09:00", "12:00")
	other.SlotID = "s3"
	other.LocationID = "loc-2"
	_, err := repo.PersistAssignments(ctx, []models.Assignment{
		assignment("h2", "b", "09:00", "12:00"),
		assignment("h1", "a", "09:00", "12:00"),
		other,
	})
	require.NoError(t, err)

	held, err := repo.FetchSlotAssignments(ctx, testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, held, 2)
	assert.Equal(t, "h1", held[0].ID)
	assert.Equal(t, "h2", held[1].ID)

	none, err := repo.FetchSlotAssignments(ctx, testLocation, "2026-10-20")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMigrate_ArchivesLegacyCancelledRows(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	legacy := assignmentToRecord(assignment("old", "a", "09:00", "12:00"))
	legacy.Status = string(models.StatusCancelled)
	require.NoError(t, repo.db.Create(&legacy).Error)

	require.NoError(t, Migrate(repo.db))

	var live int64
	require.NoError(t, repo.db.Model(&AssignmentRecord{}).Where("id = ?", "old").Count(&live).Error)
	assert.Zero(t, live)

	listed, err := repo.ListAssignments(ctx, testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.StatusCancelled, listed[0].Status)
}

func TestRepository_RecordApprovals(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	approved := assignment("p1", "a", "09:00", "12:00")
	pending := assignment("p2", "b", "09:00", "12:00")
	_, err := repo.PersistAssignments(ctx, []models.Assignment{approved, pending})
	require.NoError(t, err)

	approved.Status = models.StatusAutoApproved
	pending.Status = models.StatusPendingReview
	pending.Reason = "confidence below auto-approval threshold"
	ghost := assignment("never-written", "c", "09:00", "10:00")
	ghost.Status = models.StatusPendingReview

	require.NoError(t, repo.RecordApprovals(ctx, scheduler.ApprovalResult{
		Approved: []models.Assignment{approved},
		Pending:  []models.Assignment{pending, ghost},
	}))

	stored, err := repo.ListAssignments(ctx, testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	byID := map[string]models.Assignment{stored[0].ID: stored[0], stored[1].ID: stored[1]}
	assert.Equal(t, models.StatusAutoApproved, byID["p1"].Status)
	assert.Equal(t, models.StatusPendingReview, byID["p2"].Status)
	assert.Equal(t, pending.Reason, byID["p2"].Reason)

	audits, err := repo.ApprovalAudits(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "assignment_pending_review", audits[0].Action)

	ghostAudits, err := repo.ApprovalAudits(ctx, "never-written")
	require.NoError(t, err)
	assert.Empty(t, ghostAudits)
}

func TestRepository_EngineRoundTrip(t *testing.T) {
	repo := seededRepo(t)
	cfg := scheduler.DefaultConfig()
	cfg.RetryBackoff = 0
	engine, err := scheduler.NewEngine(repo, cfg)
	require.NoError(t, err)

	req := models.RunRequest{Date: testDate, LocationID: testLocation}
	resp, err := engine.RunAssignment(context.Background(), req)
	require.NoError(t, err)
	// b has no skills or availability data: 70 confidence, held for review.
	assert.Equal(t, 3, resp.Summary.TotalAssignments)
	assert.Equal(t, 2, resp.Summary.AutoApproved)
	assert.Equal(t, 1, resp.Summary.RequiresReview)
	assert.Equal(t, 67, resp.Summary.CoveragePercentage)

	_, err = engine.RunAssignment(context.Background(), req)
	var noValid *scheduler.NoValidAssignmentsError
	require.ErrorAs(t, err, &noValid)

	stored, err := repo.ListAssignments(context.Background(), testLocation, testDate)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	// A cancelled seat is offered again on the next run.
	target := stored[0]
	require.NoError(t, repo.CancelAssignment(context.Background(), target.ID))
	again, err := engine.RunAssignment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Summary.TotalAssignments)
	for _, a := range again.Assignments {
		if a.ID == target.ID {
			assert.True(t, a.Blocks(), a.Reason)
			continue
		}
		assert.Equal(t, models.StatusConflictRejected, a.Status, a.ID)
	}

	held, err := repo.FetchSlotAssignments(context.Background(), testLocation, testDate)
	require.NoError(t, err)
	assert.Len(t, held, 3)
}

func TestCachingRepository(t *testing.T) {
	repo := seededRepo(t)
	cached := NewCachingRepository(repo, time.Minute)
	ctx := context.Background()

	first, err := cached.FetchEligibleActors(ctx, testLocation)
	require.NoError(t, err)
	require.Len(t, first, 2)
	first[0].Name = "mutated"

	require.NoError(t, repo.UpsertActors(ctx, []models.Actor{
		{ID: "d", Name: "Di", EligibleLocations: []string{testLocation}, Active: true},
	}))

	again, err := cached.FetchEligibleActors(ctx, testLocation)
	require.NoError(t, err)
	assert.Len(t, again, 2, "served from cache")
	assert.Equal(t, "Ada", again[0].Name, "callers get copies")

	cached.Invalidate(testLocation)
	fresh, err := cached.FetchEligibleActors(ctx, testLocation)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)

	var recorder scheduler.ApprovalRecorder = cached
	assert.NoError(t, recorder.RecordApprovals(ctx, scheduler.ApprovalResult{}))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: assignments.actor_id")))
	assert.False(t, isUniqueViolation(errors.New("database is locked")))
}
