package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// A helper function to create a mock postgres connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	return gormDB, mock
}

func TestRepository_FetchExistingAssignmentsError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "assignments"`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FetchExistingAssignments(context.Background(), []string{"a"}, testDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PersistStopsOnStoreFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "assignments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO "assignments"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "assignments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO "assignments"`).
		WillReturnError(errors.New("server closed the connection"))
	mock.ExpectRollback()

	written, err := repo.PersistAssignments(context.Background(), []models.Assignment{
		assignment("m1", "a", "09:00", "10:00"),
		assignment("m2", "b", "09:00", "10:00"),
		assignment("m3", "c", "09:00", "10:00"),
	})
	require.Error(t, err)
	var partial *scheduler.PartialPersistenceError
	assert.False(t, errors.As(err, &partial), "a store outage is not a conflict")
	require.Len(t, written, 1)
	assert.Equal(t, "m1", written[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PersistTranslatesClash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "assignments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	written, err := repo.PersistAssignments(context.Background(), []models.Assignment{assignment("m1", "a", "09:00", "10:00")})
	assert.Empty(t, written)
	assert.ErrorIs(t, err, scheduler.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordApprovalsRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "assignments" SET`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	a := assignment("m1", "a", "09:00", "10:00")
	a.Status = models.StatusAutoApproved
	err := repo.RecordApprovals(context.Background(), scheduler.ApprovalResult{Approved: []models.Assignment{a}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}
