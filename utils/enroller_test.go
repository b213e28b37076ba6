package utils

import (
	"errors"
	"io"
	"log"
	"testing"

	"mailflow/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	return gdb, mock
}

// Enrolling a subscriber who already has a live execution returns that
// execution without creating anything.
func TestEnrollIdempotent(t *testing.T) {
	gdb, mock := newMockDB(t)
	enroller := NewEnroller(gdb, log.New(io.Discard, "", 0))

	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "subscriber_id", "status"}).
			AddRow(42, 1, 5, models.ExecutionPending))

	automation := &models.Automation{Model: gorm.Model{ID: 1}}
	id, err := enroller.Enroll(automation, 5)

	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A fresh enrollment creates one pending execution scheduled from the
// first step's delay and stamps the automation's last trigger time.
func TestEnrollCreatesExecution(t *testing.T) {
	gdb, mock := newMockDB(t)
	enroller := NewEnroller(gdb, log.New(io.Discard, "", 0))

	// No live execution yet
	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	// First step by step order
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order", "delay_value", "delay_unit"}).
			AddRow(10, 1, 0, 0, "minutes"))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "automations"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	automation := &models.Automation{Model: gorm.Model{ID: 1}}
	id, err := enroller.Enroll(automation, 5)

	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// When two enrollments race, the loser's insert is rejected by the unique
// live-execution index and the winner's execution is returned instead.
func TestEnrollRecoversFromConcurrentInsert(t *testing.T) {
	gdb, mock := newMockDB(t)
	enroller := NewEnroller(gdb, log.New(io.Discard, "", 0))

	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order", "delay_value", "delay_unit"}).
			AddRow(10, 1, 0, 0, "minutes"))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "automation_executions"`).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "idx_automation_executions_live"`))
	mock.ExpectRollback()

	// Re-read picks up the winner's row
	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(42, models.ExecutionPending))

	automation := &models.Automation{Model: gorm.Model{ID: 1}}
	id, err := enroller.Enroll(automation, 5)

	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An automation with no steps cannot be enrolled into
func TestEnrollWithoutStepsFails(t *testing.T) {
	gdb, mock := newMockDB(t)
	enroller := NewEnroller(gdb, log.New(io.Discard, "", 0))

	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	automation := &models.Automation{Model: gorm.Model{ID: 1}}
	_, err := enroller.Enroll(automation, 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no steps")
	assert.NoError(t, mock.ExpectationsWereMet())
}
