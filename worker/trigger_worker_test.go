package worker

import (
	"io"
	"log"
	"testing"
	"time"

	"mailflow/models"
	"mailflow/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

// The birthday sweep reads subscribers in bounded batches and enrolls
// matches through the idempotent enroller.
func TestSweepBirthdaysEnrollsMatches(t *testing.T) {
	gdb, mock := newMockDB(t)
	logger := log.New(io.Discard, "", 0)
	tw := &TriggerWorker{
		DB:       gdb,
		Enroller: utils.NewEnroller(gdb, logger),
		Logger:   logger,
		Interval: time.Hour,
		now:      func() time.Time { return time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC) },
	}

	mock.ExpectQuery(`SELECT (.+) FROM "automations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trigger_type", "status"}).
			AddRow(1, models.TriggerBirthday, models.AutomationActive))

	// One batch; fewer rows than the batch size ends the scan
	mock.ExpectQuery(`SELECT (.+) FROM "subscribers"(.+)LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status", "date_of_birth"}).
			AddRow(5, "pat@example.com", models.SubscriberActive,
				time.Date(1990, 8, 30, 0, 0, 0, 0, time.UTC)))

	// Already enrolled; the sweep must not create a duplicate
	mock.ExpectQuery(`SELECT (.+) FROM "automation_executions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(42, models.ExecutionPending))

	tw.sweepBirthdays()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBirthdayMatches(t *testing.T) {
	dob := time.Date(1990, 8, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		target time.Time
		want   bool
	}{
		{"same month and day", time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC), true},
		{"different day", time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), false},
		{"different month", time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), false},
		{"year is ignored", time.Date(2031, 8, 30, 0, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BirthdayMatches(dob, tt.target))
		})
	}
}
