package worker

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"mailflow/models"
	"mailflow/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fakeMailer struct {
	sent []utils.Email
	err  error
}

func (f *fakeMailer) Send(email utils.Email) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, email)
	return "msg-1", nil
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	return gdb, mock
}

func newTestWorker(t *testing.T, gdb *gorm.DB, mailer utils.MailServiceInterface) *AutomationWorker {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	return &AutomationWorker{
		DB:           gdb,
		Mailer:       mailer,
		Enroller:     utils.NewEnroller(gdb, logger),
		Logger:       logger,
		Interval:     time.Minute,
		BatchSize:    50,
		MaxRetries:   3,
		RetryBackoff: 15 * time.Minute,
		ClaimLease:   5 * time.Minute,
		FromName:     "Mailflow",
		FromEmail:    "no-reply@localhost",
		now:          func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
	}
}

func TestClaim(t *testing.T) {
	t.Run("wins the claim", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		aw := newTestWorker(t, gdb, &fakeMailer{})

		mock.ExpectExec(`UPDATE automation_executions`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		execution := &models.AutomationExecution{Model: gorm.Model{ID: 1}}
		assert.True(t, aw.claim(execution, aw.now()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses the claim to another runner", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		aw := newTestWorker(t, gdb, &fakeMailer{})

		mock.ExpectExec(`UPDATE automation_executions`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		execution := &models.AutomationExecution{Model: gorm.Model{ID: 1}}
		assert.False(t, aw.claim(execution, aw.now()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// An unsubscribed recipient terminates the execution with a skipped log
// entry and nothing is sent.
func TestProcessExecutionInactiveSubscriber(t *testing.T) {
	gdb, mock := newMockDB(t)
	mailer := &fakeMailer{}
	aw := newTestWorker(t, gdb, mailer)

	mock.ExpectQuery(`SELECT (.+) FROM "automations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "trigger_type"}).
			AddRow(1, models.AutomationActive, models.TriggerWelcome))
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order", "delay_value", "delay_unit", "subject"}).
			AddRow(10, 1, 0, 0, "minutes", "Welcome"))
	mock.ExpectQuery(`SELECT (.+) FROM "subscribers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status"}).
			AddRow(5, "pat@example.com", models.SubscriberUnsubscribed))

	// Skipped log entry
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "automation_step_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	// Execution terminated
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "automation_executions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	execution := &models.AutomationExecution{
		Model:         gorm.Model{ID: 2},
		AutomationID:  1,
		SubscriberID:  5,
		CurrentStepID: utils.Pointer(uint(10)),
		Status:        models.ExecutionPending,
	}
	aw.processExecution(execution)

	assert.Empty(t, mailer.sent)
	assert.Equal(t, models.ExecutionFailed, execution.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A successful dispatch personalizes the content, records a sent log and
// advances to the next step with its delay.
func TestProcessExecutionDispatchSuccess(t *testing.T) {
	gdb, mock := newMockDB(t)
	mailer := &fakeMailer{}
	aw := newTestWorker(t, gdb, mailer)

	mock.ExpectQuery(`SELECT (.+) FROM "automations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "trigger_type"}).
			AddRow(1, models.AutomationActive, models.TriggerWelcome))
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order", "delay_value", "delay_unit", "subject", "html_content"}).
			AddRow(10, 1, 0, 0, "minutes", "Welcome {{firstName}}", "<p>Hi {{firstName}}</p>").
			AddRow(20, 1, 1, 1440, "minutes", "Day two", "<p>More</p>"))
	mock.ExpectQuery(`SELECT (.+) FROM "subscribers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "status"}).
			AddRow(5, "pat@example.com", "Pat", models.SubscriberActive))

	// Sent log entry
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "automation_step_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	// Subscriber's last_email_sent stamped
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscribers"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Execution advanced
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "automation_executions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	execution := &models.AutomationExecution{
		Model:         gorm.Model{ID: 2},
		AutomationID:  1,
		SubscriberID:  5,
		CurrentStepID: utils.Pointer(uint(10)),
		Status:        models.ExecutionPending,
	}
	aw.processExecution(execution)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "pat@example.com", mailer.sent[0].To)
	assert.Equal(t, "Welcome Pat", mailer.sent[0].Subject)
	assert.Equal(t, "<p>Hi Pat</p>", mailer.sent[0].Body)

	assert.Equal(t, models.ExecutionInProgress, execution.Status)
	require.NotNil(t, execution.CurrentStepID)
	assert.Equal(t, uint(20), *execution.CurrentStepID)
	require.NotNil(t, execution.NextStepAt)
	assert.Equal(t, aw.now().Add(24*time.Hour), *execution.NextStepAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed dispatch records a failed log; once the step has accumulated
// MaxRetries failures the execution terminates with nothing ever sent.
func TestProcessExecutionDispatchFailure(t *testing.T) {
	expectDispatchFailure := func(mock sqlmock.Sqlmock, failureCount int64) {
		mock.ExpectQuery(`SELECT (.+) FROM "automations"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "trigger_type"}).
				AddRow(1, models.AutomationActive, models.TriggerWelcome))
		mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order", "delay_value", "delay_unit", "subject", "html_content"}).
				AddRow(10, 1, 0, 0, "minutes", "Welcome", "<p>Hi</p>"))
		mock.ExpectQuery(`SELECT (.+) FROM "subscribers"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status"}).
				AddRow(5, "pat@example.com", models.SubscriberActive))

		// Failed log entry, then the per-step failure count
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "automation_step_logs"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT count(.+) FROM "automation_step_logs"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(failureCount))

		// Execution saved
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "automation_executions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	newExecution := func() *models.AutomationExecution {
		return &models.AutomationExecution{
			Model:         gorm.Model{ID: 2},
			AutomationID:  1,
			SubscriberID:  5,
			CurrentStepID: utils.Pointer(uint(10)),
			Status:        models.ExecutionPending,
		}
	}

	t.Run("first failure reschedules after the backoff", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		mailer := &fakeMailer{err: errors.New("smtp unavailable")}
		aw := newTestWorker(t, gdb, mailer)

		expectDispatchFailure(mock, 1)

		execution := newExecution()
		aw.processExecution(execution)

		assert.Empty(t, mailer.sent)
		assert.Equal(t, models.ExecutionPending, execution.Status)
		require.NotNil(t, execution.NextStepAt)
		assert.Equal(t, aw.now().Add(aw.RetryBackoff), *execution.NextStepAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted retries terminate the execution", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		mailer := &fakeMailer{err: errors.New("smtp unavailable")}
		aw := newTestWorker(t, gdb, mailer)

		expectDispatchFailure(mock, int64(aw.MaxRetries))

		execution := newExecution()
		aw.processExecution(execution)

		assert.Empty(t, mailer.sent)
		assert.Equal(t, models.ExecutionFailed, execution.Status)
		require.NotNil(t, execution.CompletedAt)
		assert.Nil(t, execution.NextStepAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// A paused automation releases the claim and leaves the execution untouched
func TestProcessExecutionPausedAutomation(t *testing.T) {
	gdb, mock := newMockDB(t)
	mailer := &fakeMailer{}
	aw := newTestWorker(t, gdb, mailer)

	mock.ExpectQuery(`SELECT (.+) FROM "automations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "trigger_type"}).
			AddRow(1, models.AutomationPaused, models.TriggerWelcome))
	mock.ExpectQuery(`SELECT (.+) FROM "automation_steps"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "step_order"}))

	// Claim released
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "automation_executions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	execution := &models.AutomationExecution{
		Model:         gorm.Model{ID: 2},
		AutomationID:  1,
		SubscriberID:  5,
		CurrentStepID: utils.Pointer(uint(10)),
		Status:        models.ExecutionPending,
	}
	aw.processExecution(execution)

	assert.Empty(t, mailer.sent)
	assert.Equal(t, models.ExecutionPending, execution.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
