package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailflow/config"
	"mailflow/models"
	"mailflow/utils"

	"gorm.io/gorm"
)

// AutomationWorker is the execution runner. Each tick it picks up due
// executions, claims them with a lease, sends the scheduled step and moves
// the execution forward. Multiple runner instances can share one database;
// the claim decides who processes each row.
type AutomationWorker struct {
	DB       *gorm.DB
	Mailer   utils.MailServiceInterface
	Enroller *utils.Enroller
	Logger   *log.Logger

	Interval     time.Duration
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	ClaimLease   time.Duration

	FromName  string
	FromEmail string

	now func() time.Time
}

func NewAutomationWorker(db *gorm.DB, mailer utils.MailServiceInterface, logger *log.Logger) *AutomationWorker {
	cfg := config.AppConfig.Runner
	return &AutomationWorker{
		DB:           db,
		Mailer:       mailer,
		Enroller:     utils.NewEnroller(db, logger),
		Logger:       logger,
		Interval:     cfg.Interval,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		ClaimLease:   cfg.ClaimLease,
		FromName:     config.AppConfig.FromName,
		FromEmail:    config.AppConfig.FromEmail,
		now:          time.Now,
	}
}

func (aw *AutomationWorker) Start(ctx context.Context) {
	// Give the server time to finish migrations before the first tick
	time.Sleep(10 * time.Second)

	aw.Logger.Println("Automation runner started")
	ticker := time.NewTicker(aw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			aw.Logger.Println("Automation runner shutting down...")
			return
		case <-ticker.C:
			aw.processDueExecutions()
		}
	}
}

// processDueExecutions claims and processes one batch of due executions.
// Only executions of active automations are due; pausing an automation
// stops its executions from being picked up without touching their rows.
func (aw *AutomationWorker) processDueExecutions() {
	now := aw.now()

	var executions []models.AutomationExecution
	err := aw.DB.
		Joins("JOIN automations ON automations.id = automation_executions.automation_id").
		Where("automations.status = ? AND automations.deleted_at IS NULL", models.AutomationActive).
		Where("automation_executions.status IN ?", []string{models.ExecutionPending, models.ExecutionInProgress}).
		Where("automation_executions.next_step_at <= ?", now).
		Where("automation_executions.claimed_until IS NULL OR automation_executions.claimed_until < ?", now).
		Order("automation_executions.next_step_at ASC").
		Limit(aw.BatchSize).
		Find(&executions).Error
	if err != nil {
		utils.LogError("runner_query_failed", err, nil)
		return
	}

	if len(executions) == 0 {
		return
	}
	aw.Logger.Printf("Processing %d due execution(s)", len(executions))

	for i := range executions {
		if !aw.claim(&executions[i], now) {
			// Another runner got there first
			continue
		}
		aw.processExecution(&executions[i])
	}
}

// claim takes a short lease on the execution. The conditional update makes
// the claim atomic across runner instances; zero rows affected means the
// row was claimed, processed or paused since the batch query.
func (aw *AutomationWorker) claim(execution *models.AutomationExecution, now time.Time) bool {
	lease := now.Add(aw.ClaimLease)
	res := aw.DB.Exec(
		`UPDATE automation_executions
		 SET claimed_until = ?
		 WHERE id = ?
		   AND status IN ('pending', 'in_progress')
		   AND next_step_at <= ?
		   AND (claimed_until IS NULL OR claimed_until < ?)`,
		lease, execution.ID, now, now,
	)
	if res.Error != nil {
		utils.LogError("claim_failed", res.Error, map[string]interface{}{
			"execution_id": execution.ID,
		})
		return false
	}
	return res.RowsAffected == 1
}

func (aw *AutomationWorker) processExecution(execution *models.AutomationExecution) {
	var automation models.Automation
	err := aw.DB.Preload("Steps").First(&automation, execution.AutomationID).Error
	if err != nil {
		aw.failExecution(execution, 0, models.StepLogSkipped, "automation not found")
		return
	}
	if automation.Status != models.AutomationActive {
		// Paused between the batch query and the claim; leave the row for later
		aw.release(execution)
		return
	}

	// CurrentStep and StepAfter both walk the sequence in traversal order
	models.SortSteps(automation.Steps)

	step := models.CurrentStep(automation.Steps, execution.CurrentStepID)
	if step == nil {
		aw.failExecution(execution, 0, models.StepLogSkipped, "current step not found")
		return
	}

	var subscriber models.Subscriber
	if err := aw.DB.First(&subscriber, execution.SubscriberID).Error; err != nil {
		aw.failExecution(execution, step.ID, models.StepLogSkipped, "subscriber not found")
		return
	}

	// Eligibility is rechecked at send time, not just at enrollment
	if subscriber.Status != models.SubscriberActive {
		aw.failExecution(execution, step.ID, models.StepLogSkipped, "subscriber inactive")
		return
	}
	member, err := aw.Enroller.InSegment(automation.SegmentID, &subscriber)
	if err != nil {
		utils.LogError("segment_check_failed", err, map[string]interface{}{
			"execution_id": execution.ID,
		})
		aw.release(execution)
		return
	}
	if !member {
		aw.failExecution(execution, step.ID, models.StepLogSkipped, "subscriber not in segment")
		return
	}

	subject, body, err := aw.resolveContent(step)
	if err != nil {
		aw.failExecution(execution, step.ID, models.StepLogFailed, err.Error())
		return
	}
	subject = utils.PersonalizeContent(subject, subscriber.FirstName, subscriber.LastName, subscriber.Email)
	body = utils.PersonalizeContent(body, subscriber.FirstName, subscriber.LastName, subscriber.Email)

	messageID, sendErr := aw.Mailer.Send(utils.Email{
		From:    fmt.Sprintf("%s <%s>", aw.FromName, aw.FromEmail),
		To:      subscriber.Email,
		Subject: subject,
		Body:    body,
	})

	now := aw.now()
	if sendErr != nil {
		aw.recordStepLog(execution.ID, step.ID, models.StepLogFailed, "", sendErr.Error(), nil)

		failures := aw.stepFailureCount(execution.ID, step.ID)
		if retriesExhausted(failures, aw.MaxRetries) {
			applyFail(execution, now)
			aw.Logger.Printf("Execution %d failed permanently at step %d after %d attempt(s)",
				execution.ID, step.ID, failures)
		} else {
			applyRetry(execution, now, aw.RetryBackoff)
		}
		aw.saveExecution(execution)
		return
	}

	aw.recordStepLog(execution.ID, step.ID, models.StepLogSent, messageID, "", &now)
	if err := aw.DB.Model(&models.Subscriber{}).
		Where("id = ?", subscriber.ID).
		Update("last_email_sent", now).Error; err != nil {
		aw.Logger.Printf("Failed to update last_email_sent for subscriber %d: %v", subscriber.ID, err)
	}

	applyAdvance(execution, automation.Steps, step.ID, now)
	aw.saveExecution(execution)

	if execution.Status == models.ExecutionCompleted {
		aw.Logger.Printf("Execution %d completed automation %d for subscriber %d",
			execution.ID, execution.AutomationID, execution.SubscriberID)
	} else if execution.NextStepAt != nil {
		aw.Logger.Printf("Execution %d advanced to step %d, next send in %s",
			execution.ID, *execution.CurrentStepID, utils.FormatDuration(execution.NextStepAt.Sub(now)))
	}
}

// resolveContent returns the subject and html body for the step, loading the
// referenced template when the step uses one instead of inline content.
func (aw *AutomationWorker) resolveContent(step *models.AutomationStep) (string, string, error) {
	if step.TemplateID == nil {
		return step.Subject, step.HTMLContent, nil
	}
	var template models.Template
	if err := aw.DB.First(&template, *step.TemplateID).Error; err != nil {
		return "", "", fmt.Errorf("template %d not found", *step.TemplateID)
	}
	return step.Subject, template.HTMLContent, nil
}

// failExecution terminates the execution with one final audit log entry.
// Used for ineligibility and unrecoverable errors, not send retries.
func (aw *AutomationWorker) failExecution(execution *models.AutomationExecution, stepID uint, logStatus, reason string) {
	aw.recordStepLog(execution.ID, stepID, logStatus, "", reason, nil)
	applyFail(execution, aw.now())
	aw.saveExecution(execution)
	aw.Logger.Printf("Execution %d failed: %s", execution.ID, reason)
}

func (aw *AutomationWorker) recordStepLog(executionID, stepID uint, status, messageID, errorMessage string, sentAt *time.Time) {
	logEntry := models.AutomationStepLog{
		ExecutionID:  executionID,
		StepID:       stepID,
		Status:       status,
		MessageID:    messageID,
		ErrorMessage: errorMessage,
		SentAt:       sentAt,
	}
	if err := aw.DB.Create(&logEntry).Error; err != nil {
		utils.LogError("step_log_failed", err, map[string]interface{}{
			"execution_id": executionID,
			"step_id":      stepID,
		})
	}
}

func (aw *AutomationWorker) stepFailureCount(executionID, stepID uint) int {
	var count int64
	if err := aw.DB.Model(&models.AutomationStepLog{}).
		Where("execution_id = ? AND step_id = ? AND status = ?", executionID, stepID, models.StepLogFailed).
		Count(&count).Error; err != nil {
		utils.LogError("failure_count_failed", err, map[string]interface{}{
			"execution_id": executionID,
		})
		return 0
	}
	return int(count)
}

func (aw *AutomationWorker) saveExecution(execution *models.AutomationExecution) {
	if err := aw.DB.Save(execution).Error; err != nil {
		utils.LogError("execution_save_failed", err, map[string]interface{}{
			"execution_id": execution.ID,
		})
	}
}

// release gives up the claim without touching the schedule, so the
// execution is picked up again on a later tick.
func (aw *AutomationWorker) release(execution *models.AutomationExecution) {
	if err := aw.DB.Model(&models.AutomationExecution{}).
		Where("id = ?", execution.ID).
		Update("claimed_until", nil).Error; err != nil {
		aw.Logger.Printf("Failed to release execution %d: %v", execution.ID, err)
	}
}
