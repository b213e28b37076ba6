package worker

import (
	"time"

	"mailflow/models"
	"mailflow/utils"
)

// Execution state transitions, kept free of database access so the runner's
// progression rules can be exercised in isolation.

// applyAdvance moves the execution past the step that just sent. With a
// following step the execution stays live and is scheduled after that step's
// delay; otherwise it completes. The claim is dropped either way.
func applyAdvance(execution *models.AutomationExecution, steps []models.AutomationStep, sentStepID uint, now time.Time) {
	execution.ClaimedUntil = nil

	next := models.StepAfter(steps, sentStepID)
	if next == nil {
		execution.Status = models.ExecutionCompleted
		execution.CompletedAt = &now
		execution.NextStepAt = nil
		return
	}

	execution.Status = models.ExecutionInProgress
	execution.CurrentStepID = &next.ID
	execution.NextStepAt = utils.Pointer(now.Add(next.DelayDuration()))
}

// applyFail terminates the execution. Terminal executions are never
// rescheduled, so NextStepAt is cleared along with the claim.
func applyFail(execution *models.AutomationExecution, now time.Time) {
	execution.Status = models.ExecutionFailed
	execution.CompletedAt = &now
	execution.NextStepAt = nil
	execution.ClaimedUntil = nil
}

// applyRetry reschedules the current step after the backoff. The status is
// left alone; a pending execution that has never sent stays pending.
func applyRetry(execution *models.AutomationExecution, now time.Time, backoff time.Duration) {
	execution.NextStepAt = utils.Pointer(now.Add(backoff))
	execution.ClaimedUntil = nil
}

// retriesExhausted reports whether a step has failed often enough to
// terminate the execution. failures counts recorded failed attempts,
// including the one that just happened.
func retriesExhausted(failures, maxRetries int) bool {
	return failures >= maxRetries
}
