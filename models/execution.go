package models

import (
	"time"

	"gorm.io/gorm"
)

// Execution statuses
const (
	ExecutionPending    = "pending"
	ExecutionInProgress = "in_progress"
	ExecutionCompleted  = "completed"
	ExecutionFailed     = "failed"
)

// Step log statuses
const (
	StepLogSent    = "sent"
	StepLogFailed  = "failed"
	StepLogSkipped = "skipped"
)

// AutomationExecution tracks one subscriber's progress through one automation.
// At most one non-terminal execution exists per (automation, subscriber) pair.
type AutomationExecution struct {
	gorm.Model
	AutomationID uint `gorm:"not null;index" json:"automation_id"`
	SubscriberID uint `gorm:"not null;index" json:"subscriber_id"`

	// CurrentStepID points at the step scheduled to run next; nil before the
	// first step has ever been scheduled for a stepless edge case.
	CurrentStepID *uint  `json:"current_step_id"`
	Status        string `gorm:"default:'pending';index" json:"status"` // pending, in_progress, completed, failed

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// NextStepAt is when the runner may process this execution; nil once the
	// execution reaches a terminal status.
	NextStepAt *time.Time `gorm:"index" json:"next_step_at"`

	// ClaimedUntil is the optimistic claim lease taken by a runner tick.
	// A row is claimable only when this is nil or in the past.
	ClaimedUntil *time.Time `json:"-"`
}

// Terminal reports whether the execution can never run again
func (e AutomationExecution) Terminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// AutomationStepLog is an immutable audit row for one step attempt.
// ExecutionID and StepID are plain references without foreign keys so the
// audit trail survives automation deletion.
type AutomationStepLog struct {
	gorm.Model
	ExecutionID uint `gorm:"not null;index" json:"execution_id"`
	StepID      uint `gorm:"not null;index" json:"step_id"`

	Status       string     `gorm:"not null" json:"status"` // sent, failed, skipped
	MessageID    string     `json:"message_id"`
	ErrorMessage string     `json:"error_message"`
	SentAt       *time.Time `json:"sent_at"`
}

// AutomationStats aggregates execution counts for one automation
type AutomationStats struct {
	TotalExecutions     int64   `json:"total_executions"`
	CompletedExecutions int64   `json:"completed_executions"`
	PendingExecutions   int64   `json:"pending_executions"`
	FailedExecutions    int64   `json:"failed_executions"`
	CompletionRate      float64 `json:"completion_rate"`
}

// BuildAutomationStats derives the completion rate from raw counts.
// The rate is a percentage; zero totals yield a zero rate.
func BuildAutomationStats(total, completed, pending, failed int64) AutomationStats {
	stats := AutomationStats{
		TotalExecutions:     total,
		CompletedExecutions: completed,
		PendingExecutions:   pending,
		FailedExecutions:    failed,
	}
	if total > 0 {
		stats.CompletionRate = float64(completed) / float64(total) * 100
	}
	return stats
}
