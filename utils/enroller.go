package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"mailflow/models"

	"gorm.io/gorm"
)

// Enroller decides which subscribers enter which automations and creates
// their execution records. Shared by the API controllers (event-driven
// triggers) and the sweep worker (date-based triggers).
type Enroller struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEnroller(db *gorm.DB, logger *log.Logger) *Enroller {
	return &Enroller{
		DB:     db,
		Logger: logger,
	}
}

// Enroll creates a pending execution for the (automation, subscriber) pair,
// scheduled at the first step's delay from now. If an active execution
// already exists it returns that execution's id and does nothing.
func (e *Enroller) Enroll(automation *models.Automation, subscriberID uint) (uint, error) {
	var existing models.AutomationExecution
	err := e.DB.Where(
		"automation_id = ? AND subscriber_id = ? AND status IN ?",
		automation.ID, subscriberID,
		[]string{models.ExecutionPending, models.ExecutionInProgress},
	).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var firstStep models.AutomationStep
	if err := e.DB.Where("automation_id = ?", automation.ID).
		Order("step_order ASC").
		First(&firstStep).Error; err != nil {
		return 0, fmt.Errorf("automation %d has no steps: %w", automation.ID, err)
	}

	now := time.Now()
	execution := models.AutomationExecution{
		AutomationID:  automation.ID,
		SubscriberID:  subscriberID,
		CurrentStepID: &firstStep.ID,
		Status:        models.ExecutionPending,
		StartedAt:     now,
		NextStepAt:    Pointer(now.Add(firstStep.DelayDuration())),
	}
	if err := e.DB.Create(&execution).Error; err != nil {
		// The unique live-execution index rejects concurrent enrollments of
		// the same pair; the winner's row is the result either way
		var raced models.AutomationExecution
		ferr := e.DB.Where(
			"automation_id = ? AND subscriber_id = ? AND status IN ?",
			automation.ID, subscriberID,
			[]string{models.ExecutionPending, models.ExecutionInProgress},
		).First(&raced).Error
		if ferr == nil {
			return raced.ID, nil
		}
		return 0, err
	}

	if err := e.DB.Model(&models.Automation{}).
		Where("id = ?", automation.ID).
		Update("last_triggered_at", now).Error; err != nil {
		e.Logger.Printf("Failed to update last_triggered_at for automation %d: %v", automation.ID, err)
	}

	return execution.ID, nil
}

// TriggerEvent enrolls the subscriber into every active automation matching
// the event. For custom triggers, eventName must match the automation's
// configured event name; other trigger types ignore it.
func (e *Enroller) TriggerEvent(triggerType, eventName string, sub *models.Subscriber) error {
	var automations []models.Automation
	if err := e.DB.Where("trigger_type = ? AND status = ?", triggerType, models.AutomationActive).
		Find(&automations).Error; err != nil {
		return err
	}

	for i := range automations {
		automation := &automations[i]
		if triggerType == models.TriggerCustom && automation.TriggerConfig.EventName != eventName {
			continue
		}

		member, err := e.InSegment(automation.SegmentID, sub)
		if err != nil {
			e.Logger.Printf("Segment check failed for automation %d: %v", automation.ID, err)
			continue
		}
		if !member {
			continue
		}

		if _, err := e.Enroll(automation, sub.ID); err != nil {
			e.Logger.Printf("Failed to enroll subscriber %d in automation %d: %v", sub.ID, automation.ID, err)
		}
	}
	return nil
}

// InSegment reports whether the subscriber belongs to the target segment.
// A nil segment id means the automation targets all subscribers.
func (e *Enroller) InSegment(segmentID *uint, sub *models.Subscriber) (bool, error) {
	if segmentID == nil {
		return true, nil
	}
	var segment models.Segment
	if err := e.DB.First(&segment, *segmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return segment.Criteria.Matches(*sub), nil
}
