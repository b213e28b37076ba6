package models

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Automation trigger types
const (
	TriggerWelcome      = "welcome"
	TriggerBirthday     = "birthday"
	TriggerReEngagement = "re_engagement"
	TriggerCustom       = "custom"
)

// Automation statuses
const (
	AutomationDraft  = "draft"
	AutomationActive = "active"
	AutomationPaused = "paused"
)

// Automation represents a triggerable sequence of timed email steps
type Automation struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Trigger
	TriggerType   string        `gorm:"not null;index" json:"trigger_type"` // welcome, birthday, re_engagement, custom
	TriggerConfig TriggerConfig `gorm:"type:jsonb;serializer:json" json:"trigger_config"`
	SegmentID     *uint         `gorm:"index" json:"segment_id"`

	// Lifecycle
	Status          string     `gorm:"default:'draft';index" json:"status"` // draft, active, paused
	CreatedBy       uint       `gorm:"index" json:"created_by"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`

	// Relations
	Steps      []AutomationStep      `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Executions []AutomationExecution `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE" json:"executions,omitempty"`
}

// TriggerConfig holds trigger-specific settings, interpreted per TriggerType.
// Stored as jsonb; only the fields for the automation's trigger type are set.
type TriggerConfig struct {
	// birthday: enroll this many days before the subscriber's birthday
	DaysBefore int `json:"days_before,omitempty"`

	// re_engagement: enroll subscribers inactive for at least this many days
	InactiveDays int `json:"inactive_days,omitempty"`

	// custom: the external event name that enrolls subscribers
	EventName string `json:"event_name,omitempty"`
}

// AutomationStep is one message in an automation's sequence
type AutomationStep struct {
	gorm.Model
	AutomationID uint `gorm:"not null;index" json:"automation_id"`

	StepOrder  int    `gorm:"not null" json:"step_order"`
	DelayValue int    `gorm:"not null" json:"delay_value"`
	DelayUnit  string `gorm:"not null" json:"delay_unit"` // minutes, hours, days

	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TemplateID  *uint  `json:"template_id"`
}

// DelayDuration converts the step's delay into a time.Duration.
// Unknown units fall back to minutes.
func (s AutomationStep) DelayDuration() time.Duration {
	d := time.Duration(s.DelayValue)
	switch s.DelayUnit {
	case "hours":
		return d * time.Hour
	case "days":
		return d * 24 * time.Hour
	default:
		return d * time.Minute
	}
}

// SortSteps orders steps by StepOrder ascending. StepOrder values are
// gap-tolerant; only the relative order matters.
func SortSteps(steps []AutomationStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})
}

// CurrentStep resolves the step an execution should process next: the first
// step when CurrentStepID is not yet set, otherwise the step it points at.
// Steps must already be sorted. Returns nil if the sequence is empty or the
// pointer is dangling.
func CurrentStep(steps []AutomationStep, currentStepID *uint) *AutomationStep {
	if len(steps) == 0 {
		return nil
	}
	if currentStepID == nil {
		return &steps[0]
	}
	for i := range steps {
		if steps[i].ID == *currentStepID {
			return &steps[i]
		}
	}
	return nil
}

// StepAfter returns the step following the given one in StepOrder, or nil
// when it was the last step. Steps must already be sorted.
func StepAfter(steps []AutomationStep, stepID uint) *AutomationStep {
	for i := range steps {
		if steps[i].ID == stepID {
			if i+1 < len(steps) {
				return &steps[i+1]
			}
			return nil
		}
	}
	return nil
}

// ValidateStepOrders rejects duplicate StepOrder values within one automation
func ValidateStepOrders(orders []int) error {
	seen := make(map[int]struct{}, len(orders))
	for _, o := range orders {
		if _, ok := seen[o]; ok {
			return fmt.Errorf("duplicate step_order %d", o)
		}
		seen[o] = struct{}{}
	}
	return nil
}

// ValidTriggerType reports whether t is one of the supported trigger types
func ValidTriggerType(t string) bool {
	switch t {
	case TriggerWelcome, TriggerBirthday, TriggerReEngagement, TriggerCustom:
		return true
	}
	return false
}
