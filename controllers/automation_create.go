package controller

import (
	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
)

type AutomationStepInput struct {
	StepOrder   int    `json:"step_order" validate:"min=0"`
	DelayValue  int    `json:"delay_value" validate:"min=0"`
	DelayUnit   string `json:"delay_unit" validate:"required,oneof=minutes hours days"`
	Subject     string `json:"subject" validate:"required"`
	HTMLContent string `json:"html_content" validate:"required_without=TemplateID"`
	TemplateID  *uint  `json:"template_id"`
}

type CreateAutomationInput struct {
	Name          string               `json:"name" validate:"required,min=1,max=255"`
	Description   string               `json:"description"`
	TriggerType   string               `json:"trigger_type" validate:"required"`
	TriggerConfig models.TriggerConfig `json:"trigger_config"`
	SegmentID     *uint                `json:"segment_id"`
	Steps         []AutomationStepInput `json:"steps"`
}

// CreateAutomation creates a new automation in draft status together with
// its steps. Activation is a separate, explicit status change.
func (ac *AutomationController) CreateAutomation(c *fiber.Ctx) error {
	adminID, _ := c.Locals("adminID").(uint)

	var input CreateAutomationInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !models.ValidTriggerType(input.TriggerType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "trigger_type must be one of: welcome, birthday, re_engagement, custom",
		})
	}
	if input.TriggerType == models.TriggerCustom && input.TriggerConfig.EventName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "custom triggers require an event_name in trigger_config",
		})
	}

	orders := make([]int, len(input.Steps))
	for i, s := range input.Steps {
		if err := utils.ValidateStruct(s); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		orders[i] = s.StepOrder
	}
	if err := models.ValidateStepOrders(orders); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if input.SegmentID != nil {
		var segment models.Segment
		if err := ac.DB.First(&segment, *input.SegmentID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Segment not found",
			})
		}
	}

	tx := ac.DB.Begin()

	automation := models.Automation{
		Name:          input.Name,
		Description:   input.Description,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		SegmentID:     input.SegmentID,
		Status:        models.AutomationDraft,
		CreatedBy:     adminID,
	}
	if err := tx.Create(&automation).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create automation",
		})
	}

	for _, s := range input.Steps {
		step := models.AutomationStep{
			AutomationID: automation.ID,
			StepOrder:    s.StepOrder,
			DelayValue:   s.DelayValue,
			DelayUnit:    s.DelayUnit,
			Subject:      s.Subject,
			HTMLContent:  s.HTMLContent,
			TemplateID:   s.TemplateID,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create automation step",
			})
		}
		automation.Steps = append(automation.Steps, step)
	}

	tx.Commit()

	utils.LogEvent("automation_created", map[string]interface{}{
		"automation_id": automation.ID,
		"trigger_type":  automation.TriggerType,
		"steps":         len(automation.Steps),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Automation created successfully",
		"automation": automation,
	})
}
