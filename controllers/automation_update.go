package controller

import (
	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
)

type UpdateAutomationInput struct {
	Name          *string                `json:"name" validate:"omitempty,min=1,max=255"`
	Description   *string                `json:"description"`
	TriggerType   *string                `json:"trigger_type"`
	TriggerConfig *models.TriggerConfig  `json:"trigger_config"`
	SegmentID     *uint                  `json:"segment_id"`
	Steps         *[]AutomationStepInput `json:"steps"`
}

// UpdateAutomation applies partial updates to an automation. When steps are
// included they replace the whole sequence; executions already in flight
// keep progressing against the new sequence by step order.
func (ac *AutomationController) UpdateAutomation(c *fiber.Ctx) error {
	var automation models.Automation
	if err := ac.DB.First(&automation, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}

	var input UpdateAutomationInput
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
	if input.TriggerType != nil && !models.ValidTriggerType(*input.TriggerType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "trigger_type must be one of: welcome, birthday, re_engagement, custom",
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

	if input.Steps != nil {
		steps := *input.Steps
		if len(steps) == 0 && automation.Status != models.AutomationDraft {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Cannot remove all steps from a non-draft automation",
			})
		}
		orders := make([]int, len(steps))
		for i, s := range steps {
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
	}

	tx := ac.DB.Begin()

	if input.Name != nil {
		automation.Name = *input.Name
	}
	if input.Description != nil {
		automation.Description = *input.Description
	}
	if input.TriggerType != nil {
		automation.TriggerType = *input.TriggerType
	}
	if input.TriggerConfig != nil {
		automation.TriggerConfig = *input.TriggerConfig
	}
	if input.SegmentID != nil {
		automation.SegmentID = input.SegmentID
	}
	if err := tx.Save(&automation).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update automation",
		})
	}

	if input.Steps != nil {
		// Full replace: old steps go, the new sequence comes in atomically
		if err := tx.Unscoped().
			Where("automation_id = ?", automation.ID).
			Delete(&models.AutomationStep{}).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to replace automation steps",
			})
		}
		for _, s := range *input.Steps {
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
					"error": "Failed to replace automation steps",
				})
			}
			automation.Steps = append(automation.Steps, step)
		}
	}

	tx.Commit()

	return c.JSON(fiber.Map{
		"message":    "Automation updated successfully",
		"automation": automation,
	})
}

// UpdateAutomationStatus is the only path between draft, active and paused.
// Activating requires at least one step; pausing stops the runner from
// claiming the automation's executions without touching their state.
func (ac *AutomationController) UpdateAutomationStatus(c *fiber.Ctx) error {
	var automation models.Automation
	if err := ac.DB.First(&automation, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}

	var input struct {
		Status string `json:"status" validate:"required,oneof=draft active paused"`
	}
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

	if input.Status == models.AutomationActive {
		var stepCount int64
		if err := ac.DB.Model(&models.AutomationStep{}).
			Where("automation_id = ?", automation.ID).
			Count(&stepCount).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to check automation steps",
			})
		}
		if stepCount == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Cannot activate an automation without steps",
			})
		}
	}

	previous := automation.Status
	automation.Status = input.Status
	if err := ac.DB.Save(&automation).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update automation status",
		})
	}

	utils.LogEvent("automation_status_changed", map[string]interface{}{
		"automation_id": automation.ID,
		"from":          previous,
		"to":            automation.Status,
	})

	return c.JSON(fiber.Map{
		"message":    "Automation status updated",
		"automation": automation,
	})
}
