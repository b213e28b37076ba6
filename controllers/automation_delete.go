package controller

import (
	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
)

// DeleteAutomation removes an automation with its steps and executions.
// Step logs reference executions without foreign keys and stay behind as
// the audit trail.
func (ac *AutomationController) DeleteAutomation(c *fiber.Ctx) error {
	var automation models.Automation
	if err := ac.DB.First(&automation, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}

	tx := ac.DB.Begin()

	if err := tx.Unscoped().
		Where("automation_id = ?", automation.ID).
		Delete(&models.AutomationStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete automation steps",
		})
	}

	if err := tx.Unscoped().
		Where("automation_id = ?", automation.ID).
		Delete(&models.AutomationExecution{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete automation executions",
		})
	}

	if err := tx.Unscoped().Delete(&automation).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete automation",
		})
	}

	tx.Commit()

	utils.LogEvent("automation_deleted", map[string]interface{}{
		"automation_id": automation.ID,
		"name":          automation.Name,
	})

	return c.JSON(fiber.Map{
		"message": "Automation deleted successfully",
	})
}
