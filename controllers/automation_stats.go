package controller

import (
	"mailflow/models"

	"github.com/gofiber/fiber/v2"
)

// GetAutomationStats returns execution counts and the completion rate for
// one automation. In-flight executions count toward the total only.
func (ac *AutomationController) GetAutomationStats(c *fiber.Ctx) error {
	var automation models.Automation
	if err := ac.DB.First(&automation, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}

	var rows []struct {
		Status string
		Count  int64
	}
	err := ac.DB.Model(&models.AutomationExecution{}).
		Select("status, COUNT(*) as count").
		Where("automation_id = ?", automation.ID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch automation stats",
		})
	}

	var total, completed, pending, failed int64
	for _, row := range rows {
		total += row.Count
		switch row.Status {
		case models.ExecutionCompleted:
			completed += row.Count
		case models.ExecutionPending:
			pending += row.Count
		case models.ExecutionFailed:
			failed += row.Count
		}
	}

	stats := models.BuildAutomationStats(total, completed, pending, failed)

	return c.JSON(fiber.Map{
		"automation_id": automation.ID,
		"stats":         stats,
	})
}
