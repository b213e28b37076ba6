package controller

import (
	"log"

	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AutomationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Logger: logger,
	}
}

// GetAutomations returns a paginated list of automations, optionally
// filtered by status
func (ac *AutomationController) GetAutomations(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := ac.DB.Model(&models.Automation{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count automations",
		})
	}

	var automations []models.Automation
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&automations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch automations",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  automations,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetAutomation returns a single automation with its steps in order
func (ac *AutomationController) GetAutomation(c *fiber.Ctx) error {
	var automation models.Automation
	err := ac.DB.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		First(&automation, utils.ParseUint(c.Params("id"))).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}

	return c.JSON(automation)
}
