package controller

import (
	"log"

	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{
		DB:     db,
		Logger: logger,
	}
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	adminID, _ := c.Locals("adminID").(uint)

	var input struct {
		Name        string `json:"name" validate:"required,min=1,max=255"`
		Description string `json:"description"`
		HTMLContent string `json:"html_content" validate:"required"`
		Category    string `json:"category"`
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

	template := models.Template{
		Name:        input.Name,
		Description: input.Description,
		HTMLContent: input.HTMLContent,
		Category:    input.Category,
		CreatedBy:   adminID,
	}
	if err := tc.DB.Create(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Template created successfully",
		"template": template,
	})
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	query := tc.DB.Model(&models.Template{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []models.Template
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch templates",
		})
	}
	return c.JSON(templates)
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	var template models.Template
	if err := tc.DB.First(&template, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}
	return c.JSON(template)
}

// DeleteTemplate removes a template unless a step still references it
func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	var template models.Template
	if err := tc.DB.First(&template, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var inUse int64
	if err := tc.DB.Model(&models.AutomationStep{}).
		Where("template_id = ?", template.ID).
		Count(&inUse).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check template usage",
		})
	}
	if inUse > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Template is used by one or more automation steps",
		})
	}

	if err := tc.DB.Delete(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete template",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Template deleted successfully",
	})
}
