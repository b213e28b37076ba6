package controller

import (
	"log"

	"mailflow/models"
	"mailflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SegmentController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSegmentController(db *gorm.DB, logger *log.Logger) *SegmentController {
	return &SegmentController{
		DB:     db,
		Logger: logger,
	}
}

func (sc *SegmentController) CreateSegment(c *fiber.Ctx) error {
	adminID, _ := c.Locals("adminID").(uint)

	var input struct {
		Name        string                 `json:"name" validate:"required,min=1,max=255"`
		Description string                 `json:"description"`
		Criteria    models.SegmentCriteria `json:"criteria"`
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

	segment := models.Segment{
		Name:        input.Name,
		Description: input.Description,
		Criteria:    input.Criteria,
		CreatedBy:   adminID,
	}
	if err := sc.DB.Create(&segment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create segment",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Segment created successfully",
		"segment": segment,
	})
}

func (sc *SegmentController) GetSegments(c *fiber.Ctx) error {
	var segments []models.Segment
	if err := sc.DB.Order("created_at DESC").Find(&segments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch segments",
		})
	}
	return c.JSON(segments)
}

// GetSegment returns the segment with its current member count
func (sc *SegmentController) GetSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Segment not found",
		})
	}

	// Criteria live in jsonb, so membership is evaluated in application code
	var subscribers []models.Subscriber
	if err := sc.DB.Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch subscribers",
		})
	}
	var members int
	for _, sub := range subscribers {
		if segment.Criteria.Matches(sub) {
			members++
		}
	}

	return c.JSON(fiber.Map{
		"segment":      segment,
		"member_count": members,
	})
}

// DeleteSegment removes a segment unless an automation still targets it
func (sc *SegmentController) DeleteSegment(c *fiber.Ctx) error {
	var segment models.Segment
	if err := sc.DB.First(&segment, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Segment not found",
		})
	}

	var inUse int64
	if err := sc.DB.Model(&models.Automation{}).
		Where("segment_id = ?", segment.ID).
		Count(&inUse).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check segment usage",
		})
	}
	if inUse > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Segment is used by one or more automations",
		})
	}

	if err := sc.DB.Delete(&segment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete segment",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Segment deleted successfully",
	})
}
