package controller

import (
	"log"
	"time"

	"mailflow/models"
	"mailflow/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SubscriberController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Enroller *utils.Enroller
}

func NewSubscriberController(db *gorm.DB, logger *log.Logger) *SubscriberController {
	return &SubscriberController{
		DB:       db,
		Logger:   logger,
		Enroller: utils.NewEnroller(db, logger),
	}
}

// Subscribe registers a new subscriber and fires the welcome trigger.
// Re-subscribing an unsubscribed address reactivates it without firing
// welcome automations again.
func (sc *SubscriberController) Subscribe(c *fiber.Ctx) error {
	var input struct {
		Email       string     `json:"email" validate:"required"`
		FirstName   string     `json:"first_name"`
		LastName    string     `json:"last_name"`
		DateOfBirth *time.Time `json:"date_of_birth"`
		Tags        []string   `json:"tags"`
		Source      string     `json:"source"`
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
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	var existing models.Subscriber
	err := sc.DB.Where("email = ?", input.Email).First(&existing).Error
	if err == nil {
		if existing.Status == models.SubscriberUnsubscribed {
			existing.Status = models.SubscriberActive
			existing.UnsubscribedAt = nil
			existing.LastActivityAt = utils.Pointer(time.Now())
			if err := sc.DB.Save(&existing).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to reactivate subscriber",
				})
			}
			return c.JSON(fiber.Map{
				"message":    "Subscription reactivated",
				"subscriber": existing,
			})
		}
		return c.JSON(fiber.Map{
			"message":    "Already subscribed",
			"subscriber": existing,
		})
	}

	now := time.Now()
	subscriber := models.Subscriber{
		Email:          input.Email,
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Status:         models.SubscriberActive,
		Source:         input.Source,
		Tags:           input.Tags,
		DateOfBirth:    input.DateOfBirth,
		SubscribedAt:   now,
		LastActivityAt: &now,
	}
	if err := sc.DB.Create(&subscriber).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create subscriber",
		})
	}

	if err := sc.Enroller.TriggerEvent(models.TriggerWelcome, "", &subscriber); err != nil {
		sc.Logger.Printf("Welcome trigger failed for subscriber %d: %v", subscriber.ID, err)
	}

	utils.LogEvent("subscriber_created", map[string]interface{}{
		"subscriber_id": subscriber.ID,
		"source":        subscriber.Source,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Subscribed successfully",
		"subscriber": subscriber,
	})
}

// Unsubscribe marks the subscriber as unsubscribed. The runner rechecks
// status before every send, so in-flight executions stop delivering.
func (sc *SubscriberController) Unsubscribe(c *fiber.Ctx) error {
	var input struct {
		Email string `json:"email" validate:"required"`
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

	var subscriber models.Subscriber
	if err := sc.DB.Where("email = ?", input.Email).First(&subscriber).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subscriber not found",
		})
	}

	if subscriber.Status != models.SubscriberUnsubscribed {
		subscriber.Status = models.SubscriberUnsubscribed
		subscriber.UnsubscribedAt = utils.Pointer(time.Now())
		if err := sc.DB.Save(&subscriber).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to unsubscribe",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "Unsubscribed successfully",
	})
}

// HandleEvent receives a named external event for a subscriber and fires
// the matching custom-trigger automations. Any event also refreshes the
// subscriber's activity timestamp.
func (sc *SubscriberController) HandleEvent(c *fiber.Ctx) error {
	var input struct {
		EventName string `json:"event_name" validate:"required"`
		Email     string `json:"email" validate:"required"`
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

	var subscriber models.Subscriber
	if err := sc.DB.Where("email = ?", input.Email).First(&subscriber).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subscriber not found",
		})
	}
	if subscriber.Status != models.SubscriberActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Subscriber is not active",
		})
	}

	now := time.Now()
	subscriber.LastActivityAt = &now
	if err := sc.DB.Save(&subscriber).Error; err != nil {
		sc.Logger.Printf("Failed to update activity for subscriber %d: %v", subscriber.ID, err)
	}

	if err := sc.Enroller.TriggerEvent(models.TriggerCustom, input.EventName, &subscriber); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process event",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Event processed",
	})
}

// GetSubscribers returns a paginated list, optionally filtered by status
func (sc *SubscriberController) GetSubscribers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := sc.DB.Model(&models.Subscriber{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count subscribers",
		})
	}

	var subscribers []models.Subscriber
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch subscribers",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  subscribers,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetSubscriber returns one subscriber with their execution history
func (sc *SubscriberController) GetSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subscriber not found",
		})
	}

	var executions []models.AutomationExecution
	if err := sc.DB.Where("subscriber_id = ?", subscriber.ID).
		Order("created_at DESC").
		Find(&executions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch subscriber executions",
		})
	}

	return c.JSON(fiber.Map{
		"subscriber": subscriber,
		"executions": executions,
	})
}
