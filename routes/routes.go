package routes

import (
	"log"
	"os"

	controller "mailflow/controllers"
	"mailflow/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize controllers with their respective loggers
	automationController := controller.NewAutomationController(db, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))
	subscriberController := controller.NewSubscriberController(db, log.New(os.Stdout, "SUBSCRIBER: ", log.LstdFlags))
	segmentController := controller.NewSegmentController(db, log.New(os.Stdout, "SEGMENT: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))

	// Public endpoints, rate limited per client
	public := app.Group("", middleware.PublicRateLimiter(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	public.Post("/subscribe", subscriberController.Subscribe)
	public.Post("/unsubscribe", subscriberController.Unsubscribe)
	public.Post("/events", subscriberController.HandleEvent)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Automation routes
	automations := api.Group("/automations")
	automations.Post("/", automationController.CreateAutomation)
	automations.Get("/", automationController.GetAutomations)
	automations.Get("/:id", automationController.GetAutomation)
	automations.Put("/:id", automationController.UpdateAutomation)
	automations.Delete("/:id", automationController.DeleteAutomation)
	automations.Patch("/:id/status", automationController.UpdateAutomationStatus)
	automations.Get("/:id/stats", automationController.GetAutomationStats)

	// Subscriber routes
	subscribers := api.Group("/subscribers")
	subscribers.Get("/", subscriberController.GetSubscribers)
	subscribers.Get("/:id", subscriberController.GetSubscriber)

	// Segment routes
	segments := api.Group("/segments")
	segments.Post("/", segmentController.CreateSegment)
	segments.Get("/", segmentController.GetSegments)
	segments.Get("/:id", segmentController.GetSegment)
	segments.Delete("/:id", segmentController.DeleteSegment)

	// Template routes
	templates := api.Group("/templates")
	templates.Post("/", templateController.CreateTemplate)
	templates.Get("/", templateController.GetTemplates)
	templates.Get("/:id", templateController.GetTemplate)
	templates.Delete("/:id", templateController.DeleteTemplate)
}
