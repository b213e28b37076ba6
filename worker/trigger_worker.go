package worker

import (
	"context"
	"log"
	"time"

	"mailflow/config"
	"mailflow/models"
	"mailflow/utils"

	"gorm.io/gorm"
)

const (
	defaultInactiveDays = 30
	sweepBatchSize      = 100
)

// TriggerWorker runs the date-based triggers. Event triggers (welcome,
// custom) fire from the API when the event happens; birthdays and
// re-engagement have no event to hook, so this worker sweeps for matching
// subscribers on an interval. Enrollment is idempotent, so overlapping
// sweeps cannot double-enroll anyone.
type TriggerWorker struct {
	DB       *gorm.DB
	Enroller *utils.Enroller
	Logger   *log.Logger

	Interval time.Duration

	now func() time.Time
}

func NewTriggerWorker(db *gorm.DB, logger *log.Logger) *TriggerWorker {
	return &TriggerWorker{
		DB:       db,
		Enroller: utils.NewEnroller(db, logger),
		Logger:   logger,
		Interval: config.AppConfig.SweepInterval,
		now:      time.Now,
	}
}

func (tw *TriggerWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)

	tw.Logger.Println("Trigger sweep worker started")
	ticker := time.NewTicker(tw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tw.Logger.Println("Trigger sweep worker shutting down...")
			return
		case <-ticker.C:
			tw.sweepBirthdays()
			tw.sweepReEngagement()
		}
	}
}

// sweepBirthdays enrolls subscribers whose birthday (month and day) lands
// DaysBefore days from now, per active birthday automation.
func (tw *TriggerWorker) sweepBirthdays() {
	var automations []models.Automation
	err := tw.DB.Where("trigger_type = ? AND status = ?", models.TriggerBirthday, models.AutomationActive).
		Find(&automations).Error
	if err != nil {
		utils.LogError("birthday_sweep_failed", err, nil)
		return
	}
	if len(automations) == 0 {
		return
	}

	now := tw.now()
	enrolled := make([]int, len(automations))

	// Walk the subscriber table in bounded batches
	var lastID uint
	for {
		var subscribers []models.Subscriber
		err := tw.DB.Where("status = ? AND date_of_birth IS NOT NULL AND id > ?",
			models.SubscriberActive, lastID).
			Order("id ASC").
			Limit(sweepBatchSize).
			Find(&subscribers).Error
		if err != nil {
			utils.LogError("birthday_sweep_failed", err, nil)
			return
		}
		if len(subscribers) == 0 {
			break
		}

		for i := range automations {
			automation := &automations[i]
			target := now.AddDate(0, 0, automation.TriggerConfig.DaysBefore)

			for j := range subscribers {
				sub := &subscribers[j]
				if !BirthdayMatches(*sub.DateOfBirth, target) {
					continue
				}
				member, err := tw.Enroller.InSegment(automation.SegmentID, sub)
				if err != nil || !member {
					continue
				}
				if _, err := tw.Enroller.Enroll(automation, sub.ID); err != nil {
					tw.Logger.Printf("Birthday enroll failed for subscriber %d: %v", sub.ID, err)
					continue
				}
				enrolled[i]++
			}
		}

		lastID = subscribers[len(subscribers)-1].ID
		if len(subscribers) < sweepBatchSize {
			break
		}
	}

	for i := range automations {
		if enrolled[i] > 0 {
			tw.Logger.Printf("Birthday sweep enrolled %d subscriber(s) into automation %d", enrolled[i], automations[i].ID)
		}
	}
}

// sweepReEngagement enrolls subscribers whose last activity is older than
// the automation's inactivity window.
func (tw *TriggerWorker) sweepReEngagement() {
	var automations []models.Automation
	err := tw.DB.Where("trigger_type = ? AND status = ?", models.TriggerReEngagement, models.AutomationActive).
		Find(&automations).Error
	if err != nil {
		utils.LogError("re_engagement_sweep_failed", err, nil)
		return
	}

	now := tw.now()
	for i := range automations {
		automation := &automations[i]

		days := automation.TriggerConfig.InactiveDays
		if days <= 0 {
			days = defaultInactiveDays
		}
		cutoff := now.AddDate(0, 0, -days)

		enrolled := 0
		var lastID uint
		for {
			var subscribers []models.Subscriber
			err := tw.DB.Where("status = ? AND last_activity_at IS NOT NULL AND last_activity_at < ? AND id > ?",
				models.SubscriberActive, cutoff, lastID).
				Order("id ASC").
				Limit(sweepBatchSize).
				Find(&subscribers).Error
			if err != nil {
				utils.LogError("re_engagement_sweep_failed", err, map[string]interface{}{
					"automation_id": automation.ID,
				})
				break
			}
			if len(subscribers) == 0 {
				break
			}

			for j := range subscribers {
				sub := &subscribers[j]
				member, err := tw.Enroller.InSegment(automation.SegmentID, sub)
				if err != nil || !member {
					continue
				}
				if _, err := tw.Enroller.Enroll(automation, sub.ID); err != nil {
					tw.Logger.Printf("Re-engagement enroll failed for subscriber %d: %v", sub.ID, err)
					continue
				}
				enrolled++
			}

			lastID = subscribers[len(subscribers)-1].ID
			if len(subscribers) < sweepBatchSize {
				break
			}
		}
		if enrolled > 0 {
			tw.Logger.Printf("Re-engagement sweep enrolled %d subscriber(s) into automation %d", enrolled, automation.ID)
		}
	}
}

// BirthdayMatches reports whether dob's month and day match the target date
func BirthdayMatches(dob, target time.Time) bool {
	return dob.Month() == target.Month() && dob.Day() == target.Day()
}
