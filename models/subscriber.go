package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber statuses
const (
	SubscriberActive       = "active"
	SubscriberUnsubscribed = "unsubscribed"
	SubscriberBounced      = "bounced"
)

// Subscriber represents a newsletter recipient
type Subscriber struct {
	gorm.Model
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Status string `gorm:"default:'active';index" json:"status"` // active, unsubscribed, bounced
	Source string `json:"source"`                               // website, import, manual

	Tags []string `gorm:"type:jsonb;serializer:json" json:"tags,omitempty"`

	DateOfBirth    *time.Time `json:"date_of_birth"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	LastEmailSent  *time.Time `json:"last_email_sent"`
}

// FullName joins first and last name, falling back to the email address
func (s Subscriber) FullName() string {
	name := s.FirstName
	if s.LastName != "" {
		if name != "" {
			name += " "
		}
		name += s.LastName
	}
	if name == "" {
		return s.Email
	}
	return name
}
