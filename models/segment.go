package models

import (
	"time"

	"gorm.io/gorm"
)

// Segment is a named, criteria-defined subset of subscribers
type Segment struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Criteria SegmentCriteria `gorm:"type:jsonb;serializer:json" json:"criteria"`

	CreatedBy uint `gorm:"index" json:"created_by"`
}

// SegmentCriteria filters subscribers. Zero-valued fields are ignored.
type SegmentCriteria struct {
	Status           string     `json:"status,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	SubscribedAfter  *time.Time `json:"subscribed_after,omitempty"`
	SubscribedBefore *time.Time `json:"subscribed_before,omitempty"`
}

// Matches reports whether the subscriber satisfies every set criterion.
// Tag criteria require all listed tags to be present.
func (c SegmentCriteria) Matches(sub Subscriber) bool {
	if c.Status != "" && sub.Status != c.Status {
		return false
	}
	if len(c.Tags) > 0 {
		have := make(map[string]struct{}, len(sub.Tags))
		for _, t := range sub.Tags {
			have[t] = struct{}{}
		}
		for _, t := range c.Tags {
			if _, ok := have[t]; !ok {
				return false
			}
		}
	}
	if c.SubscribedAfter != nil && sub.SubscribedAt.Before(*c.SubscribedAfter) {
		return false
	}
	if c.SubscribedBefore != nil && sub.SubscribedAt.After(*c.SubscribedBefore) {
		return false
	}
	return true
}
