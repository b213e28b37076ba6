package models

import "gorm.io/gorm"

// Template represents a reusable email body resolved at send time
type Template struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	HTMLContent string `gorm:"type:text;not null" json:"html_content"`
	Category    string `json:"category"` // promotional, newsletter, announcement

	CreatedBy uint `gorm:"index" json:"created_by"`
}
