package models

import (
	"time"
)

// MinLimitMinutes is the floor below which a daily limit is rejected.
const MinLimitMinutes = 15

// DailyLimit caps allowed active time per day for one application.
// ShouldAlert and ShouldClose are mutually exclusive; AlertBeforeClose and
// AlertDurationSeconds only matter when ShouldClose is set.
type DailyLimit struct {
	ApplicationName      string    `gorm:"primaryKey" json:"application_name"`
	TimeLimitMinutes     int       `gorm:"not null" json:"time_limit_minutes"`
	ShouldAlert          bool      `gorm:"not null;default:false" json:"should_alert"`
	ShouldClose          bool      `gorm:"not null;default:false" json:"should_close"`
	AlertBeforeClose     bool      `gorm:"not null;default:false" json:"alert_before_close"`
	AlertDurationSeconds int       `gorm:"not null;default:0" json:"alert_duration_seconds"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActivityClassification is a passive label keyed by the same identity as
// ActivitySpan. Nothing in the engine depends on the label; rows are
// created unclassified and filled in by an external tool.
type ActivityClassification struct {
	ApplicationName string    `gorm:"primaryKey" json:"application_name"`
	WindowTitle     string    `gorm:"primaryKey" json:"window_title"`
	Classification  *string   `json:"classification"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
