package models

import (
	"time"
)

// Application is the identity registry for executables. A row is created
// the first time a process name is observed and is never deleted while
// spans or limits still reference it.
type Application struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	Path      string    `gorm:"not null" json:"path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Spans           []ActivitySpan           `gorm:"foreignKey:ApplicationName;constraint:OnDelete:CASCADE" json:"-"`
	Lifetimes       []ProcessLifetimeSpan    `gorm:"foreignKey:ApplicationName;constraint:OnDelete:CASCADE" json:"-"`
	Limits          []DailyLimit             `gorm:"foreignKey:ApplicationName;constraint:OnDelete:CASCADE" json:"-"`
	Classifications []ActivityClassification `gorm:"foreignKey:ApplicationName;constraint:OnDelete:CASCADE" json:"-"`
}

// ActivitySpan is one contiguous period during which a given
// (application, window title) pair was the foreground target. The span is
// open while the tracker keeps advancing LastUpdatedTime; once the
// foreground target changes the row is left immutable.
type ActivitySpan struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"not null;index" json:"session_id"`
	ApplicationName string    `gorm:"not null;index" json:"application_name"`
	WindowTitle     string    `gorm:"not null" json:"window_title"`
	StartTime       time.Time `gorm:"not null;index" json:"start_time"`
	LastUpdatedTime time.Time `gorm:"not null" json:"last_updated_time"`
}

// DurationSeconds is the recorded extent of the span.
func (s *ActivitySpan) DurationSeconds() int64 {
	return int64(s.LastUpdatedTime.Sub(s.StartTime).Seconds())
}

// ProcessLifetimeSpan tracks when a process is running, independent of
// which window is focused. EndTime stays NULL until process exit is
// observed by the reconciliation tick.
type ProcessLifetimeSpan struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	ApplicationName string     `gorm:"not null;index" json:"application_name"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         *time.Time `gorm:"index" json:"end_time"`
}

// IdlePeriod is a fully closed interval with no qualifying user input.
// Idle periods are only recorded retrospectively, after input resumes or
// the session ends, so both bounds are always set.
type IdlePeriod struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"not null;index" json:"session_id"`
	ApplicationName string    `gorm:"index" json:"application_name"`
	WindowID        string    `json:"window_id"`
	StartTime       time.Time `gorm:"not null;index" json:"start_time"`
	EndTime         time.Time `gorm:"not null" json:"end_time"`
}
