package models

import (
	"time"
)

// Session groups the activity recorded by one tracking run. Rows are
// written once at startup and never mutated afterwards.
type Session struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"not null;index" json:"date"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Spans       []ActivitySpan `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	IdlePeriods []IdlePeriod   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:   id,
		Date: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}
}
