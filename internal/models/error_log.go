package models

import (
	"time"
)

// ErrorLog keeps tick-level failures queryable after the fact. A failed
// sample never stops the tracker, so the log is the only trace of it.
type ErrorLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Component string    `gorm:"not null;index" json:"component"`
	ErrorMsg  string    `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
