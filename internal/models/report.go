package models

import (
	"time"
)

// AppAggregate is one row of the usage aggregation query: per-application
// active and idle seconds over a date range.
type AppAggregate struct {
	ApplicationName  string  `json:"application_name"`
	ActiveSeconds    int64   `json:"active_seconds"`
	IdleSeconds      int64   `json:"idle_seconds"`
	ActivePercentage float64 `json:"active_percentage"`
}

// AppUsageReport is the per-application report row produced for the
// dashboard collaborator. Limit fields are nil when no daily limit is
// configured for the application.
type AppUsageReport struct {
	AppName          string  `json:"appName"`
	TotalHours       float64 `json:"totalHours"`
	IdleHours        float64 `json:"idleHours"`
	ActivePercentage float64 `json:"activePercentage"`
	TimeLimit        *int    `json:"timeLimit"`
	ShouldAlert      *bool   `json:"shouldAlert"`
	ShouldClose      *bool   `json:"shouldClose"`
	AlertBeforeClose *bool   `json:"alertBeforeClose"`
	AlertDuration    *int    `json:"alertDuration"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month" or "range"
}

type Report struct {
	Period       ReportPeriod     `json:"period"`
	Apps         []AppUsageReport `json:"apps"`
	TotalHours   float64          `json:"total_hours"`
	IdleHours    float64          `json:"idle_hours"`
	GeneratedAt  time.Time        `json:"generated_at"`
	ActiveRatio  float64          `json:"active_ratio"`
	Applications int              `json:"applications"`
}
