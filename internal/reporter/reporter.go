package reporter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/screentimed/screentimed/internal/models"
)

// Aggregator is the slice of the store the reporter reads.
type Aggregator interface {
	AggregateUsage(start, end time.Time) ([]models.AppAggregate, error)
	ListDailyLimits() ([]models.DailyLimit, error)
}

// Reporter joins aggregated usage with configured daily limits into the
// report rows the dashboard collaborator consumes.
type Reporter struct {
	store Aggregator
}

func New(store Aggregator) *Reporter {
	return &Reporter{store: store}
}

// Generate produces a report for a named period ("day", "week", "month").
func (r *Reporter) Generate(periodType string) (*models.Report, error) {
	period, err := getPeriod(periodType)
	if err != nil {
		return nil, err
	}
	return r.GenerateRange(period.Start, period.End, period.Type)
}

// GenerateRange produces a report for an explicit date range.
func (r *Reporter) GenerateRange(start, end time.Time, periodType string) (*models.Report, error) {
	aggregates, err := r.store.AggregateUsage(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	limits, err := r.store.ListDailyLimits()
	if err != nil {
		return nil, fmt.Errorf("failed to list daily limits: %w", err)
	}
	limitsByApp := make(map[string]models.DailyLimit, len(limits))
	for _, limit := range limits {
		limitsByApp[limit.ApplicationName] = limit
	}

	apps := make([]models.AppUsageReport, 0, len(aggregates))
	var totalActive, totalIdle int64
	for _, agg := range aggregates {
		row := models.AppUsageReport{
			AppName:          agg.ApplicationName,
			TotalHours:       float64(agg.ActiveSeconds) / 3600.0,
			IdleHours:        float64(agg.IdleSeconds) / 3600.0,
			ActivePercentage: agg.ActivePercentage,
		}
		if limit, ok := limitsByApp[agg.ApplicationName]; ok {
			row.TimeLimit = &limit.TimeLimitMinutes
			row.ShouldAlert = &limit.ShouldAlert
			row.ShouldClose = &limit.ShouldClose
			row.AlertBeforeClose = &limit.AlertBeforeClose
			row.AlertDuration = &limit.AlertDurationSeconds
		}
		apps = append(apps, row)
		totalActive += agg.ActiveSeconds
		totalIdle += agg.IdleSeconds
	}

	ratio := 0.0
	if totalActive+totalIdle > 0 {
		ratio = float64(totalActive) * 100.0 / float64(totalActive+totalIdle)
	}

	return &models.Report{
		Period:       models.ReportPeriod{Start: start, End: end, Type: periodType},
		Apps:         apps,
		TotalHours:   float64(totalActive) / 3600.0,
		IdleHours:    float64(totalIdle) / 3600.0,
		ActiveRatio:  ratio,
		Applications: len(apps),
		GeneratedAt:  time.Now(),
	}, nil
}

// getPeriod calculates the time range for a named report period
func getPeriod(periodType string) (*models.ReportPeriod, error) {
	now := time.Now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.Add(24 * time.Hour)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{Start: start, End: end, Type: periodType}, nil
}

// FormatText formats the report as human-readable text
func (r *Reporter) FormatText(report *models.Report) string {
	output := fmt.Sprintf("Usage Report - %s\n", report.Period.Type)
	output += fmt.Sprintf("Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	output += fmt.Sprintf("Active: %.2fh  Idle: %.2fh\n\n", report.TotalHours, report.IdleHours)

	if len(report.Apps) == 0 {
		output += "No activity recorded for this period.\n"
		return output
	}

	output += fmt.Sprintf("%-30s %9s %9s %8s %9s\n", "Application", "Active", "Idle", "Act%", "Limit")
	output += fmt.Sprintf("%s\n", "--------------------------------------------------------------------------------")

	for _, app := range report.Apps {
		limitStr := "-"
		if app.TimeLimit != nil {
			limitStr = fmt.Sprintf("%dm", *app.TimeLimit)
		}
		output += fmt.Sprintf("%-30s %8.2fh %8.2fh %7.1f%% %9s\n",
			truncate(app.AppName, 30),
			app.TotalHours,
			app.IdleHours,
			app.ActivePercentage,
			limitStr)
	}

	return output
}

// FormatJSON formats the report as JSON
func (r *Reporter) FormatJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
