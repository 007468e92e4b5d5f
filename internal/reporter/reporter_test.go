package reporter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/screentimed/screentimed/internal/models"
)

type fakeAggregator struct {
	aggregates []models.AppAggregate
	limits     []models.DailyLimit
}

func (f *fakeAggregator) AggregateUsage(start, end time.Time) ([]models.AppAggregate, error) {
	return f.aggregates, nil
}

func (f *fakeAggregator) ListDailyLimits() ([]models.DailyLimit, error) {
	return f.limits, nil
}

func TestGenerateMergesLimits(t *testing.T) {
	store := &fakeAggregator{
		aggregates: []models.AppAggregate{
			{ApplicationName: "game", ActiveSeconds: 5400, IdleSeconds: 600, ActivePercentage: 90},
			{ApplicationName: "editor", ActiveSeconds: 3600, IdleSeconds: 0, ActivePercentage: 100},
		},
		limits: []models.DailyLimit{
			{ApplicationName: "game", TimeLimitMinutes: 120, ShouldClose: true},
		},
	}

	report, err := New(store).Generate("day")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if len(report.Apps) != 2 {
		t.Fatalf("app count = %d, want 2", len(report.Apps))
	}
	if report.Applications != 2 {
		t.Errorf("Applications = %d, want 2", report.Applications)
	}

	game := report.Apps[0]
	if game.AppName != "game" {
		t.Fatalf("first app = %s, want game", game.AppName)
	}
	if game.TimeLimit == nil || *game.TimeLimit != 120 {
		t.Errorf("TimeLimit = %v, want 120", game.TimeLimit)
	}
	if game.ShouldClose == nil || !*game.ShouldClose {
		t.Errorf("ShouldClose = %v, want true", game.ShouldClose)
	}
	if game.TotalHours != 1.5 {
		t.Errorf("TotalHours = %v, want 1.5", game.TotalHours)
	}

	editor := report.Apps[1]
	if editor.TimeLimit != nil {
		t.Errorf("editor TimeLimit = %v, want nil (no limit configured)", editor.TimeLimit)
	}

	if report.TotalHours != 2.5 {
		t.Errorf("TotalHours = %v, want 2.5", report.TotalHours)
	}
}

func TestGenerateInvalidPeriod(t *testing.T) {
	_, err := New(&fakeAggregator{}).Generate("fortnight")
	if err == nil {
		t.Fatal("Generate(fortnight) succeeded, want error")
	}
	if !strings.Contains(err.Error(), "invalid period type") {
		t.Errorf("error = %v, want invalid period type", err)
	}
}

func TestGetPeriodRanges(t *testing.T) {
	for _, periodType := range []string{"day", "today", "week", "month"} {
		period, err := getPeriod(periodType)
		if err != nil {
			t.Fatalf("getPeriod(%s) error: %v", periodType, err)
		}
		if !period.End.After(period.Start) {
			t.Errorf("getPeriod(%s): end %v not after start %v", periodType, period.End, period.Start)
		}
		now := time.Now()
		if now.Before(period.Start) || now.After(period.End) {
			t.Errorf("getPeriod(%s): now outside [%v, %v]", periodType, period.Start, period.End)
		}
	}

	week, _ := getPeriod("week")
	if week.Start.Weekday() != time.Monday {
		t.Errorf("week starts on %v, want Monday", week.Start.Weekday())
	}
}

func TestFormatText(t *testing.T) {
	limit := 120
	report := &models.Report{
		Period: models.ReportPeriod{
			Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Type:  "day",
		},
		Apps: []models.AppUsageReport{
			{AppName: "game", TotalHours: 1.5, IdleHours: 0.25, ActivePercentage: 85.7, TimeLimit: &limit},
		},
		TotalHours: 1.5,
		IdleHours:  0.25,
	}

	text := New(&fakeAggregator{}).FormatText(report)
	if !strings.Contains(text, "game") {
		t.Error("text report missing app name")
	}
	if !strings.Contains(text, "120m") {
		t.Error("text report missing limit column")
	}
}

func TestFormatTextEmpty(t *testing.T) {
	report := &models.Report{Period: models.ReportPeriod{Type: "day"}}
	text := New(&fakeAggregator{}).FormatText(report)
	if !strings.Contains(text, "No activity recorded") {
		t.Errorf("empty report text = %q", text)
	}
}

func TestFormatJSONFieldNames(t *testing.T) {
	store := &fakeAggregator{
		aggregates: []models.AppAggregate{
			{ApplicationName: "game", ActiveSeconds: 3600, ActivePercentage: 100},
		},
		limits: []models.DailyLimit{
			{ApplicationName: "game", TimeLimitMinutes: 120, ShouldClose: true},
		},
	}
	rep := New(store)

	report, err := rep.Generate("day")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	jsonStr, err := rep.FormatJSON(report)
	if err != nil {
		t.Fatalf("FormatJSON() error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
		t.Fatalf("report JSON does not parse: %v", err)
	}

	for _, key := range []string{"appName", "totalHours", "activePercentage", "timeLimit", "shouldClose"} {
		if !strings.Contains(jsonStr, `"`+key+`"`) {
			t.Errorf("report JSON missing %s field", key)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 30); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a-very-long-application-name-indeed", 20); got != "a-very-long-appli..." {
		t.Errorf("truncate() = %q", got)
	}
}
