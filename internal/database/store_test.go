package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/screentimed/screentimed/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Connect(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, store *Store) string {
	t.Helper()
	id := uuid.NewString()
	if err := store.CreateSession(models.NewSession(id, base)); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	return id
}

func seedSpan(t *testing.T, store *Store, sessionID, app string, start, end time.Time) string {
	t.Helper()
	if err := store.EnsureApplication(app, "/usr/bin/"+app); err != nil {
		t.Fatalf("EnsureApplication() error: %v", err)
	}
	id := uuid.NewString()
	span := &models.ActivitySpan{
		ID:              id,
		SessionID:       sessionID,
		ApplicationName: app,
		WindowTitle:     "window",
		StartTime:       start,
		LastUpdatedTime: end,
	}
	if err := store.OpenOrExtendSpan(span); err != nil {
		t.Fatalf("OpenOrExtendSpan() error: %v", err)
	}
	return id
}

func TestSetDailyLimitValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.SetDailyLimit(&models.DailyLimit{
		ApplicationName:  "game",
		TimeLimitMinutes: 10,
		ShouldAlert:      true,
	})
	if !errors.Is(err, ErrLimitBelowMinimum) {
		t.Errorf("SetDailyLimit(10m) error = %v, want ErrLimitBelowMinimum", err)
	}

	err = store.SetDailyLimit(&models.DailyLimit{
		ApplicationName:  "game",
		TimeLimitMinutes: 30,
		ShouldAlert:      true,
		ShouldClose:      true,
	})
	if !errors.Is(err, ErrLimitConflict) {
		t.Errorf("SetDailyLimit(alert+close) error = %v, want ErrLimitConflict", err)
	}

	if err := store.SetDailyLimit(&models.DailyLimit{
		ApplicationName:  "Game",
		TimeLimitMinutes: 30,
		ShouldAlert:      true,
	}); err != nil {
		t.Fatalf("SetDailyLimit() error: %v", err)
	}

	// Same application upserts in place, names are case-insensitive.
	if err := store.SetDailyLimit(&models.DailyLimit{
		ApplicationName:  "game",
		TimeLimitMinutes: 45,
		ShouldClose:      true,
	}); err != nil {
		t.Fatalf("SetDailyLimit() upsert error: %v", err)
	}

	limits, err := store.ListDailyLimits()
	if err != nil {
		t.Fatalf("ListDailyLimits() error: %v", err)
	}
	if len(limits) != 1 {
		t.Fatalf("limit count = %d, want 1", len(limits))
	}
	if limits[0].TimeLimitMinutes != 45 || !limits[0].ShouldClose || limits[0].ShouldAlert {
		t.Errorf("upserted limit = %+v, want 45m close-only", limits[0])
	}
}

func TestGetDailyLimitMissingIsNil(t *testing.T) {
	store := newTestStore(t)

	limit, err := store.GetDailyLimit("nothing")
	if err != nil {
		t.Fatalf("GetDailyLimit() error: %v", err)
	}
	if limit != nil {
		t.Errorf("GetDailyLimit() = %+v, want nil for missing limit", limit)
	}
}

func TestOpenOrExtendSpanIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	if err := store.EnsureApplication("editor", "/usr/bin/editor"); err != nil {
		t.Fatalf("EnsureApplication() error: %v", err)
	}

	span := &models.ActivitySpan{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ApplicationName: "editor",
		WindowTitle:     "main.go",
		StartTime:       base,
		LastUpdatedTime: base,
	}
	if err := store.OpenOrExtendSpan(span); err != nil {
		t.Fatalf("OpenOrExtendSpan() error: %v", err)
	}

	span.LastUpdatedTime = base.Add(4 * time.Second)
	if err := store.OpenOrExtendSpan(span); err != nil {
		t.Fatalf("OpenOrExtendSpan() extend error: %v", err)
	}

	latest, err := store.LatestSpan()
	if err != nil {
		t.Fatalf("LatestSpan() error: %v", err)
	}
	if latest == nil {
		t.Fatal("LatestSpan() = nil after writes")
	}
	if !latest.StartTime.Equal(base) {
		t.Errorf("StartTime = %v, want %v", latest.StartTime, base)
	}
	if !latest.LastUpdatedTime.Equal(base.Add(4 * time.Second)) {
		t.Errorf("LastUpdatedTime = %v, want %v", latest.LastUpdatedTime, base.Add(4*time.Second))
	}
	if latest.DurationSeconds() != 4 {
		t.Errorf("DurationSeconds() = %d, want 4", latest.DurationSeconds())
	}
}

func TestCloseSpanNeverMovesBackwards(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)
	id := seedSpan(t, store, sessionID, "editor", base, base.Add(10*time.Second))

	if err := store.CloseSpan(id, base.Add(5*time.Second)); err != nil {
		t.Fatalf("CloseSpan() error: %v", err)
	}

	latest, err := store.LatestSpan()
	if err != nil {
		t.Fatalf("LatestSpan() error: %v", err)
	}
	if !latest.LastUpdatedTime.Equal(base.Add(10 * time.Second)) {
		t.Errorf("LastUpdatedTime = %v, want unchanged %v", latest.LastUpdatedTime, base.Add(10*time.Second))
	}
}

func TestAggregateUsageWithoutResume(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	// Three active minutes, then one idle minute after the span closed.
	spanID := seedSpan(t, store, sessionID, "editor", base, base.Add(3*time.Minute))
	if err := store.RecordIdle(&models.IdlePeriod{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ApplicationName: "editor",
		WindowID:        spanID,
		StartTime:       base.Add(3 * time.Minute),
		EndTime:         base.Add(4 * time.Minute),
	}); err != nil {
		t.Fatalf("RecordIdle() error: %v", err)
	}

	rows, err := store.AggregateUsage(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateUsage() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.ActiveSeconds != 180 {
		t.Errorf("ActiveSeconds = %d, want 180", row.ActiveSeconds)
	}
	if row.IdleSeconds != 60 {
		t.Errorf("IdleSeconds = %d, want 60", row.IdleSeconds)
	}
	if row.ActivePercentage != 75.0 {
		t.Errorf("ActivePercentage = %v, want 75", row.ActivePercentage)
	}
}

func TestAggregateUsageSubtractsOverlappingIdle(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	// A span resumed across an idle gap covers the gap; the idle period
	// recorded inside it must not be counted as active time.
	spanID := seedSpan(t, store, sessionID, "editor", base, base.Add(10*time.Minute))
	if err := store.RecordIdle(&models.IdlePeriod{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ApplicationName: "editor",
		WindowID:        spanID,
		StartTime:       base.Add(3 * time.Minute),
		EndTime:         base.Add(7 * time.Minute),
	}); err != nil {
		t.Fatalf("RecordIdle() error: %v", err)
	}

	rows, err := store.AggregateUsage(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateUsage() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.ActiveSeconds != 360 {
		t.Errorf("ActiveSeconds = %d, want 600-240=360", row.ActiveSeconds)
	}
	if row.IdleSeconds != 240 {
		t.Errorf("IdleSeconds = %d, want 240", row.IdleSeconds)
	}
	if row.ActivePercentage != 60.0 {
		t.Errorf("ActivePercentage = %v, want 60", row.ActivePercentage)
	}
}

func TestAggregateUsageOrdersByActiveTime(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	seedSpan(t, store, sessionID, "editor", base, base.Add(time.Minute))
	seedSpan(t, store, sessionID, "browser", base.Add(5*time.Minute), base.Add(15*time.Minute))

	rows, err := store.AggregateUsage(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateUsage() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(rows))
	}
	if rows[0].ApplicationName != "browser" {
		t.Errorf("first row = %s, want browser (most active first)", rows[0].ApplicationName)
	}
}

func TestActiveSecondsToday(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	seedSpan(t, store, sessionID, "game", base, base.Add(30*time.Minute))

	active, err := store.ActiveSecondsToday("Game", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ActiveSecondsToday() error: %v", err)
	}
	if active != 1800 {
		t.Errorf("ActiveSecondsToday() = %d, want 1800", active)
	}

	active, err = store.ActiveSecondsToday("unseen", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ActiveSecondsToday() error: %v", err)
	}
	if active != 0 {
		t.Errorf("ActiveSecondsToday(unseen) = %d, want 0", active)
	}
}

func TestProcessLifetimeReusesOpenSpan(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnsureApplication("game", "/usr/bin/game"); err != nil {
		t.Fatalf("EnsureApplication() error: %v", err)
	}

	first, err := store.UpsertProcessLifetime("game", base)
	if err != nil {
		t.Fatalf("UpsertProcessLifetime() error: %v", err)
	}
	second, err := store.UpsertProcessLifetime("game", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertProcessLifetime() error: %v", err)
	}
	if first != second {
		t.Errorf("lifetime ids differ (%s vs %s), want the open span reused", first, second)
	}

	if err := store.CloseProcessLifetime("game", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("CloseProcessLifetime() error: %v", err)
	}

	third, err := store.UpsertProcessLifetime("game", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("UpsertProcessLifetime() error: %v", err)
	}
	if third == first {
		t.Error("closed lifetime was reused, want a fresh span")
	}
}

func TestRecoverDanglingState(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)

	// Lifetime with recorded activity: closed at the latest span update.
	dangling, err := store.UpsertProcessLifetime("editor", base)
	if err != nil {
		t.Fatalf("UpsertProcessLifetime() error: %v", err)
	}
	seedSpan(t, store, sessionID, "editor", base.Add(time.Minute), base.Add(10*time.Minute))

	// Lifetime with no spans at all: closed at its own start.
	if err := store.EnsureApplication("silent", "/usr/bin/silent"); err != nil {
		t.Fatalf("EnsureApplication() error: %v", err)
	}
	if _, err := store.UpsertProcessLifetime("silent", base); err != nil {
		t.Fatalf("UpsertProcessLifetime() error: %v", err)
	}

	if err := store.RecoverDanglingState(); err != nil {
		t.Fatalf("RecoverDanglingState() error: %v", err)
	}

	// Every lifetime must now be closed; new ones open fresh spans.
	id, err := store.UpsertProcessLifetime("editor", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("UpsertProcessLifetime() after recovery error: %v", err)
	}
	if id == dangling {
		t.Error("dangling lifetime still open after recovery")
	}
}

func TestClassificationLifecycle(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnsureApplication("browser", "/usr/bin/browser"); err != nil {
		t.Fatalf("EnsureApplication() error: %v", err)
	}
	if err := store.UpsertClassification("browser", "news"); err != nil {
		t.Fatalf("UpsertClassification() error: %v", err)
	}

	rows, err := store.ListUnclassified(10)
	if err != nil {
		t.Fatalf("ListUnclassified() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unclassified count = %d, want 1", len(rows))
	}

	if err := store.SetClassification("browser", "news", "distraction"); err != nil {
		t.Fatalf("SetClassification() error: %v", err)
	}

	// A later tick re-registering the identity keeps the label.
	if err := store.UpsertClassification("browser", "news"); err != nil {
		t.Fatalf("UpsertClassification() error: %v", err)
	}

	rows, err = store.ListUnclassified(10)
	if err != nil {
		t.Fatalf("ListUnclassified() error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("unclassified count = %d, want 0 after labeling", len(rows))
	}
}

func TestClearKeepsConfiguration(t *testing.T) {
	store := newTestStore(t)
	sessionID := seedSession(t, store)
	seedSpan(t, store, sessionID, "editor", base, base.Add(time.Minute))

	if err := store.SetDailyLimit(&models.DailyLimit{
		ApplicationName:  "editor",
		TimeLimitMinutes: 60,
		ShouldAlert:      true,
	}); err != nil {
		t.Fatalf("SetDailyLimit() error: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	span, err := store.LatestSpan()
	if err != nil {
		t.Fatalf("LatestSpan() error: %v", err)
	}
	if span != nil {
		t.Errorf("LatestSpan() = %+v after Clear, want nil", span)
	}

	limits, err := store.ListDailyLimits()
	if err != nil {
		t.Fatalf("ListDailyLimits() error: %v", err)
	}
	if len(limits) != 1 {
		t.Errorf("limit count = %d after Clear, want 1", len(limits))
	}
}

func TestCreateErrorLog(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateErrorLog("observer", errors.New("no valid window information available")); err != nil {
		t.Fatalf("CreateErrorLog() error: %v", err)
	}
}
