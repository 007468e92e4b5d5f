package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/screentimed/screentimed/internal/models"
	"github.com/screentimed/screentimed/pkg/system"
)

type fakeStore struct {
	apps            map[string]string
	spans           map[string]*models.ActivitySpan
	closed          map[string]time.Time
	idles           map[string]*models.IdlePeriod
	classifications int
	spanWrites      int

	failIdleOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:   make(map[string]string),
		spans:  make(map[string]*models.ActivitySpan),
		closed: make(map[string]time.Time),
		idles:  make(map[string]*models.IdlePeriod),
	}
}

func (f *fakeStore) EnsureApplication(name, path string) error {
	f.apps[name] = path
	return nil
}

func (f *fakeStore) OpenOrExtendSpan(span *models.ActivitySpan) error {
	f.spanWrites++
	copied := *span
	f.spans[span.ID] = &copied
	return nil
}

func (f *fakeStore) CloseSpan(id string, at time.Time) error {
	f.closed[id] = at
	if span, ok := f.spans[id]; ok && span.LastUpdatedTime.Before(at) {
		span.LastUpdatedTime = at
	}
	return nil
}

func (f *fakeStore) RecordIdle(idle *models.IdlePeriod) error {
	if f.failIdleOnce {
		f.failIdleOnce = false
		return errors.New("database is locked")
	}
	copied := *idle
	f.idles[idle.ID] = &copied
	return nil
}

func (f *fakeStore) UpsertClassification(appName, windowTitle string) error {
	f.classifications++
	return nil
}

func sampleAt(ts time.Time, app, title string) system.Sample {
	return system.Sample{
		Foreground: system.Foreground{
			AppName:     app,
			AppPath:     "/usr/bin/" + app,
			WindowTitle: title,
			WindowID:    7,
		},
		Timestamp: ts,
	}
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestHandleSampleOpensAndExtendsOneSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i*2) * time.Second)
		if err := tr.HandleSample(sampleAt(ts, "editor", "main.go"), false); err != nil {
			t.Fatalf("HandleSample() error: %v", err)
		}
	}

	if len(store.spans) != 1 {
		t.Fatalf("span count = %d, want 1", len(store.spans))
	}
	for _, span := range store.spans {
		if !span.StartTime.Equal(t0) {
			t.Errorf("StartTime = %v, want %v", span.StartTime, t0)
		}
		if !span.LastUpdatedTime.Equal(t0.Add(4 * time.Second)) {
			t.Errorf("LastUpdatedTime = %v, want %v", span.LastUpdatedTime, t0.Add(4*time.Second))
		}
		if span.SessionID != "session-1" {
			t.Errorf("SessionID = %s, want session-1", span.SessionID)
		}
	}
	if store.apps["editor"] != "/usr/bin/editor" {
		t.Errorf("application path = %q, want /usr/bin/editor", store.apps["editor"])
	}
	if store.classifications != 1 {
		t.Errorf("classification upserts = %d, want 1", store.classifications)
	}
}

func TestHandleSampleFocusChangeClosesOldSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0.Add(2*time.Second), "browser", "news"), false)

	if len(store.spans) != 2 {
		t.Fatalf("span count = %d, want 2", len(store.spans))
	}

	var editorID string
	for id, span := range store.spans {
		if span.ApplicationName == "editor" {
			editorID = id
		}
	}
	closedAt, ok := store.closed[editorID]
	if !ok {
		t.Fatal("editor span was not closed on focus change")
	}
	if !closedAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("closed at %v, want %v", closedAt, t0.Add(2*time.Second))
	}
}

func TestHandleSampleTitleChangeOpensNewSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "browser", "docs"), false)
	tr.HandleSample(sampleAt(t0.Add(2*time.Second), "browser", "news"), false)

	if len(store.spans) != 2 {
		t.Fatalf("span count = %d, want 2: a title change is a new target", len(store.spans))
	}
}

func TestIdleInterruptionResumesSameSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0.Add(3*time.Second), "editor", "main.go"), true)
	tr.HandleSample(sampleAt(t0.Add(7*time.Second), "editor", "main.go"), false)

	if len(store.spans) != 1 {
		t.Fatalf("span count = %d, want 1: same target resumes across idle", len(store.spans))
	}

	var span *models.ActivitySpan
	for _, s := range store.spans {
		span = s
	}
	if !span.LastUpdatedTime.Equal(t0.Add(7 * time.Second)) {
		t.Errorf("LastUpdatedTime = %v, want %v", span.LastUpdatedTime, t0.Add(7*time.Second))
	}

	if len(store.idles) != 1 {
		t.Fatalf("idle count = %d, want 1", len(store.idles))
	}
	for _, idle := range store.idles {
		if !idle.StartTime.Equal(t0.Add(3 * time.Second)) {
			t.Errorf("idle start = %v, want %v", idle.StartTime, t0.Add(3*time.Second))
		}
		if !idle.EndTime.Equal(t0.Add(7 * time.Second)) {
			t.Errorf("idle end = %v, want %v", idle.EndTime, t0.Add(7*time.Second))
		}
		if idle.WindowID != span.ID {
			t.Errorf("idle WindowID = %q, want interrupted span id %q", idle.WindowID, span.ID)
		}
	}
}

func TestIdleThenNewTargetOpensFreshSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0.Add(3*time.Second), "editor", "main.go"), true)
	tr.HandleSample(sampleAt(t0.Add(9*time.Second), "browser", "news"), false)

	if len(store.spans) != 2 {
		t.Fatalf("span count = %d, want 2", len(store.spans))
	}

	var editor, browser *models.ActivitySpan
	for _, s := range store.spans {
		switch s.ApplicationName {
		case "editor":
			editor = s
		case "browser":
			browser = s
		}
	}

	// The editor span stays bounded at the idle boundary; the gap belongs
	// to the idle period, not to either span.
	if !editor.LastUpdatedTime.Equal(t0.Add(3 * time.Second)) {
		t.Errorf("editor LastUpdatedTime = %v, want %v", editor.LastUpdatedTime, t0.Add(3*time.Second))
	}
	if !browser.StartTime.Equal(t0.Add(9 * time.Second)) {
		t.Errorf("browser StartTime = %v, want %v", browser.StartTime, t0.Add(9*time.Second))
	}
	if len(store.idles) != 1 {
		t.Fatalf("idle count = %d, want 1", len(store.idles))
	}
}

func TestFailedIdleWriteIsRetriedNextTick(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0.Add(3*time.Second), "editor", "main.go"), true)

	store.failIdleOnce = true
	if err := tr.HandleSample(sampleAt(t0.Add(5*time.Second), "editor", "main.go"), false); err == nil {
		t.Fatal("expected error from failed idle write")
	}
	if len(store.idles) != 0 {
		t.Fatalf("idle count = %d, want 0 after failed write", len(store.idles))
	}

	if err := tr.HandleSample(sampleAt(t0.Add(7*time.Second), "editor", "main.go"), false); err != nil {
		t.Fatalf("HandleSample() error: %v", err)
	}
	if len(store.idles) != 1 {
		t.Fatalf("idle count = %d, want 1 after retry", len(store.idles))
	}
}

func TestHandleSampleCoalescesSameInstant(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	writes := store.spanWrites

	// Same second, same target: nothing new to record.
	tr.HandleSample(sampleAt(t0.Add(300*time.Millisecond), "editor", "main.go"), false)
	if store.spanWrites != writes {
		t.Errorf("span writes = %d, want %d", store.spanWrites, writes)
	}
}

func TestHandleSampleClampsBackwardsClock(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0.Add(10*time.Second), "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0, "browser", "news"), false)

	for _, span := range store.spans {
		if span.StartTime.Before(t0.Add(10 * time.Second)) && span.ApplicationName == "browser" {
			t.Errorf("browser span started at %v, before the previous tick", span.StartTime)
		}
	}
}

func TestStopClosesOpenSpan(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	if err := tr.Stop(t0.Add(5 * time.Second)); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if len(store.closed) != 1 {
		t.Fatalf("closed count = %d, want 1", len(store.closed))
	}
	for _, at := range store.closed {
		if !at.Equal(t0.Add(5 * time.Second)) {
			t.Errorf("closed at %v, want %v", at, t0.Add(5*time.Second))
		}
	}

	if _, _, _, ok := tr.Current(); ok {
		t.Error("Current() reports an open span after Stop")
	}
}

func TestStopFlushesOpenIdle(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	tr.HandleSample(sampleAt(t0.Add(3*time.Second), "editor", "main.go"), true)
	if err := tr.Stop(t0.Add(8 * time.Second)); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if len(store.idles) != 1 {
		t.Fatalf("idle count = %d, want 1", len(store.idles))
	}
	for _, idle := range store.idles {
		if !idle.EndTime.Equal(t0.Add(8 * time.Second)) {
			t.Errorf("idle end = %v, want %v", idle.EndTime, t0.Add(8*time.Second))
		}
	}
}

func TestCurrentReportsOpenTarget(t *testing.T) {
	store := newFakeStore()
	tr := NewSessionTracker("session-1", store)

	if _, _, _, ok := tr.Current(); ok {
		t.Error("Current() reports a span before any sample")
	}

	tr.HandleSample(sampleAt(t0, "editor", "main.go"), false)
	app, title, idle, ok := tr.Current()
	if !ok || app != "editor" || title != "main.go" || idle {
		t.Errorf("Current() = (%s, %s, %v, %v), want (editor, main.go, false, true)", app, title, idle, ok)
	}

	tr.HandleSample(sampleAt(t0.Add(3*time.Second), "editor", "main.go"), true)
	_, _, idle, ok = tr.Current()
	if !ok || !idle {
		t.Errorf("Current() idle = %v, ok = %v, want idle during interruption", idle, ok)
	}
}
