package tracker

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/screentimed/screentimed/internal/models"
	"github.com/screentimed/screentimed/pkg/system"
)

// UsageStore is the slice of the persistence boundary the state machine
// writes through. *database.Store satisfies it.
type UsageStore interface {
	EnsureApplication(name, path string) error
	OpenOrExtendSpan(span *models.ActivitySpan) error
	CloseSpan(id string, at time.Time) error
	RecordIdle(idle *models.IdlePeriod) error
	UpsertClassification(appName, windowTitle string) error
}

type state int

const (
	stateNoSpan state = iota
	stateSpanOpen
	stateIdleOpen
)

// openSpan is the single in-memory open activity span of the session.
type openSpan struct {
	id          string
	appName     string
	appPath     string
	windowTitle string
	windowID    uint32
	startTime   time.Time
	lastUpdated time.Time
}

// openIdle is an idle interval still in progress. It is only persisted
// once input resumes or the session stops, so both bounds are known.
type openIdle struct {
	id       string
	appName  string
	windowID string
	start    time.Time
}

// SessionTracker is the per-session state machine turning observer
// samples into activity spans and idle periods. In-memory state is
// authoritative; every store write is an idempotent upsert keyed by a
// tracker-generated id, so a failed write is simply retried by the next
// tick without losing time.
type SessionTracker struct {
	mu        sync.Mutex
	sessionID string
	store     UsageStore

	state    state
	span     *openSpan
	idle     *openIdle
	lastTick time.Time

	// Closed idle intervals whose persistence failed; retried each tick.
	pendingIdles []*models.IdlePeriod
}

func NewSessionTracker(sessionID string, store UsageStore) *SessionTracker {
	return &SessionTracker{
		sessionID: sessionID,
		store:     store,
		state:     stateNoSpan,
	}
}

// HandleSample advances the state machine by one observer tick.
func (t *SessionTracker) HandleSample(sample system.Sample, isIdle bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := sample.Timestamp.Truncate(time.Second)
	if !t.lastTick.IsZero() && ts.Before(t.lastTick) {
		// The clock is assumed monotonic; a tick faster than the clock's
		// resolution coalesces onto the previous instant.
		ts = t.lastTick
	}
	if ts.Equal(t.lastTick) && t.state == stateSpanOpen && !t.targetChanged(sample) {
		return nil
	}
	t.lastTick = ts

	t.flushPendingLocked()

	if isIdle {
		return t.handleIdleTickLocked(sample, ts)
	}
	return t.handleActiveTickLocked(sample, ts)
}

func (t *SessionTracker) handleIdleTickLocked(sample system.Sample, ts time.Time) error {
	switch t.state {
	case stateSpanOpen:
		// Close the span's current extension at the idle boundary. The
		// span stays in memory: if the same target is foreground when
		// input resumes, it is extended across the gap and the recorded
		// idle period is subtracted during aggregation.
		t.state = stateIdleOpen
		t.idle = &openIdle{
			id:       uuid.NewString(),
			appName:  t.span.appName,
			windowID: t.span.id,
			start:    ts,
		}
		if err := t.store.CloseSpan(t.span.id, ts); err != nil {
			return fmt.Errorf("failed to close span at idle boundary: %w", err)
		}

	case stateNoSpan:
		t.state = stateIdleOpen
		t.idle = &openIdle{
			id:       uuid.NewString(),
			appName:  sample.AppName,
			windowID: windowIDString(sample.WindowID),
			start:    ts,
		}

	case stateIdleOpen:
		// Still idle; the interval's end is only decided when input
		// resumes.
	}
	return nil
}

func (t *SessionTracker) handleActiveTickLocked(sample system.Sample, ts time.Time) error {
	switch t.state {
	case stateIdleOpen:
		idle := &models.IdlePeriod{
			ID:              t.idle.id,
			SessionID:       t.sessionID,
			ApplicationName: t.idle.appName,
			WindowID:        t.idle.windowID,
			StartTime:       t.idle.start,
			EndTime:         ts,
		}
		t.idle = nil
		if t.span != nil && !t.targetChanged(sample) {
			t.state = stateSpanOpen
			t.span.lastUpdated = ts
			if err := t.recordIdleLocked(idle); err != nil {
				return err
			}
			return t.persistSpanLocked()
		}

		t.state = stateNoSpan
		t.span = nil
		if err := t.recordIdleLocked(idle); err != nil {
			return err
		}
		return t.openSpanLocked(sample, ts)

	case stateSpanOpen:
		if t.targetChanged(sample) {
			old := t.span
			if err := t.store.CloseSpan(old.id, ts); err != nil {
				return fmt.Errorf("failed to close span on focus change: %w", err)
			}
			return t.openSpanLocked(sample, ts)
		}
		t.span.lastUpdated = ts
		return t.persistSpanLocked()

	case stateNoSpan:
		return t.openSpanLocked(sample, ts)
	}
	return nil
}

func (t *SessionTracker) targetChanged(sample system.Sample) bool {
	return t.span == nil ||
		t.span.appName != sample.AppName ||
		t.span.windowTitle != sample.WindowTitle
}

func (t *SessionTracker) openSpanLocked(sample system.Sample, ts time.Time) error {
	t.span = &openSpan{
		id:          uuid.NewString(),
		appName:     sample.AppName,
		appPath:     sample.AppPath,
		windowTitle: sample.WindowTitle,
		windowID:    sample.WindowID,
		startTime:   ts,
		lastUpdated: ts,
	}
	t.state = stateSpanOpen

	if err := t.store.EnsureApplication(sample.AppName, sample.AppPath); err != nil {
		return fmt.Errorf("failed to register application: %w", err)
	}
	if err := t.store.UpsertClassification(sample.AppName, sample.WindowTitle); err != nil {
		return fmt.Errorf("failed to register classification: %w", err)
	}
	return t.persistSpanLocked()
}

func (t *SessionTracker) persistSpanLocked() error {
	span := &models.ActivitySpan{
		ID:              t.span.id,
		SessionID:       t.sessionID,
		ApplicationName: t.span.appName,
		WindowTitle:     t.span.windowTitle,
		StartTime:       t.span.startTime,
		LastUpdatedTime: t.span.lastUpdated,
	}
	if err := t.store.OpenOrExtendSpan(span); err != nil {
		return fmt.Errorf("failed to persist span: %w", err)
	}
	return nil
}

func (t *SessionTracker) recordIdleLocked(idle *models.IdlePeriod) error {
	if err := t.store.RecordIdle(idle); err != nil {
		t.pendingIdles = append(t.pendingIdles, idle)
		return fmt.Errorf("failed to record idle period: %w", err)
	}
	return nil
}

func (t *SessionTracker) flushPendingLocked() {
	if len(t.pendingIdles) == 0 {
		return
	}
	remaining := t.pendingIdles[:0]
	for _, idle := range t.pendingIdles {
		if err := t.store.RecordIdle(idle); err != nil {
			remaining = append(remaining, idle)
		}
	}
	t.pendingIdles = remaining
}

// Stop closes the open span and any open idle interval at the given
// timestamp and flushes them, so a clean shutdown leaves nothing open.
func (t *SessionTracker) Stop(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	at = at.Truncate(time.Second)
	if !t.lastTick.IsZero() && at.Before(t.lastTick) {
		at = t.lastTick
	}

	t.flushPendingLocked()

	var firstErr error
	switch t.state {
	case stateSpanOpen:
		if err := t.store.CloseSpan(t.span.id, at); err != nil {
			firstErr = fmt.Errorf("failed to close span on stop: %w", err)
		}
	case stateIdleOpen:
		idle := &models.IdlePeriod{
			ID:              t.idle.id,
			SessionID:       t.sessionID,
			ApplicationName: t.idle.appName,
			WindowID:        t.idle.windowID,
			StartTime:       t.idle.start,
			EndTime:         at,
		}
		if err := t.recordIdleLocked(idle); err != nil {
			firstErr = err
		}
	}

	t.state = stateNoSpan
	t.span = nil
	t.idle = nil
	return firstErr
}

// Current reports the open target for status surfaces, or ok=false when
// no span is open.
func (t *SessionTracker) Current() (appName, windowTitle string, idle bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.span == nil {
		return "", "", t.state == stateIdleOpen, false
	}
	return t.span.appName, t.span.windowTitle, t.state == stateIdleOpen, true
}

// windowIDString is used for idle attribution when no span id exists.
func windowIDString(id uint32) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}
