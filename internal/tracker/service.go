package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/screentimed/screentimed/internal/config"
	"github.com/screentimed/screentimed/internal/database"
	"github.com/screentimed/screentimed/internal/models"
	"github.com/screentimed/screentimed/pkg/system"
)

// Service drives the observer tick and the process-lifetime
// reconciliation tick for one session. The two tickers share the session
// tracker; the enforcement loop runs elsewhere and communicates only
// through the store.
type Service struct {
	config  *config.Config
	store   *database.Store
	monitor system.Monitor

	sessionID string
	session   *SessionTracker

	stopChan chan struct{}
	running  bool

	mu       sync.Mutex
	observed map[string]struct{} // apps with an open process lifetime
}

func NewService(cfg *config.Config, store *database.Store, monitor system.Monitor) *Service {
	sessionID := uuid.NewString()
	return &Service{
		config:    cfg,
		store:     store,
		monitor:   monitor,
		sessionID: sessionID,
		session:   NewSessionTracker(sessionID, store),
		stopChan:  make(chan struct{}),
		observed:  make(map[string]struct{}),
	}
}

func (s *Service) SessionID() string {
	return s.sessionID
}

// Current exposes the open foreground target for status surfaces.
func (s *Service) Current() (appName, windowTitle string, idle bool, ok bool) {
	return s.session.Current()
}

func (s *Service) Start(ctx context.Context) error {
	if s.running {
		return fmt.Errorf("tracker is already running")
	}

	// Finalize whatever a previous run left behind before recording
	// anything new. A span abandoned at a crash stays bounded by its
	// last recorded update, never extended to now.
	if err := s.store.RecoverDanglingState(); err != nil {
		return fmt.Errorf("failed to recover previous session state: %w", err)
	}

	if err := s.store.CreateSession(models.NewSession(s.sessionID, time.Now())); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.running = true
	log.Printf("Starting tracker session %s with %v poll interval", s.sessionID, s.config.Tracker.PollInterval)

	pollTicker := time.NewTicker(s.config.Tracker.PollInterval)
	defer pollTicker.Stop()

	reconcileTicker := time.NewTicker(s.config.Tracker.ReconcileInterval)
	defer reconcileTicker.Stop()

	if err := s.trackOnce(); err != nil {
		s.storeError("observer", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Tracker stopped by context")
			s.shutdown()
			return ctx.Err()

		case <-s.stopChan:
			log.Println("Tracker stopped")
			s.shutdown()
			return nil

		case <-pollTicker.C:
			if err := s.trackOnce(); err != nil {
				s.storeError("observer", err)
			}

		case <-reconcileTicker.C:
			if err := s.reconcileOnce(); err != nil {
				s.storeError("reconciler", err)
			}
		}
	}
}

func (s *Service) Stop() {
	if s.running {
		close(s.stopChan)
	}
}

func (s *Service) IsRunning() bool {
	return s.running
}

// trackOnce performs one observer tick. Any OS query failure skips the
// tick; the next one retries. In-memory tracker state already carries
// unflushed time, so a skipped tick loses nothing.
func (s *Service) trackOnce() error {
	now := time.Now()

	lastInput, err := s.monitor.LastInputTime()
	if err != nil {
		// Fail open: an unreadable idle counter must not record idle
		// time the user did not have.
		log.Printf("Last-input query failed, treating tick as active: %v", err)
		lastInput = time.Time{}
	}

	foreground, err := s.monitor.ForegroundWindow()
	if err != nil {
		return fmt.Errorf("failed to get foreground window: %w", err)
	}
	if foreground == nil || foreground.AppName == "" {
		return fmt.Errorf("no valid window information available")
	}

	isIdle := ClassifyIdle(now, lastInput, s.config.Tracker.IdleThreshold)

	sample := system.Sample{
		Foreground: *foreground,
		Timestamp:  now,
		LastInput:  lastInput,
	}

	if err := s.session.HandleSample(sample, isIdle); err != nil {
		return err
	}

	return s.openLifetime(foreground.AppName, now)
}

// openLifetime opens a process lifetime span the first time an
// application is observed. Closing happens in reconcileOnce once the
// process is confirmed gone from the running set.
func (s *Service) openLifetime(appName string, now time.Time) error {
	name := strings.ToLower(appName)

	s.mu.Lock()
	_, seen := s.observed[name]
	s.mu.Unlock()
	if seen {
		return nil
	}

	if _, err := s.store.UpsertProcessLifetime(name, now.Truncate(time.Second)); err != nil {
		return err
	}

	s.mu.Lock()
	s.observed[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

// reconcileOnce closes lifetime spans for observed applications that no
// longer appear in the running-process set. A backgrounded app still
// runs; only absence from the full process list closes its span.
func (s *Service) reconcileOnce() error {
	running, err := s.monitor.RunningProcesses()
	if err != nil {
		return fmt.Errorf("failed to list running processes: %w", err)
	}

	now := time.Now().Truncate(time.Second)

	s.mu.Lock()
	var gone []string
	for name := range s.observed {
		if _, ok := running[name]; !ok {
			gone = append(gone, name)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range gone {
		if err := s.store.CloseProcessLifetime(name, now); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.mu.Lock()
		delete(s.observed, name)
		s.mu.Unlock()
	}

	return firstErr
}

// shutdown closes all open spans, idle intervals and lifetimes at the
// current timestamp before releasing.
func (s *Service) shutdown() {
	s.running = false
	now := time.Now()

	if err := s.session.Stop(now); err != nil {
		s.storeError("shutdown", err)
	}

	s.mu.Lock()
	observed := make([]string, 0, len(s.observed))
	for name := range s.observed {
		observed = append(observed, name)
	}
	s.observed = make(map[string]struct{})
	s.mu.Unlock()

	at := now.Truncate(time.Second)
	for _, name := range observed {
		if err := s.store.CloseProcessLifetime(name, at); err != nil {
			s.storeError("shutdown", err)
		}
	}
}

func (s *Service) storeError(component string, cause error) {
	if dbErr := s.store.CreateErrorLog(component, cause); dbErr != nil {
		log.Printf("Failed to store error in database: %v (original error: %v)", dbErr, cause)
	} else {
		log.Printf("%s: %v", component, cause)
	}
}
