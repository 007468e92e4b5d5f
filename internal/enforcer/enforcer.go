package enforcer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/screentimed/screentimed/internal/config"
	"github.com/screentimed/screentimed/internal/models"
)

// UsageReader is the slice of the store the enforcement loop reads.
type UsageReader interface {
	ListDailyLimits() ([]models.DailyLimit, error)
	ActiveSecondsToday(appName string, now time.Time) (int64, error)
}

// Actions is the slice of the platform interface enforcement acts
// through. system.Monitor satisfies it.
type Actions interface {
	RunningProcesses() (map[string]struct{}, error)
	Terminate(name string) error
	Notify(summary, body string, duration time.Duration) error
}

// Service periodically recomputes today's cumulative active time per
// application against configured daily limits and triggers alert or
// close actions. It shares nothing with the tracker but the store.
type Service struct {
	config  *config.Config
	store   UsageReader
	actions Actions

	stopChan chan struct{}
	running  bool

	day          time.Time            // local date the per-day state belongs to
	alerted      map[string]struct{}  // apps alerted today
	closePending map[string]time.Time // grace deadline before terminating
}

func NewService(cfg *config.Config, store UsageReader, actions Actions) *Service {
	return &Service{
		config:       cfg,
		store:        store,
		actions:      actions,
		stopChan:     make(chan struct{}),
		alerted:      make(map[string]struct{}),
		closePending: make(map[string]time.Time),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s.running {
		return fmt.Errorf("enforcer is already running")
	}
	s.running = true
	log.Printf("Starting limit enforcement with %v tick interval", s.config.Enforcer.TickInterval)

	ticker := time.NewTicker(s.config.Enforcer.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.running = false
			return ctx.Err()

		case <-s.stopChan:
			s.running = false
			return nil

		case <-ticker.C:
			if err := s.Check(time.Now()); err != nil {
				log.Printf("Enforcement tick failed: %v", err)
			}
		}
	}
}

func (s *Service) Stop() {
	if s.running {
		close(s.stopChan)
	}
}

// Check runs one enforcement tick. A failure for one application never
// aborts enforcement for the others; only a failed limit listing ends
// the tick early.
func (s *Service) Check(now time.Time) error {
	s.resetOnNewDay(now)

	limits, err := s.store.ListDailyLimits()
	if err != nil {
		return fmt.Errorf("failed to read daily limits: %w", err)
	}
	if len(limits) == 0 {
		return nil
	}

	running, err := s.actions.RunningProcesses()
	if err != nil {
		log.Printf("Failed to list running processes, skipping close actions: %v", err)
		running = nil
	}

	for _, limit := range limits {
		active, err := s.store.ActiveSecondsToday(limit.ApplicationName, now)
		if err != nil {
			log.Printf("Failed to compute usage for %s: %v", limit.ApplicationName, err)
			continue
		}

		if active < int64(limit.TimeLimitMinutes)*60 {
			continue
		}

		s.enforce(limit, active, now, running)
	}

	return nil
}

func (s *Service) enforce(limit models.DailyLimit, activeSeconds int64, now time.Time, running map[string]struct{}) {
	app := limit.ApplicationName
	duration := time.Duration(limit.AlertDurationSeconds) * time.Second

	if limit.ShouldClose {
		// When both flags are somehow set, close-with-alert takes
		// precedence over a plain alert.
		alertFirst := limit.AlertBeforeClose || limit.ShouldAlert

		if alertFirst {
			deadline, pending := s.closePending[app]
			if !pending {
				s.notify(limit, activeSeconds, duration)
				s.closePending[app] = now.Add(duration)
				return
			}
			if now.Before(deadline) {
				return
			}
		}
		s.terminate(app, running)
		return
	}

	if limit.ShouldAlert {
		if _, done := s.alerted[app]; done {
			return
		}
		s.notify(limit, activeSeconds, duration)
		s.alerted[app] = struct{}{}
	}
}

func (s *Service) notify(limit models.DailyLimit, activeSeconds int64, duration time.Duration) {
	body := fmt.Sprintf("You have spent %s on %s today (limit %dm).",
		formatMinutes(activeSeconds), limit.ApplicationName, limit.TimeLimitMinutes)
	if err := s.actions.Notify("Time limit reached", body, duration); err != nil {
		log.Printf("Failed to notify for %s: %v", limit.ApplicationName, err)
	}
}

func (s *Service) terminate(app string, running map[string]struct{}) {
	if running != nil {
		if _, ok := running[app]; !ok {
			return
		}
	}
	if err := s.actions.Terminate(app); err != nil {
		// Already exited or access denied; the loop moves on.
		log.Printf("Failed to terminate %s: %v", app, err)
		return
	}
	log.Printf("Terminated %s: daily limit exceeded", app)
}

// resetOnNewDay clears the once-per-day alert bookkeeping when the local
// date changes.
func (s *Service) resetOnNewDay(now time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Equal(s.day) {
		return
	}
	s.day = day
	s.alerted = make(map[string]struct{})
	s.closePending = make(map[string]time.Time)
}

func formatMinutes(seconds int64) string {
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
