package system

import (
	"time"
)

// Foreground describes the window currently receiving user focus.
type Foreground struct {
	AppName     string
	AppPath     string
	WindowTitle string
	WindowID    uint32
}

// Sample is one observer tick: the foreground target plus the OS-reported
// time of last user input. LastInput is the zero time when the OS could
// not report it; the classifier treats that tick as active.
type Sample struct {
	Foreground
	Timestamp time.Time
	LastInput time.Time
}

// Monitor is the capability surface the engine needs from the host.
// Tracking and enforcement are written once against this interface with
// one implementation per target platform.
type Monitor interface {
	// ForegroundWindow returns the current foreground target.
	ForegroundWindow() (*Foreground, error)

	// LastInputTime returns the OS-reported time of last keyboard/mouse
	// input. Returns the zero time when the platform cannot report it.
	LastInputTime() (time.Time, error)

	// RunningProcesses returns the set of currently running process names.
	RunningProcesses() (map[string]struct{}, error)

	// Terminate asks the OS to stop every running instance of the named
	// process.
	Terminate(name string) error

	// Notify shows a desktop notification for the given duration.
	Notify(summary, body string, duration time.Duration) error

	// Close releases any platform resources.
	Close() error
}
