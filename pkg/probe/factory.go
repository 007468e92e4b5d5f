package probe

import (
	"fmt"
	"os"
	"time"

	"github.com/screentimed/screentimed/pkg/integrations/notify"
	"github.com/screentimed/screentimed/pkg/integrations/procfs"
	"github.com/screentimed/screentimed/pkg/integrations/x11"
	"github.com/screentimed/screentimed/pkg/system"
)

// monitor composes the per-concern integrations into the one capability
// interface the engine consumes.
type monitor struct {
	display  *x11.Monitor
	procs    *procfs.Scanner
	notifier *notify.Notifier
}

// New builds the default platform monitor for the current host.
func New() (system.Monitor, error) {
	display, err := x11.NewMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display monitor: %w", err)
	}

	procs := procfs.NewScanner()
	if !procs.IsAvailable() {
		display.Close()
		return nil, fmt.Errorf("procfs not available on this host")
	}

	return &monitor{
		display:  display,
		procs:    procs,
		notifier: notify.NewNotifier(),
	}, nil
}

// DetectDisplayServer reports which display server the session runs on.
func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}

func (m *monitor) ForegroundWindow() (*system.Foreground, error) {
	return m.display.ForegroundWindow()
}

func (m *monitor) LastInputTime() (time.Time, error) {
	return m.display.LastInputTime()
}

func (m *monitor) RunningProcesses() (map[string]struct{}, error) {
	return m.procs.RunningProcesses()
}

func (m *monitor) Terminate(name string) error {
	return m.procs.Terminate(name)
}

func (m *monitor) Notify(summary, body string, duration time.Duration) error {
	return m.notifier.Notify(summary, body, duration)
}

func (m *monitor) Close() error {
	return m.display.Close()
}
