package x11

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"github.com/screentimed/screentimed/pkg/system"
)

// Monitor queries the X server directly for the focused window and the
// idle counter. It holds one connection for the lifetime of the tracker.
type Monitor struct {
	conn      *xgb.Conn
	root      xproto.Window
	atoms     map[string]xproto.Atom
	saverInit bool
}

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

func NewMonitor() (*Monitor, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	m := &Monitor{
		conn:  conn,
		root:  root,
		atoms: make(map[string]xproto.Atom),
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		m.atoms[name] = reply.Atom
	}

	// The idle counter comes from the MIT-SCREEN-SAVER extension. Its
	// absence is not fatal: LastInputTime reports unknown instead.
	if err := screensaver.Init(conn); err == nil {
		m.saverInit = true
	}

	return m, nil
}

func (m *Monitor) IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

// ForegroundWindow resolves the active window and its owning process.
func (m *Monitor) ForegroundWindow() (*system.Foreground, error) {
	windowID, err := m.activeWindow()
	if err != nil {
		return nil, err
	}

	instance, class := m.windowClass(windowID)
	appName := instance
	if appName == "" {
		appName = class
	}

	appPath := ""
	if pid := m.windowPID(windowID); pid != 0 {
		appPath = processPath(pid)
		if appName == "" {
			appName = processName(pid)
		}
	}

	if appName == "" {
		return nil, fmt.Errorf("active window 0x%x has no identifiable application", windowID)
	}

	return &system.Foreground{
		AppName:     appName,
		AppPath:     appPath,
		WindowTitle: m.windowName(windowID),
		WindowID:    uint32(windowID),
	}, nil
}

// LastInputTime derives the last-input timestamp from the screensaver
// idle counter. Returns the zero time when the extension is missing.
func (m *Monitor) LastInputTime() (time.Time, error) {
	if !m.saverInit {
		return time.Time{}, nil
	}

	reply, err := screensaver.QueryInfo(m.conn, xproto.Drawable(m.root)).Reply()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query idle counter: %w", err)
	}

	idle := time.Duration(reply.MsSinceUserInput) * time.Millisecond
	return time.Now().Add(-idle), nil
}

// RunningProcesses and Terminate live in the procfs integration; the X11
// monitor only covers the display-server side of the interface.

func (m *Monitor) Close() error {
	m.conn.Close()
	return nil
}

func (m *Monitor) property(window xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(m.conn, false, window, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (m *Monitor) activeWindowFromProperty() xproto.Window {
	data, err := m.property(m.root, m.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

func (m *Monitor) activeWindowFromInputFocus() xproto.Window {
	reply, err := xproto.GetInputFocus(m.conn).Reply()
	if err != nil {
		return 0
	}
	return reply.Focus
}

func (m *Monitor) topLevelParent(window xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(m.conn, window).Reply()
		if err != nil || reply.Parent == m.root || reply.Parent == 0 {
			return window
		}
		window = reply.Parent
	}
}

func (m *Monitor) hasValidName(window xproto.Window) bool {
	data, _ := m.property(window, m.atoms["_NET_WM_NAME"], m.atoms["UTF8_STRING"], 1)
	if len(data) > 0 {
		return true
	}
	data, _ = m.property(window, m.atoms["WM_NAME"], xproto.AtomString, 1)
	return len(data) > 0
}

func (m *Monitor) activeWindow() (xproto.Window, error) {
	windowID := m.activeWindowFromProperty()
	if windowID != 0 && m.hasValidName(windowID) {
		return windowID, nil
	}

	// Fall back to the input focus; some window managers never set
	// _NET_ACTIVE_WINDOW.
	windowID = m.activeWindowFromInputFocus()
	if windowID != 0 && windowID != m.root {
		topLevel := m.topLevelParent(windowID)
		if topLevel != 0 && m.hasValidName(topLevel) {
			return topLevel, nil
		}
	}

	return 0, fmt.Errorf("no active window found")
}

func (m *Monitor) windowName(window xproto.Window) string {
	data, err := m.property(window, m.atoms["_NET_WM_NAME"], m.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	data, err = m.property(window, m.atoms["WM_NAME"], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	return ""
}

func (m *Monitor) windowClass(window xproto.Window) (instance, class string) {
	data, err := m.property(window, m.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil || len(data) == 0 {
		return "", ""
	}

	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func (m *Monitor) windowPID(window xproto.Window) uint32 {
	data, err := m.property(window, m.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

func processPath(pid uint32) string {
	path, err := os.Readlink(filepath.Join("/proc", strconv.FormatUint(uint64(pid), 10), "exe"))
	if err != nil {
		return ""
	}
	return path
}

func processName(pid uint32) string {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.FormatUint(uint64(pid), 10), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
