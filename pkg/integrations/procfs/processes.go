package procfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Scanner enumerates and terminates processes through /proc. It covers
// the process-set half of the system interface; window focus is the X11
// integration's job.
type Scanner struct {
	root string
}

func NewScanner() *Scanner {
	return &Scanner{root: "/proc"}
}

func (s *Scanner) IsAvailable() bool {
	_, err := os.Stat(s.root)
	return err == nil
}

// RunningProcesses returns the set of process names (comm) currently
// present. Entries that vanish mid-scan are skipped.
func (s *Scanner) RunningProcesses() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.root, err)
	}

	names := make(map[string]struct{})
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		name, err := s.commName(pid)
		if err != nil || name == "" {
			continue
		}
		names[strings.ToLower(name)] = struct{}{}
	}

	return names, nil
}

// Terminate sends SIGTERM to every process whose name matches. A process
// that exited between scan and signal is not an error.
func (s *Scanner) Terminate(name string) error {
	pids, err := s.findByName(name)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return fmt.Errorf("no running process named %q", name)
	}

	var firstErr error
	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to signal pid %d (%s): %w", pid, name, err)
			}
		}
	}
	return firstErr
}

func (s *Scanner) findByName(name string) ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.root, err)
	}

	name = strings.ToLower(name)
	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := s.commName(pid)
		if err != nil {
			continue
		}
		if strings.ToLower(comm) == name {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (s *Scanner) commName(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
