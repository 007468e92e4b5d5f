package notify

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Notifier shows desktop notifications via notify-send, the lowest common
// denominator across Linux desktops.
type Notifier struct {
	hasNotifySend bool
}

func NewNotifier() *Notifier {
	_, err := exec.LookPath("notify-send")
	return &Notifier{hasNotifySend: err == nil}
}

func (n *Notifier) IsAvailable() bool {
	return n.hasNotifySend
}

// Notify displays the notification for the given duration. Duration zero
// leaves the desktop's default timeout in place.
func (n *Notifier) Notify(summary, body string, duration time.Duration) error {
	if !n.hasNotifySend {
		return fmt.Errorf("notify-send not available")
	}

	args := []string{"--app-name", "screentimed"}
	if duration > 0 {
		args = append(args, "--expire-time", strconv.FormatInt(duration.Milliseconds(), 10))
	}
	args = append(args, summary, body)

	cmd := exec.Command("notify-send", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}
