package main

import (
	"fmt"
	"log"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/screentimed/screentimed/internal/tracker"
	"github.com/screentimed/screentimed/pkg/probe"
)

// probe watches the platform monitor without touching the database, for
// verifying window detection and idle classification on a new host.
func main() {
	flags := flag.NewFlagSet("probe", flag.ExitOnError)
	duration := flags.Duration("duration", 30*time.Second, "how long to monitor")
	interval := flags.Duration("interval", 2*time.Second, "sample interval")
	idleThreshold := flags.Duration("idle-threshold", 60*time.Second, "idle classification threshold")
	flags.Parse(os.Args[1:])

	fmt.Println("screentimed platform probe")
	fmt.Println("==========================")

	mon, err := probe.New()
	if err != nil {
		log.Fatalf("Failed to initialize platform monitor: %v", err)
	}
	defer mon.Close()

	fmt.Printf("\nDisplay Server: %s\n", probe.DetectDisplayServer())

	procs, err := mon.RunningProcesses()
	if err != nil {
		fmt.Printf("Process scan: unavailable (%v)\n", err)
	} else {
		fmt.Printf("Process scan: %d processes visible\n", len(procs))
	}

	fmt.Printf("\nMonitoring foreground window for %v...\n", *duration)
	fmt.Println("Switch between applications to verify detection")
	fmt.Println()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	timeout := time.After(*duration)
	count := 0

	for {
		select {
		case <-timeout:
			fmt.Println("\nProbe completed")
			return

		case <-ticker.C:
			count++
			now := time.Now()

			fg, err := mon.ForegroundWindow()
			if err != nil {
				log.Printf("[%d] Error: %v", count, err)
				continue
			}
			if fg == nil || fg.AppName == "" {
				log.Printf("[%d] No window detected", count)
				continue
			}

			lastInput, err := mon.LastInputTime()
			if err != nil {
				lastInput = time.Time{}
			}
			idle := tracker.ClassifyIdle(now, lastInput, *idleThreshold)

			marker := " "
			if idle {
				marker = "I"
			}

			fmt.Printf("[%d]%s App: %-20s | Title: %-50s | Window: 0x%x\n",
				count, marker,
				truncate(fg.AppName, 20),
				truncate(fg.WindowTitle, 50),
				fg.WindowID,
			)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
