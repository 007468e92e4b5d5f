package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/screentimed/screentimed/internal/config"
	"github.com/screentimed/screentimed/internal/daemon"
	"github.com/screentimed/screentimed/internal/database"
	"github.com/screentimed/screentimed/internal/enforcer"
	"github.com/screentimed/screentimed/internal/models"
	"github.com/screentimed/screentimed/internal/reporter"
	"github.com/screentimed/screentimed/internal/tracker"
	"github.com/screentimed/screentimed/internal/web"
	"github.com/screentimed/screentimed/pkg/probe"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		startDaemon(false)
	case "serve":
		startDaemon(true)
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "report":
		generateReport()
	case "limits":
		manageLimits()
	case "clear":
		clearDatabase()
	case "version":
		fmt.Printf("screentimed version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`screentimed - Application usage tracking and limit enforcement

Usage:
  screentimed <command> [options]

Commands:
  start                    Start the tracking daemon
  serve [--port N]         Start daemon with the dashboard API server
  stop                     Stop the tracking daemon
  status                   Show daemon status and current foreground app
  report [period]          Usage report (period: day, week, month; --json, --from, --to)
  limits [set|rm|sync]     List or manage daily limits
  clear [--yes]            Delete all recorded usage data
  version                  Show version information
  help                     Show this help message

Examples:
  screentimed start
  screentimed serve --port 9000
  screentimed report week --json
  screentimed report --from 2026-08-01 --to 2026-09-01
  screentimed limits set steam --minutes 90 --close --alert-before-close
  screentimed limits rm steam
  screentimed stop

Environment Variables:
  SCREENTIMED_DB_PATH            Database file path
  SCREENTIMED_POLL_INTERVAL      Observer poll interval in seconds
  SCREENTIMED_IDLE_THRESHOLD     Idle threshold in seconds
  SCREENTIMED_RECONCILE_INTERVAL Process reconcile interval in seconds
  SCREENTIMED_ENFORCE_INTERVAL   Limit enforcement interval in seconds
  SCREENTIMED_PID_FILE           PID file path
  SCREENTIMED_LOG_FILE           Daemon log file path
  SCREENTIMED_WEB_HOST           Dashboard API bind host
  SCREENTIMED_WEB_PORT           Dashboard API port
  SCREENTIMED_LIMITS_FILE        Limits YAML file path

Version: %s
`, version)
}

func startDaemon(withWeb bool) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	port := flags.Int("port", 0, "override the dashboard API port")
	flags.Parse(os.Args[2:])

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon is already running (PID: %d)", pid)
	}

	if os.Getenv("SCREENTIMED_DAEMON_CHILD") != "1" {
		daemonize(cfg, withWeb)
		return
	}

	runDaemon(cfg, dm, withWeb, *port)
}

func runDaemon(cfg *config.Config, dm *daemon.Daemon, withWeb bool, port int) {
	logFile, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	monitor, err := probe.New()
	if err != nil {
		log.Fatalf("Failed to initialize platform monitor: %v", err)
	}
	defer monitor.Close()

	log.Printf("Platform monitor initialized (display server: %s)", probe.DetectDisplayServer())

	if err := dm.WritePID(); err != nil {
		log.Fatalf("Failed to write PID file: %v", err)
	}
	defer dm.RemovePID()

	store := database.NewStore(db)
	syncLimitsFile(store, cfg.Limits.Path)

	trackerSvc := tracker.NewService(cfg, store, monitor)
	enforcerSvc := enforcer.NewService(cfg, store, monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var webServer *web.Server
	if withWeb {
		webServer = web.NewServer(cfg, store, trackerSvc, port)
		go func() {
			if err := webServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("Web server error: %v", err)
			}
		}()
		log.Printf("Dashboard API available at: http://%s", webServer.GetAddress())
	}

	go func() {
		if err := enforcerSvc.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Enforcer error: %v", err)
		}
	}()

	go func() {
		if err := trackerSvc.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Tracker error: %v", err)
			cancel()
		}
	}()

	log.Println("Starting screentimed daemon...")
	log.Printf("Configuration:\n%s", cfg.String())

	<-sigChan
	log.Println("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	trackerSvc.Stop()
	enforcerSvc.Stop()

	if webServer != nil {
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down web server: %v", err)
		}
	}

	// Give the tracker a moment to close open spans before the process
	// exits and the deferred PID removal runs.
	time.Sleep(200 * time.Millisecond)

	log.Println("Daemon stopped successfully")
}

// syncLimitsFile applies the limits YAML written by the settings tool to
// the store. A rejected entry is logged and skipped; it never blocks
// daemon startup.
func syncLimitsFile(store *database.Store, path string) {
	file, err := config.LoadLimitsFile(path)
	if err != nil {
		log.Printf("Failed to load limits file: %v", err)
		return
	}

	for _, entry := range file.Limits {
		limit := &models.DailyLimit{
			ApplicationName:      strings.ToLower(entry.Application),
			TimeLimitMinutes:     entry.TimeLimitMinutes,
			ShouldAlert:          entry.ShouldAlert,
			ShouldClose:          entry.ShouldClose,
			AlertBeforeClose:     entry.AlertBeforeClose,
			AlertDurationSeconds: entry.AlertDurationSeconds,
		}
		if err := store.SetDailyLimit(limit); err != nil {
			log.Printf("Skipping limit for %s: %v", entry.Application, err)
			continue
		}
	}
	if len(file.Limits) > 0 {
		log.Printf("Synced %d daily limits from file", len(file.Limits))
	}
}

func stopDaemon() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		log.Fatalf("Failed to stop daemon: %v", err)
	}

	fmt.Println("Daemon stopped successfully")
}

func showStatus() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Poll Interval: %v\n", cfg.Tracker.PollInterval)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
	}

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return
	}
	defer db.Close()

	store := database.NewStore(db)
	span, err := store.LatestSpan()
	if err != nil || span == nil {
		return
	}

	fmt.Printf("\nLatest Activity:\n")
	fmt.Printf("  App: %s\n", span.ApplicationName)
	fmt.Printf("  Title: %s\n", span.WindowTitle)
	fmt.Printf("  Since: %s\n", span.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated: %s\n", span.LastUpdatedTime.Format("2006-01-02 15:04:05"))
}

func generateReport() {
	flags := flag.NewFlagSet("report", flag.ExitOnError)
	jsonOutput := flags.Bool("json", false, "output the report as JSON")
	from := flags.String("from", "", "range start date (YYYY-MM-DD)")
	to := flags.String("to", "", "range end date, exclusive (YYYY-MM-DD)")
	flags.Parse(os.Args[2:])

	periodType := "day"
	if args := flags.Args(); len(args) > 0 {
		periodType = args[0]
	}

	cfg := config.New()
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)
	rep := reporter.New(store)

	var report *models.Report
	if *from != "" {
		start, err := time.ParseInLocation("2006-01-02", *from, time.Local)
		if err != nil {
			log.Fatalf("Invalid --from date: %v", err)
		}
		end := start.Add(24 * time.Hour)
		if *to != "" {
			end, err = time.ParseInLocation("2006-01-02", *to, time.Local)
			if err != nil {
				log.Fatalf("Invalid --to date: %v", err)
			}
		}
		report, err = rep.GenerateRange(start, end, "range")
		if err != nil {
			log.Fatalf("Failed to generate report: %v", err)
		}
	} else {
		report, err = rep.Generate(periodType)
		if err != nil {
			log.Fatalf("Failed to generate report: %v", err)
		}
	}

	if *jsonOutput {
		jsonStr, err := rep.FormatJSON(report)
		if err != nil {
			log.Fatalf("Failed to format JSON: %v", err)
		}
		fmt.Println(jsonStr)
	} else {
		fmt.Println(rep.FormatText(report))
	}
}

func manageLimits() {
	sub := "list"
	if len(os.Args) > 2 && !strings.HasPrefix(os.Args[2], "-") {
		sub = os.Args[2]
	}

	cfg := config.New()
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	store := database.NewStore(db)

	switch sub {
	case "list":
		listLimits(store)
	case "set":
		setLimit(store)
	case "rm", "remove":
		removeLimit(store)
	case "sync":
		syncLimitsFile(store, cfg.Limits.Path)
		fmt.Println("Limits file synced")
	default:
		fmt.Printf("Unknown limits subcommand: %s (valid: list, set, rm, sync)\n", sub)
		os.Exit(1)
	}
}

func listLimits(store *database.Store) {
	limits, err := store.ListDailyLimits()
	if err != nil {
		log.Fatalf("Failed to list limits: %v", err)
	}

	if len(limits) == 0 {
		fmt.Println("No daily limits configured")
		return
	}

	fmt.Printf("%-25s %8s %7s %7s %13s %7s\n", "Application", "Limit", "Alert", "Close", "AlertBefore", "Grace")
	for _, l := range limits {
		fmt.Printf("%-25s %7dm %7v %7v %13v %6ds\n",
			l.ApplicationName, l.TimeLimitMinutes,
			l.ShouldAlert, l.ShouldClose, l.AlertBeforeClose, l.AlertDurationSeconds)
	}
}

func setLimit(store *database.Store) {
	flags := flag.NewFlagSet("limits set", flag.ExitOnError)
	minutes := flags.Int("minutes", 0, "daily active-time limit in minutes")
	alert := flags.Bool("alert", false, "notify when the limit is reached")
	closeApp := flags.Bool("close", false, "terminate the application when the limit is reached")
	alertBefore := flags.Bool("alert-before-close", false, "notify and wait a grace period before terminating")
	grace := flags.Int("alert-duration", 10, "grace period in seconds before terminating")
	flags.Parse(os.Args[3:])

	args := flags.Args()
	if len(args) < 1 {
		fmt.Println("Usage: screentimed limits set <application> --minutes N [--alert|--close] [--alert-before-close] [--alert-duration S]")
		os.Exit(1)
	}

	limit := &models.DailyLimit{
		ApplicationName:      strings.ToLower(args[0]),
		TimeLimitMinutes:     *minutes,
		ShouldAlert:          *alert,
		ShouldClose:          *closeApp,
		AlertBeforeClose:     *alertBefore,
		AlertDurationSeconds: *grace,
	}

	if err := store.SetDailyLimit(limit); err != nil {
		log.Fatalf("Failed to set limit: %v", err)
	}

	fmt.Printf("Limit set: %s at %dm per day\n", limit.ApplicationName, limit.TimeLimitMinutes)
}

func removeLimit(store *database.Store) {
	if len(os.Args) < 4 {
		fmt.Println("Usage: screentimed limits rm <application>")
		os.Exit(1)
	}

	app := strings.ToLower(os.Args[3])
	if err := store.DeleteDailyLimit(app); err != nil {
		log.Fatalf("Failed to remove limit: %v", err)
	}

	fmt.Printf("Limit removed: %s\n", app)
}

func clearDatabase() {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := flags.Bool("yes", false, "skip the confirmation prompt")
	flags.Parse(os.Args[2:])

	if !*yes {
		fmt.Print("This will delete all recorded usage data. Are you sure? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "yes" && response != "y" {
			fmt.Println("Operation cancelled")
			return
		}
	}

	cfg := config.New()
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)
	if err := store.Clear(); err != nil {
		log.Fatalf("Failed to clear database: %v", err)
	}

	fmt.Println("Usage data cleared (limits and classifications kept)")
}

func daemonize(cfg *config.Config, withWeb bool) {
	env := os.Environ()
	env = append(env, "SCREENTIMED_DAEMON_CHILD=1")

	args := os.Args

	procAttr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(args[0], args, procAttr)
	if err != nil {
		log.Fatalf("Failed to start daemon process: %v", err)
	}

	fmt.Printf("Daemon started successfully (PID: %d)\n", process.Pid)
	if withWeb {
		fmt.Printf("Dashboard API: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	}
	fmt.Printf("Logs: %s\n", cfg.Daemon.LogFile)
}
