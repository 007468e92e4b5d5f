package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/screentimed/screentimed/internal/config"
	"github.com/screentimed/screentimed/internal/database"
	"github.com/screentimed/screentimed/internal/models"
	"github.com/screentimed/screentimed/internal/reporter"
	"github.com/screentimed/screentimed/pkg/utils"
)

// StatusSource exposes the live foreground target of the tracker loop.
type StatusSource interface {
	Current() (appName, windowTitle string, idle bool, ok bool)
	SessionID() string
}

type Handler struct {
	config   *config.Config
	store    *database.Store
	status   StatusSource
	reporter *reporter.Reporter
}

func NewHandler(cfg *config.Config, store *database.Store, status StatusSource) *Handler {
	return &Handler{
		config:   cfg,
		store:    store,
		status:   status,
		reporter: reporter.New(store),
	}
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/report", h.handleReport)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/limits", h.handleLimits)
	mux.HandleFunc("/api/classifications", h.handleClassifications)

	mux.HandleFunc("/health", h.handleHealth)

	mux.HandleFunc("/", h.handleIndex)
}

// handleReport serves a usage report for a named period, or for an
// explicit from/to date range (YYYY-MM-DD, end exclusive).
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	var report *models.Report
	var err error

	if from := query.Get("from"); from != "" {
		start, perr := time.ParseInLocation("2006-01-02", from, time.Local)
		if perr != nil {
			http.Error(w, fmt.Sprintf("invalid from date: %v", perr), http.StatusBadRequest)
			return
		}
		end := start.Add(24 * time.Hour)
		if to := query.Get("to"); to != "" {
			end, perr = time.ParseInLocation("2006-01-02", to, time.Local)
			if perr != nil {
				http.Error(w, fmt.Sprintf("invalid to date: %v", perr), http.StatusBadRequest)
				return
			}
		}
		if !end.After(start) {
			http.Error(w, "to must be after from", http.StatusBadRequest)
			return
		}
		report, err = h.reporter.GenerateRange(start, end, "range")
	} else {
		periodType := query.Get("period")
		if periodType == "" {
			periodType = "day"
		}
		report, err = h.reporter.Generate(periodType)
	}

	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate report: %v", err), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.respondReportHTML(w, report)
		return
	}

	respondJSON(w, report)
}

func (h *Handler) respondReportHTML(w http.ResponseWriter, report *models.Report) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(report.Apps) == 0 {
		w.Write([]byte(`<div class="loading">No data available</div>`))
		return
	}

	html := `<div class="listing">`
	for _, app := range report.Apps {
		timeStr := utils.FormatRoundedUnit(int64(app.TotalHours * 3600))

		limitStr := ""
		if app.TimeLimit != nil {
			limitStr = fmt.Sprintf(`<span class="app-limit">/ %dm</span>`, *app.TimeLimit)
		}

		html += fmt.Sprintf(`
		<div class="app-item" style="--bar-width: %.1f%%">
			<span class="app-name">%s</span>
			<div>
				<span class="app-time">%s</span>
				%s
				<span class="app-percentage">%.1f%%</span>
			</div>
		</div>`, app.ActivePercentage, app.AppName, timeStr, limitStr, app.ActivePercentage)
	}
	html += `</div>`

	html += fmt.Sprintf(`<div class="total">Active: %s &middot; Idle: %s</div>`,
		utils.FormatRoundedUnit(int64(report.TotalHours*3600)),
		utils.FormatRoundedUnit(int64(report.IdleHours*3600)))

	w.Write([]byte(html))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"running":       h.status != nil,
		"poll_interval": h.config.Tracker.PollInterval.String(),
		"database_path": h.config.Database.Path,
	}

	if h.status != nil {
		status["session_id"] = h.status.SessionID()
		if app, title, idle, ok := h.status.Current(); ok {
			status["current"] = map[string]interface{}{
				"app_name":     app,
				"window_title": title,
				"idle":         idle,
			}
		} else {
			status["idle"] = idle
		}
	}

	if span, err := h.store.LatestSpan(); err == nil && span != nil {
		status["latest_span"] = map[string]interface{}{
			"app_name":     span.ApplicationName,
			"window_title": span.WindowTitle,
			"start_time":   span.StartTime,
			"last_updated": span.LastUpdatedTime,
		}
	}

	respondJSON(w, status)
}

// handleLimits lists, upserts and deletes daily limits. Validation
// failures surface as 400 with the store's message.
func (h *Handler) handleLimits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limits, err := h.store.ListDailyLimits()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list limits: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, limits)

	case http.MethodPut, http.MethodPost:
		var limit models.DailyLimit
		if err := json.NewDecoder(r.Body).Decode(&limit); err != nil {
			http.Error(w, fmt.Sprintf("invalid limit payload: %v", err), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(limit.ApplicationName) == "" {
			http.Error(w, "application_name is required", http.StatusBadRequest)
			return
		}
		if err := h.store.SetDailyLimit(&limit); err != nil {
			if errors.Is(err, database.ErrLimitBelowMinimum) || errors.Is(err, database.ErrLimitConflict) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, fmt.Sprintf("Failed to save limit: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, limit)

	case http.MethodDelete:
		app := r.URL.Query().Get("app")
		if app == "" {
			http.Error(w, "app query parameter is required", http.StatusBadRequest)
			return
		}
		if err := h.store.DeleteDailyLimit(app); err != nil {
			http.Error(w, fmt.Sprintf("Failed to delete limit: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]string{"deleted": app})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleClassifications serves unclassified activity rows and accepts
// labels from the classification tool.
func (h *Handler) handleClassifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rows, err := h.store.ListUnclassified(100)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list classifications: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, rows)

	case http.MethodPut, http.MethodPost:
		var payload struct {
			ApplicationName string `json:"application_name"`
			WindowTitle     string `json:"window_title"`
			Classification  string `json:"classification"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("invalid classification payload: %v", err), http.StatusBadRequest)
			return
		}
		if payload.ApplicationName == "" || payload.Classification == "" {
			http.Error(w, "application_name and classification are required", http.StatusBadRequest)
			return
		}
		if err := h.store.SetClassification(payload.ApplicationName, payload.WindowTitle, payload.Classification); err != nil {
			http.Error(w, fmt.Sprintf("Failed to set classification: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, payload)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Screentimed Dashboard</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f5f5f5;
            padding: 20px;
            color: #333;
        }

        h1 { color: #1a1a1a; font-size: 2rem; margin-bottom: 30px; }

        .dashboard { display: flex; gap: 20px; flex-wrap: wrap; }

        .report-box {
            flex: 1;
            min-width: 300px;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 24px;
        }

        .report-box h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            color: #2c3e50;
            border-bottom: 2px solid #3498db;
            padding-bottom: 10px;
        }

        .app-item {
            display: flex;
            justify-content: space-between;
            align-items: center;
            padding: 12px 8px;
            border-bottom: 1px solid #eee;
            position: relative;
            border-radius: 4px;
        }

        .app-item::before {
            content: '';
            position: absolute;
            left: 0; top: 0; height: 100%;
            width: var(--bar-width, 0%);
            background: #3498db;
            opacity: 0.15;
            border-radius: 4px;
            z-index: 0;
        }

        .app-item > * { position: relative; z-index: 1; }
        .app-item:last-child { border-bottom: none; }

        .app-name { font-weight: 500; }
        .app-time { color: #7f8c8d; font-size: 0.9rem; }
        .app-limit { color: #e67e22; font-size: 0.85rem; }
        .app-percentage {
            color: #3498db;
            font-weight: 600;
            margin-left: 10px;
            display: inline-block;
            min-width: 4em;
            text-align: right;
        }

        .loading { color: #7f8c8d; font-style: italic; }

        .total {
            margin-top: 20px;
            padding-top: 15px;
            border-top: 2px solid #ecf0f1;
            font-weight: 600;
            color: #2c3e50;
        }

        .listing { overflow-y: auto; max-height: calc(100vh - 280px); }

        @media (max-width: 1024px) {
            .dashboard { flex-direction: column; }
            .report-box { min-width: 100%; }
        }
    </style>
</head>
<body>
    <h1>Screentimed Dashboard</h1>
    <div class="dashboard">
        <div class="report-box">
            <h2>Today</h2>
            <div hx-get="/api/report?period=day" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>

        <div class="report-box">
            <h2>This Week</h2>
            <div hx-get="/api/report?period=week" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>

        <div class="report-box">
            <h2>This Month</h2>
            <div hx-get="/api/report?period=month" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>
    </div>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
