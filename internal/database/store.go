package database

import (
	"strings"
	"time"

	"github.com/screentimed/screentimed/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLimitBelowMinimum is returned when a daily limit is configured below
// the floor. The limit is rejected, never silently clamped.
var ErrLimitBelowMinimum = errors.Errorf("time limit below the %d minute minimum", models.MinLimitMinutes)

// ErrLimitConflict is returned when a daily limit sets both alert and
// close actions.
var ErrLimitConflict = errors.New("should_alert and should_close are mutually exclusive")

// Active time is the span extent minus the portion of idle periods that
// fall inside the span that was resumed across them. An idle period
// carries the id of the span it interrupted in window_id, which makes
// the overlap join exact.
const aggregateQuery = `
WITH span_totals AS (
    SELECT application_name,
           SUM(strftime('%s', last_updated_time) - strftime('%s', start_time)) AS span_seconds
    FROM activity_spans
    WHERE start_time >= ? AND start_time < ?
    GROUP BY application_name
),
idle_totals AS (
    SELECT application_name,
           SUM(strftime('%s', end_time) - strftime('%s', start_time)) AS idle_seconds
    FROM idle_periods
    WHERE start_time >= ? AND start_time < ?
    GROUP BY application_name
),
overlap_totals AS (
    SELECT i.application_name AS application_name,
           SUM(MAX(0, MIN(strftime('%s', s.last_updated_time), strftime('%s', i.end_time)) -
                      MAX(strftime('%s', s.start_time), strftime('%s', i.start_time)))) AS overlap_seconds
    FROM idle_periods i
    JOIN activity_spans s ON s.id = i.window_id
    WHERE i.start_time >= ? AND i.start_time < ?
    GROUP BY i.application_name
)
SELECT t.application_name AS application_name,
       MAX(0, COALESCE(t.span_seconds, 0) - COALESCE(o.overlap_seconds, 0)) AS active_seconds,
       COALESCE(i.idle_seconds, 0) AS idle_seconds,
       CASE
           WHEN MAX(0, COALESCE(t.span_seconds, 0) - COALESCE(o.overlap_seconds, 0)) + COALESCE(i.idle_seconds, 0) = 0 THEN 0
           ELSE ROUND(MAX(0, COALESCE(t.span_seconds, 0) - COALESCE(o.overlap_seconds, 0)) * 100.0 /
                (MAX(0, COALESCE(t.span_seconds, 0) - COALESCE(o.overlap_seconds, 0)) + COALESCE(i.idle_seconds, 0)), 2)
       END AS active_percentage
FROM span_totals t
LEFT JOIN idle_totals i ON t.application_name = i.application_name
LEFT JOIN overlap_totals o ON t.application_name = o.application_name
ORDER BY active_seconds DESC
`

// Store is the persistence boundary for the tracking engine. Callers
// supply their own span/idle identifiers so every write is an idempotent
// upsert: a failed tick can simply be retried on the next one.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// CreateSession records the grouping row for one tracking run.
func (s *Store) CreateSession(session *models.Session) error {
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(session)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to create session")
	}
	return nil
}

// EnsureApplication registers an executable on first observation and
// refreshes its path afterwards.
func (s *Store) EnsureApplication(name, path string) error {
	app := &models.Application{Name: strings.ToLower(name), Path: path}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "updated_at"}),
	}).Create(app)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert application")
	}
	return nil
}

// OpenOrExtendSpan inserts the span on first call and only advances
// last_updated_time on every later call with the same id.
func (s *Store) OpenOrExtendSpan(span *models.ActivitySpan) error {
	span.ApplicationName = strings.ToLower(span.ApplicationName)
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated_time"}),
	}).Create(span)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert activity span")
	}
	return nil
}

// CloseSpan writes the final extension of a span. The row is immutable
// afterwards by convention; nothing else updates it.
func (s *Store) CloseSpan(id string, at time.Time) error {
	result := s.db.Model(&models.ActivitySpan{}).
		Where("id = ? AND last_updated_time < ?", id, at).
		Update("last_updated_time", at)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to close activity span")
	}
	return nil
}

// RecordIdle persists a fully closed idle interval.
func (s *Store) RecordIdle(idle *models.IdlePeriod) error {
	idle.ApplicationName = strings.ToLower(idle.ApplicationName)
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"end_time"}),
	}).Create(idle)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to record idle period")
	}
	return nil
}

// UpsertProcessLifetime opens a lifetime span for the application unless
// one is already open, and returns the open span's id.
func (s *Store) UpsertProcessLifetime(appName string, start time.Time) (string, error) {
	appName = strings.ToLower(appName)

	var existing models.ProcessLifetimeSpan
	result := s.db.Where("application_name = ? AND end_time IS NULL", appName).
		Order("start_time DESC").First(&existing)
	if result.Error == nil {
		return existing.ID, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return "", errors.Wrap(result.Error, "failed to query process lifetime")
	}

	span := &models.ProcessLifetimeSpan{
		ID:              uuid.NewString(),
		ApplicationName: appName,
		StartTime:       start,
	}
	if result := s.db.Create(span); result.Error != nil {
		return "", errors.Wrap(result.Error, "failed to open process lifetime")
	}
	return span.ID, nil
}

// CloseProcessLifetime sets end_time on every open lifetime span of the
// application. EndTime is written once; closed rows are never touched.
func (s *Store) CloseProcessLifetime(appName string, end time.Time) error {
	result := s.db.Model(&models.ProcessLifetimeSpan{}).
		Where("application_name = ? AND end_time IS NULL", strings.ToLower(appName)).
		Update("end_time", end)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to close process lifetime")
	}
	return nil
}

// AggregateUsage answers the per-application aggregation over a range:
// active seconds from activity spans, idle seconds from idle periods, and
// active percentage guarded against division by zero.
func (s *Store) AggregateUsage(start, end time.Time) ([]models.AppAggregate, error) {
	var rows []models.AppAggregate
	result := s.db.Raw(aggregateQuery, start, end, start, end, start, end).Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to aggregate usage")
	}
	return rows, nil
}

// ActiveSecondsToday returns the cumulative active seconds for one
// application since local midnight. Used by the enforcement loop.
func (s *Store) ActiveSecondsToday(appName string, now time.Time) (int64, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows, err := s.AggregateUsage(dayStart, now.Add(time.Second))
	if err != nil {
		return 0, err
	}
	appName = strings.ToLower(appName)
	for _, row := range rows {
		if row.ApplicationName == appName {
			return row.ActiveSeconds, nil
		}
	}
	return 0, nil
}

// SetDailyLimit validates and upserts a per-application limit.
func (s *Store) SetDailyLimit(limit *models.DailyLimit) error {
	if limit.TimeLimitMinutes < models.MinLimitMinutes {
		return ErrLimitBelowMinimum
	}
	if limit.ShouldAlert && limit.ShouldClose {
		return ErrLimitConflict
	}

	limit.ApplicationName = strings.ToLower(limit.ApplicationName)
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "application_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"time_limit_minutes", "should_alert", "should_close",
			"alert_before_close", "alert_duration_seconds", "updated_at",
		}),
	}).Create(limit)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert daily limit")
	}
	return nil
}

func (s *Store) GetDailyLimit(appName string) (*models.DailyLimit, error) {
	var limit models.DailyLimit
	result := s.db.First(&limit, "application_name = ?", strings.ToLower(appName))
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get daily limit")
	}
	return &limit, nil
}

func (s *Store) ListDailyLimits() ([]models.DailyLimit, error) {
	var limits []models.DailyLimit
	result := s.db.Order("application_name ASC").Find(&limits)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to list daily limits")
	}
	return limits, nil
}

func (s *Store) DeleteDailyLimit(appName string) error {
	result := s.db.Delete(&models.DailyLimit{}, "application_name = ?", strings.ToLower(appName))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete daily limit")
	}
	return nil
}

// UpsertClassification records the (application, window title) identity as
// an unclassified label. Existing labels are left alone.
func (s *Store) UpsertClassification(appName, windowTitle string) error {
	row := &models.ActivityClassification{
		ApplicationName: strings.ToLower(appName),
		WindowTitle:     windowTitle,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert classification")
	}
	return nil
}

// ListUnclassified returns identities still waiting for a label.
func (s *Store) ListUnclassified(limit int) ([]models.ActivityClassification, error) {
	var rows []models.ActivityClassification
	result := s.db.Where("classification IS NULL").
		Order("application_name ASC").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to list classifications")
	}
	return rows, nil
}

func (s *Store) SetClassification(appName, windowTitle, label string) error {
	result := s.db.Model(&models.ActivityClassification{}).
		Where("application_name = ? AND window_title = ?", strings.ToLower(appName), windowTitle).
		Update("classification", label)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to set classification")
	}
	return nil
}

// RecoverDanglingState finalizes whatever a previous run left behind.
// Spans carry no explicit end column, so a span abandoned mid-run is
// already bounded by its last_updated_time. Lifetime spans do need
// closing: the real end time is unknowable after a crash, so each open
// row is closed at the application's latest span update in that window,
// falling back to the lifetime's own start time.
func (s *Store) RecoverDanglingState() error {
	var open []models.ProcessLifetimeSpan
	result := s.db.Where("end_time IS NULL").Find(&open)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to query open process lifetimes")
	}

	for _, lifetime := range open {
		end := lifetime.StartTime

		var last models.ActivitySpan
		result := s.db.Where("application_name = ? AND last_updated_time >= ?",
			lifetime.ApplicationName, lifetime.StartTime).
			Order("last_updated_time DESC").First(&last)
		if result.Error == nil {
			end = last.LastUpdatedTime
		} else if result.Error != gorm.ErrRecordNotFound {
			return errors.Wrap(result.Error, "failed to query last span for recovery")
		}

		update := s.db.Model(&models.ProcessLifetimeSpan{}).
			Where("id = ?", lifetime.ID).Update("end_time", end)
		if update.Error != nil {
			return errors.Wrap(update.Error, "failed to close dangling lifetime")
		}
	}

	return nil
}

// LatestSpan returns the most recently updated activity span, or nil when
// nothing has been recorded yet.
func (s *Store) LatestSpan() (*models.ActivitySpan, error) {
	var span models.ActivitySpan
	result := s.db.Order("last_updated_time DESC").First(&span)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest span")
	}
	return &span, nil
}

// CreateErrorLog persists a tick failure for later inspection.
func (s *Store) CreateErrorLog(component string, cause error) error {
	row := &models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		ErrorMsg:  cause.Error(),
	}
	result := s.db.Create(row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// Clear removes all tracking data. Limits and classifications survive;
// they are configuration, not recorded time.
func (s *Store) Clear() error {
	for _, table := range []string{"activity_spans", "idle_periods", "process_lifetime_spans", "sessions", "error_logs"} {
		if result := s.db.Exec("DELETE FROM " + table); result.Error != nil {
			return errors.Wrapf(result.Error, "failed to clear %s", table)
		}
	}
	return nil
}
