package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// MaterializeStore captures the store operations a materialization pass needs.
type MaterializeStore interface {
	ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error)
	FindGeneratedInstance(ctx context.Context, templateID string, date time.Time) (persistence.Event, error)
	InsertGeneratedInstance(ctx context.Context, event persistence.Event) (persistence.Event, bool, error)
}

// MaterializeRecorder observes completed materialization passes.
type MaterializeRecorder interface {
	ObserveMaterialization(mode string, result MaterializeResult, elapsed time.Duration, err error)
}

// Materialization modes reported to the recorder.
const (
	ModeDate  = "date"
	ModeRange = "range"
)

// Materializer creates concrete instances of recurring templates. Passes are
// serialized so concurrent triggers cannot race on the same (template, date).
type Materializer struct {
	mu          sync.Mutex
	store       MaterializeStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	recorder    MaterializeRecorder
}

// NewMaterializer constructs a materializer. recorder may be nil.
func NewMaterializer(store MaterializeStore, idGenerator func() string, now func() time.Time, logger *slog.Logger, recorder MaterializeRecorder) *Materializer {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		store:       store,
		idGenerator: idGenerator,
		now:         now,
		logger:      logging.OrDefault(logger),
		recorder:    recorder,
	}
}

func (m *Materializer) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "Materializer", operation, attrs...)
}

// EnsureInstanceExists returns the instance of template on date, creating it
// when absent. An existing instance is returned unchanged. The boolean reports
// whether this call created the instance.
func (m *Materializer) EnsureInstanceExists(ctx context.Context, template persistence.Event, date time.Time) (persistence.Event, bool, error) {
	if m == nil {
		return persistence.Event{}, false, fmt.Errorf("Materializer is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ensureLocked(ctx, template, date)
}

func (m *Materializer) ensureLocked(ctx context.Context, template persistence.Event, date time.Time) (persistence.Event, bool, error) {
	if template.Recurrence == nil {
		return persistence.Event{}, false, ErrNotTemplate
	}
	day := recurrence.CalendarDate(date)

	existing, err := m.store.FindGeneratedInstance(ctx, template.ID, day)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Event{}, false, mapRepoError(err)
	}

	now := m.now()
	groupIDs := make([]string, len(template.ContactGroupIDs))
	copy(groupIDs, template.ContactGroupIDs)

	instance := persistence.Event{
		ID:               m.idGenerator(),
		Name:             template.Name,
		Description:      template.Description,
		Date:             day,
		Time:             template.Time,
		ContactGroupIDs:  groupIDs,
		RecurringEventID: template.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, created, err := m.store.InsertGeneratedInstance(ctx, instance)
	if err != nil {
		return persistence.Event{}, false, mapRepoError(err)
	}
	return stored, created, nil
}

// MaterializeForDate ensures an instance exists for every active template due
// on date. A store failure aborts the pass; instances created before the
// failure remain and a later pass picks up where this one stopped.
func (m *Materializer) MaterializeForDate(ctx context.Context, date time.Time) (result MaterializeResult, err error) {
	if m == nil {
		err = fmt.Errorf("Materializer is nil")
		return
	}

	day := recurrence.CalendarDate(date)
	return m.run(ctx, ModeDate, day, day)
}

// MaterializeForRange ensures instances for every day from start to end
// inclusive. Days are processed in ascending order and templates are fetched
// once per pass.
func (m *Materializer) MaterializeForRange(ctx context.Context, start, end time.Time) (result MaterializeResult, err error) {
	if m == nil {
		err = fmt.Errorf("Materializer is nil")
		return
	}

	first := recurrence.CalendarDate(start)
	last := recurrence.CalendarDate(end)
	if last.Before(first) {
		err = ErrInvalidRange
		return
	}
	return m.run(ctx, ModeRange, first, last)
}

// Catchup materializes the window of days ending today. A zero window only
// materializes today.
func (m *Materializer) Catchup(ctx context.Context, today time.Time, days int) (MaterializeResult, error) {
	if days < 0 {
		return MaterializeResult{}, fieldError("days", "catch-up window must not be negative")
	}
	day := recurrence.CalendarDate(today)
	if days == 0 {
		return m.MaterializeForDate(ctx, day)
	}
	return m.MaterializeForRange(ctx, day.AddDate(0, 0, -days), day)
}

// Today returns the current calendar date in loc according to the
// materializer's clock.
func (m *Materializer) Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return recurrence.CalendarDate(m.now().In(loc))
}

func (m *Materializer) run(ctx context.Context, mode string, first, last time.Time) (result MaterializeResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := time.Now()
	result = MaterializeResult{Start: first, End: last}

	logger := m.loggerWith(ctx, "Materialize",
		"mode", mode,
		"start", first.Format(persistence.DateLayout),
		"end", last.Format(persistence.DateLayout),
	)
	defer func() {
		if m.recorder != nil {
			m.recorder.ObserveMaterialization(mode, result, time.Since(started), err)
		}
		if err != nil {
			logger.ErrorContext(ctx, "materialization pass aborted",
				"error", err,
				"error_kind", ErrorKind(err),
				"created", result.Created,
				"existing", result.Existing,
			)
			return
		}
		logger.InfoContext(ctx, "materialization pass completed",
			"templates", result.Templates,
			"created", result.Created,
			"existing", result.Existing,
		)
	}()

	templates, err := m.store.ListTemplates(ctx, true)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	result.Templates = len(templates)

	days, err := recurrence.Days(first, last)
	if err != nil {
		err = ErrInvalidRange
		return
	}

	for _, day := range days {
		for _, template := range templates {
			if err = ctx.Err(); err != nil {
				return
			}
			if !recurrence.IsDue(ruleFor(template), day) {
				continue
			}

			var instance persistence.Event
			var created bool
			instance, created, err = m.ensureLocked(ctx, template, day)
			if err != nil {
				err = fmt.Errorf("materialize template %s on %s: %w", template.ID, day.Format(persistence.DateLayout), err)
				return
			}
			if created {
				result.Created++
			} else {
				result.Existing++
			}
			result.Instances = append(result.Instances, instance)
		}
	}
	return
}

// ruleFor extracts the recurrence rule of a template event.
func ruleFor(template persistence.Event) recurrence.Rule {
	if template.Recurrence == nil {
		return recurrence.Rule{TemplateID: template.ID}
	}
	return recurrence.Rule{
		TemplateID: template.ID,
		DayOfWeek:  template.Recurrence.DayOfWeek,
		StartDate:  template.Recurrence.StartDate,
		EndDate:    template.Recurrence.EndDate,
		Active:     template.Recurrence.Active,
	}
}
