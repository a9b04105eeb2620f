package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// EventStore captures the persistence operations needed by the event service.
type EventStore interface {
	SaveEvent(ctx context.Context, event persistence.Event) error
	UpdateEvent(ctx context.Context, event persistence.Event) error
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// EventService creates and edits regular events and recurring templates.
type EventService struct {
	events      EventStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service.
func NewEventService(store EventStore, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(store, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(store EventStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{events: store, idGenerator: idGenerator, now: now, logger: logging.OrDefault(logger)}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent stores a one-off dated event.
func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID, "date", event.Date.Format(persistence.DateLayout)).InfoContext(ctx, "event created")
	}()

	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	event = persistence.Event{
		ID:              s.idGenerator(),
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Date:            recurrence.CalendarDate(input.Date),
		Time:            strings.TrimSpace(input.Time),
		ContactGroupIDs: normalizeIDs(input.ContactGroupIDs),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.events.SaveEvent(ctx, event); err != nil {
		err = mapRepoError(err)
	}
	return
}

// CreateTemplate stores a weekly recurring template.
func (s *EventService) CreateTemplate(ctx context.Context, input TemplateInput) (template persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateTemplate")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create template", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("template_id", template.ID, "day_of_week", template.Recurrence.DayOfWeek.String()).InfoContext(ctx, "template created")
	}()

	if vErr := validateTemplateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	template = persistence.Event{
		ID:              s.idGenerator(),
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Time:            strings.TrimSpace(input.Time),
		ContactGroupIDs: normalizeIDs(input.ContactGroupIDs),
		Recurrence:      recurrenceFromInput(input),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.events.SaveEvent(ctx, template); err != nil {
		err = mapRepoError(err)
	}
	return
}

// UpdateEvent edits a regular or generated event. Generated instances keep
// their link to the template.
func (s *EventService) UpdateEvent(ctx context.Context, id string, input EventInput) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	event, err = s.events.GetEvent(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if event.Kind() == persistence.EventKindTemplate {
		err = fieldError("date", "templates are edited with UpdateTemplate")
		return
	}

	event.Name = strings.TrimSpace(input.Name)
	event.Description = strings.TrimSpace(input.Description)
	event.Date = recurrence.CalendarDate(input.Date)
	event.Time = strings.TrimSpace(input.Time)
	event.ContactGroupIDs = normalizeIDs(input.ContactGroupIDs)
	event.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, event); err != nil {
		err = mapRepoError(err)
	}
	return
}

// UpdateTemplate edits a template. Instances already materialized are not
// changed.
func (s *EventService) UpdateTemplate(ctx context.Context, id string, input TemplateInput) (template persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateTemplate", "template_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update template", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "template updated")
	}()

	if vErr := validateTemplateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	template, err = s.requireTemplate(ctx, id)
	if err != nil {
		return
	}

	template.Name = strings.TrimSpace(input.Name)
	template.Description = strings.TrimSpace(input.Description)
	template.Time = strings.TrimSpace(input.Time)
	template.ContactGroupIDs = normalizeIDs(input.ContactGroupIDs)
	template.Recurrence = recurrenceFromInput(input)
	template.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, template); err != nil {
		err = mapRepoError(err)
	}
	return
}

// SetTemplateActive pauses or resumes a template. Inactive templates are
// never due.
func (s *EventService) SetTemplateActive(ctx context.Context, id string, active bool) (template persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetTemplateActive", "template_id", id, "active", active)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change template state", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "template state changed")
	}()

	template, err = s.requireTemplate(ctx, id)
	if err != nil {
		return
	}
	if template.Recurrence.Active == active {
		return
	}

	template.Recurrence.Active = active
	template.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, template); err != nil {
		err = mapRepoError(err)
	}
	return
}

func (s *EventService) requireTemplate(ctx context.Context, id string) (persistence.Event, error) {
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	if event.Recurrence == nil {
		return persistence.Event{}, ErrNotTemplate
	}
	return event, nil
}

// Occurrences previews the dates within [from, to] on which a template is due
// without materializing anything. Paused templates have no occurrences.
func (s *EventService) Occurrences(ctx context.Context, id string, from, to time.Time) ([]time.Time, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if recurrence.CalendarDate(to).Before(recurrence.CalendarDate(from)) {
		return nil, ErrInvalidRange
	}

	template, err := s.requireTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	dates, err := recurrence.DueDates(ruleFor(template), from, to)
	if err != nil {
		return nil, fmt.Errorf("expand template %s: %w", id, err)
	}
	if dates == nil {
		dates = []time.Time{}
	}
	return dates, nil
}

// DeleteEvent removes an event and its attendance records. Deleting a
// template leaves its generated instances in place.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", id)
	if err := s.events.DeleteEvent(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "event deleted")
	return nil
}

// GetEvent returns an event of any kind by id.
func (s *EventService) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if s == nil {
		return persistence.Event{}, fmt.Errorf("EventService is nil")
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	return event, nil
}

// ListEvents returns events matching query. Setting a date bound restricts
// the result to dated events.
func (s *EventService) ListEvents(ctx context.Context, query EventQuery) ([]persistence.Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, ErrInvalidRange
	}

	filter := persistence.EventFilter{Kinds: query.Kinds}
	if query.From != nil {
		from := recurrence.CalendarDate(*query.From)
		filter.From = &from
	}
	if query.To != nil {
		to := recurrence.CalendarDate(*query.To)
		filter.To = &to
	}

	events, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return events, nil
}

// ListTemplates returns templates, optionally only active ones.
func (s *EventService) ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	templates, err := s.events.ListTemplates(ctx, activeOnly)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return templates, nil
}

func recurrenceFromInput(input TemplateInput) *persistence.Recurrence {
	rec := &persistence.Recurrence{
		DayOfWeek: input.DayOfWeek,
		StartDate: recurrence.CalendarDate(input.StartDate),
		Active:    input.Active,
	}
	if input.EndDate != nil {
		end := recurrence.CalendarDate(*input.EndDate)
		rec.EndDate = &end
	}
	return rec
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Date.IsZero() {
		vErr.add("date", "date is required")
	}
	vErr.merge(validateTimeOfDay(input.Time))
	return vErr
}

func validateTemplateInput(input TemplateInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.DayOfWeek < time.Sunday || input.DayOfWeek > time.Saturday {
		vErr.add("day_of_week", "day of week must be between Sunday and Saturday")
	}
	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if input.EndDate != nil && !input.StartDate.IsZero() &&
		recurrence.CalendarDate(*input.EndDate).Before(recurrence.CalendarDate(input.StartDate)) {
		vErr.add("end_date", "end date must not precede start date")
	}
	vErr.merge(validateTimeOfDay(input.Time))
	return vErr
}

// validateTimeOfDay accepts an empty value or a 24-hour HH:MM time.
func validateTimeOfDay(value string) *ValidationError {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := time.Parse("15:04", value); err != nil || len(value) != 5 {
		return fieldError("time", "time must use the HH:MM 24-hour format")
	}
	return nil
}
