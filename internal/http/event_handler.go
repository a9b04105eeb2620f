package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

type eventService interface {
	CreateEvent(ctx context.Context, input application.EventInput) (persistence.Event, error)
	CreateTemplate(ctx context.Context, input application.TemplateInput) (persistence.Event, error)
	UpdateEvent(ctx context.Context, id string, input application.EventInput) (persistence.Event, error)
	UpdateTemplate(ctx context.Context, id string, input application.TemplateInput) (persistence.Event, error)
	SetTemplateActive(ctx context.Context, id string, active bool) (persistence.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	ListEvents(ctx context.Context, query application.EventQuery) ([]persistence.Event, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error)
	Occurrences(ctx context.Context, id string, from, to time.Time) ([]time.Time, error)
}

// EventHandler serves dated events and recurring templates.
type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := logging.OrDefault(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List supports ?from=YYYY-MM-DD&to=YYYY-MM-DD and repeated ?kind= filters.
// Date bounds exclude templates.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseEventQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	events, err := h.service.ListEvents(r.Context(), query)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "List").DebugContext(r.Context(), "events listed", "result_count", len(events))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.GetEvent(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Create")
	event, err := h.service.CreateEvent(r.Context(), input)
	if err != nil {
		logger.WarnContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "event_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Update", "event_id", id)
	event, err := h.service.UpdateEvent(r.Context(), id, input)
	if err != nil {
		logger.WarnContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	logger := h.log(r.Context(), "Delete", "event_id", id)
	if err := h.service.DeleteEvent(r.Context(), id); err != nil {
		logger.WarnContext(r.Context(), "event delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// ListTemplates supports ?active=true to hide paused templates.
func (h *EventHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if value := strings.TrimSpace(r.URL.Query().Get("active")); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, invalidFields(map[string]string{"active": "must be true or false"}))
			return
		}
		activeOnly = parsed
	}

	templates, err := h.service.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		h.log(r.Context(), "ListTemplates").WarnContext(r.Context(), "template list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(templates)})
}

// Occurrences previews the dates a template is due on between ?from and ?to.
func (h *EventHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	values := r.URL.Query()
	fields := map[string]string{}
	bounds := map[string]time.Time{}
	for _, key := range []string{"from", "to"} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			fields[key] = "is required"
			continue
		}
		day, err := parseDate(raw)
		if err != nil {
			fields[key] = "must be a YYYY-MM-DD date"
			continue
		}
		bounds[key] = day
	}
	if err := invalidFields(fields); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dates, err := h.service.Occurrences(r.Context(), id, bounds["from"], bounds["to"])
	if err != nil {
		h.log(r.Context(), "Occurrences", "event_id", id).WarnContext(r.Context(), "occurrence preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := occurrencesResponse{TemplateID: id, Dates: make([]string, 0, len(dates))}
	for _, date := range dates {
		resp.Dates = append(resp.Dates, formatDate(date))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *EventHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "CreateTemplate", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode template request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "CreateTemplate")
	template, err := h.service.CreateTemplate(r.Context(), input)
	if err != nil {
		logger.WarnContext(r.Context(), "template creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", template.ID).InfoContext(r.Context(), "template created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(template)})
}

func (h *EventHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "UpdateTemplate", "event_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode template update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "UpdateTemplate", "event_id", id)
	template, err := h.service.UpdateTemplate(r.Context(), id, input)
	if err != nil {
		logger.WarnContext(r.Context(), "template update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "template updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(template)})
}

func (h *EventHandler) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		h.log(r.Context(), "SetTemplateActive", "event_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "invalid active toggle", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetTemplateActive", "event_id", id, "active", *req.Active)
	template, err := h.service.SetTemplateActive(r.Context(), id, *req.Active)
	if err != nil {
		logger.WarnContext(r.Context(), "template toggle failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "template toggled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(template)})
}

func parseEventQuery(r *http.Request) (application.EventQuery, error) {
	values := r.URL.Query()
	fields := map[string]string{}
	var query application.EventQuery

	for _, key := range []string{"from", "to"} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		day, err := parseDate(raw)
		if err != nil {
			fields[key] = "must be a YYYY-MM-DD date"
			continue
		}
		if key == "from" {
			query.From = &day
		} else {
			query.To = &day
		}
	}

	for _, raw := range values["kind"] {
		switch kind := persistence.EventKind(strings.ToLower(strings.TrimSpace(raw))); kind {
		case persistence.EventKindRegular, persistence.EventKindTemplate, persistence.EventKindGenerated:
			query.Kinds = append(query.Kinds, kind)
		default:
			fields["kind"] = "must be regular, template or generated"
		}
	}

	if err := invalidFields(fields); err != nil {
		return application.EventQuery{}, err
	}
	return query, nil
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(persistence.DateLayout, strings.TrimSpace(value), time.UTC)
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(persistence.DateLayout)
}

var weekdaysByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type eventRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	ContactGroupIDs []string `json:"contact_group_ids"`
}

func (r eventRequest) toInput() (application.EventInput, error) {
	input := application.EventInput{
		Name:            strings.TrimSpace(r.Name),
		Description:     strings.TrimSpace(r.Description),
		Time:            strings.TrimSpace(r.Time),
		ContactGroupIDs: r.ContactGroupIDs,
	}
	if strings.TrimSpace(r.Date) != "" {
		day, err := parseDate(r.Date)
		if err != nil {
			return input, invalidFields(map[string]string{"date": "must be a YYYY-MM-DD date"})
		}
		input.Date = day
	}
	return input, nil
}

type templateRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Time            string   `json:"time"`
	ContactGroupIDs []string `json:"contact_group_ids"`
	DayOfWeek       string   `json:"day_of_week"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	Active          *bool    `json:"active"`
}

// toInput converts the request. Templates are active unless the caller says otherwise.
func (r templateRequest) toInput() (application.TemplateInput, error) {
	input := application.TemplateInput{
		Name:            strings.TrimSpace(r.Name),
		Description:     strings.TrimSpace(r.Description),
		Time:            strings.TrimSpace(r.Time),
		ContactGroupIDs: r.ContactGroupIDs,
		Active:          r.Active == nil || *r.Active,
	}
	fields := map[string]string{}

	weekday, ok := weekdaysByName[strings.ToLower(strings.TrimSpace(r.DayOfWeek))]
	if !ok {
		fields["day_of_week"] = "must be a weekday name such as monday"
	}
	input.DayOfWeek = weekday

	if strings.TrimSpace(r.StartDate) != "" {
		day, err := parseDate(r.StartDate)
		if err != nil {
			fields["start_date"] = "must be a YYYY-MM-DD date"
		}
		input.StartDate = day
	}
	if strings.TrimSpace(r.EndDate) != "" {
		day, err := parseDate(r.EndDate)
		if err != nil {
			fields["end_date"] = "must be a YYYY-MM-DD date"
		} else {
			input.EndDate = &day
		}
	}

	return input, invalidFields(fields)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type occurrencesResponse struct {
	TemplateID string   `json:"template_id"`
	Dates      []string `json:"dates"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type recurrenceDTO struct {
	DayOfWeek string `json:"day_of_week"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Active    bool   `json:"active"`
}

type eventDTO struct {
	ID               string         `json:"id"`
	Kind             string         `json:"kind"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Date             string         `json:"date,omitempty"`
	Time             string         `json:"time,omitempty"`
	ContactGroupIDs  []string       `json:"contact_group_ids"`
	Recurrence       *recurrenceDTO `json:"recurrence,omitempty"`
	RecurringEventID string         `json:"recurring_event_id,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

func toEventDTO(event persistence.Event) eventDTO {
	groups := event.ContactGroupIDs
	if groups == nil {
		groups = []string{}
	}
	dto := eventDTO{
		ID:               event.ID,
		Kind:             string(event.Kind()),
		Name:             event.Name,
		Description:      event.Description,
		Date:             formatDate(event.Date),
		Time:             event.Time,
		ContactGroupIDs:  groups,
		RecurringEventID: event.RecurringEventID,
		CreatedAt:        event.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        event.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec := event.Recurrence; rec != nil {
		dto.Recurrence = &recurrenceDTO{
			DayOfWeek: strings.ToLower(rec.DayOfWeek.String()),
			StartDate: formatDate(rec.StartDate),
			Active:    rec.Active,
		}
		if rec.EndDate != nil {
			dto.Recurrence.EndDate = formatDate(*rec.EndDate)
		}
	}
	return dto
}

func toEventDTOs(events []persistence.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}
