package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/calendar"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// schemaVersioner is implemented by stores that track migrations.
type schemaVersioner interface {
	SchemaVersion() (uint, bool, error)
}

type materializer interface {
	MaterializeForDate(ctx context.Context, date time.Time) (application.MaterializeResult, error)
	MaterializeForRange(ctx context.Context, start, end time.Time) (application.MaterializeResult, error)
	Today(loc *time.Location) time.Time
}

type eventLister interface {
	ListEvents(ctx context.Context, query application.EventQuery) ([]persistence.Event, error)
}

// SystemHandler serves health, the calendar feed and manual materialization.
type SystemHandler struct {
	store        Pinger
	events       eventLister
	materializer materializer
	feed         *calendar.Feed
	location     *time.Location
	maxRangeDays int
	responder    responder
	logger       *slog.Logger
}

type SystemHandlerConfig struct {
	Store        Pinger
	Events       eventLister
	Materializer materializer
	Feed         *calendar.Feed
	Location     *time.Location
	// MaxRangeDays caps the span of one materialize request. Zero means
	// DefaultMaxRangeDays.
	MaxRangeDays int
	Logger       *slog.Logger
}

// DefaultMaxRangeDays is the materialize span limit when none is configured.
const DefaultMaxRangeDays = 366

func NewSystemHandler(cfg SystemHandlerConfig) *SystemHandler {
	base := logging.OrDefault(cfg.Logger)
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	feed := cfg.Feed
	if feed == nil {
		feed = calendar.NewFeed("", loc, nil)
	}
	maxRangeDays := cfg.MaxRangeDays
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	return &SystemHandler{
		store:        cfg.Store,
		events:       cfg.Events,
		materializer: cfg.Materializer,
		feed:         feed,
		location:     loc,
		maxRangeDays: maxRangeDays,
		responder:    newResponder(base),
		logger:       base,
	}
}

func (h *SystemHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SystemHandler", operation, attrs...)
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log(r.Context(), "Health").ErrorContext(r.Context(), "store ping failed", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}

	resp := healthResponse{Status: "ok"}
	if versioner, ok := h.store.(schemaVersioner); ok {
		version, dirty, err := versioner.SchemaVersion()
		switch {
		case err != nil:
			h.log(r.Context(), "Health").WarnContext(r.Context(), "schema version unavailable", "error", err)
		case dirty:
			h.log(r.Context(), "Health").ErrorContext(r.Context(), "schema is dirty", "schema_version", version)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", SchemaVersion: &version})
			return
		default:
			resp.SchemaVersion = &version
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Calendar renders every event as an iCalendar feed.
func (h *SystemHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context(), application.EventQuery{})
	if err != nil {
		h.log(r.Context(), "Calendar").WarnContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.feed.Write(&buf, events); err != nil {
		h.log(r.Context(), "Calendar").ErrorContext(r.Context(), "calendar render failed", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", calendar.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Materialize runs a pass for {"date"}, {"from","to"} or, with no body, today.
func (h *SystemHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Materialize", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode materialize request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	first, last, err := req.bounds(h.materializer.Today(h.location), h.maxRangeDays)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Materialize", "start", formatDate(first), "end", formatDate(last))
	var result application.MaterializeResult
	if first.Equal(last) {
		result, err = h.materializer.MaterializeForDate(r.Context(), first)
	} else {
		result, err = h.materializer.MaterializeForRange(r.Context(), first, last)
	}
	if err != nil {
		logger.WarnContext(r.Context(), "materialization failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "materialization requested", "created", result.Created, "existing", result.Existing)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, materializeResponse{
		Start:     formatDate(result.Start),
		End:       formatDate(result.End),
		Templates: result.Templates,
		Created:   result.Created,
		Existing:  result.Existing,
		Instances: toEventDTOs(result.Instances),
	})
}

type materializeRequest struct {
	Date string `json:"date"`
	From string `json:"from"`
	To   string `json:"to"`
}

// bounds resolves the requested window. Ranges longer than maxDays are
// rejected; reversed ranges are left to the materializer.
func (r materializeRequest) bounds(today time.Time, maxDays int) (time.Time, time.Time, error) {
	date := strings.TrimSpace(r.Date)
	from := strings.TrimSpace(r.From)
	to := strings.TrimSpace(r.To)

	switch {
	case date != "" && (from != "" || to != ""):
		return time.Time{}, time.Time{}, invalidFields(map[string]string{"date": "cannot be combined with from or to"})
	case date != "":
		day, err := parseDate(date)
		if err != nil {
			return time.Time{}, time.Time{}, invalidFields(map[string]string{"date": "must be a YYYY-MM-DD date"})
		}
		return day, day, nil
	case from == "" && to == "":
		return today, today, nil
	}

	fields := map[string]string{}
	start, err := parseDate(from)
	if err != nil {
		fields["from"] = "must be a YYYY-MM-DD date"
	}
	end, err := parseDate(to)
	if err != nil {
		fields["to"] = "must be a YYYY-MM-DD date"
	}
	if err := invalidFields(fields); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if span := int(end.Sub(start).Hours()/24) + 1; span > maxDays {
		return time.Time{}, time.Time{}, invalidFields(map[string]string{"to": fmt.Sprintf("range may cover at most %d days", maxDays)})
	}
	return start, end, nil
}

type healthResponse struct {
	Status        string `json:"status"`
	SchemaVersion *uint  `json:"schema_version,omitempty"`
}

type materializeResponse struct {
	Start     string     `json:"start"`
	End       string     `json:"end"`
	Templates int        `json:"templates"`
	Created   int        `json:"created"`
	Existing  int        `json:"existing"`
	Instances []eventDTO `json:"instances"`
}
