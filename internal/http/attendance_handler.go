package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

type attendanceService interface {
	GetRecord(ctx context.Context, eventID, contactID string) (persistence.AttendanceRecord, bool, error)
	SetPresence(ctx context.Context, eventID, contactID string, present bool) (persistence.AttendanceRecord, error)
	SetNotes(ctx context.Context, eventID, contactID, notes string) (persistence.AttendanceRecord, error)
	ListForContact(ctx context.Context, contactID string) ([]persistence.AttendanceRecord, error)
	EligibleContacts(ctx context.Context, eventID string) ([]persistence.Contact, error)
	Sheet(ctx context.Context, eventID string) ([]application.AttendanceEntry, error)
	Summary(ctx context.Context, eventID string) (application.AttendanceSummary, error)
}

// AttendanceHandler records and reports attendance per event and contact.
type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	base := logging.OrDefault(logger)
	return &AttendanceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

// Eligible lists the contacts reachable through the event's groups.
func (h *AttendanceHandler) Eligible(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.EligibleContacts(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listContactsResponse{Contacts: toContactDTOs(list)})
}

// Sheet returns the summary plus one row per eligible contact.
func (h *AttendanceHandler) Sheet(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	summary, err := h.service.Summary(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	entries, err := h.service.Sheet(r.Context(), eventID)
	if err != nil {
		h.log(r.Context(), "Sheet", "event_id", eventID).WarnContext(r.Context(), "attendance sheet failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	rows := make([]sheetEntryDTO, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, sheetEntryDTO{
			Contact:  toContactDTO(entry.Contact),
			Present:  entry.Present,
			Notes:    entry.Notes,
			Recorded: entry.Recorded,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sheetResponse{
		EventID:  summary.EventID,
		Eligible: summary.Eligible,
		Present:  summary.Present,
		Absent:   summary.Absent,
		Entries:  rows,
	})
}

// Get returns the stored record, or an unrecorded absent placeholder.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	contactID := pathParam(r, "contactID")
	record, found, err := h.service.GetRecord(r.Context(), eventID, contactID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if !found {
		record = persistence.AttendanceRecord{EventID: eventID, ContactID: contactID}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, recordResponse{Record: toRecordDTO(record, found)})
}

// Update sets presence, notes or both. Presence is written first.
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	contactID := pathParam(r, "contactID")
	logger := h.log(r.Context(), "Update", "event_id", eventID, "contact_id", contactID)

	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode attendance update", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if req.Present == nil && req.Notes == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errEmptyUpdate)
		return
	}

	var (
		record persistence.AttendanceRecord
		err    error
	)
	if req.Present != nil {
		record, err = h.service.SetPresence(r.Context(), eventID, contactID, *req.Present)
	}
	if err == nil && req.Notes != nil {
		record, err = h.service.SetNotes(r.Context(), eventID, contactID, *req.Notes)
	}
	if err != nil {
		logger.WarnContext(r.Context(), "attendance update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attendance recorded", "present", record.Present)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, recordResponse{Record: toRecordDTO(record, true)})
}

// ForContact lists every record stored for a contact.
func (h *AttendanceHandler) ForContact(w http.ResponseWriter, r *http.Request) {
	contactID := pathParam(r, "id")
	records, err := h.service.ListForContact(r.Context(), contactID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]recordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordDTO(record, true))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRecordsResponse{Records: out})
}

type attendanceRequest struct {
	Present *bool   `json:"present"`
	Notes   *string `json:"notes"`
}

type recordDTO struct {
	EventID   string `json:"event_id"`
	ContactID string `json:"contact_id"`
	Present   bool   `json:"present"`
	Notes     string `json:"notes"`
	Recorded  bool   `json:"recorded"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toRecordDTO(record persistence.AttendanceRecord, recorded bool) recordDTO {
	dto := recordDTO{
		EventID:   record.EventID,
		ContactID: record.ContactID,
		Present:   record.Present,
		Notes:     record.Notes,
		Recorded:  recorded,
	}
	if !record.UpdatedAt.IsZero() {
		dto.UpdatedAt = record.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

type recordResponse struct {
	Record recordDTO `json:"record"`
}

type listRecordsResponse struct {
	Records []recordDTO `json:"records"`
}

type sheetEntryDTO struct {
	Contact  contactDTO `json:"contact"`
	Present  bool       `json:"present"`
	Notes    string     `json:"notes"`
	Recorded bool       `json:"recorded"`
}

type sheetResponse struct {
	EventID  string          `json:"event_id"`
	Eligible int             `json:"eligible"`
	Present  int             `json:"present"`
	Absent   int             `json:"absent"`
	Entries  []sheetEntryDTO `json:"entries"`
}
