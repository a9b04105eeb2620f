package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/contacts"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

type contactService interface {
	Sync(ctx context.Context, entries []contacts.ProviderContact) (application.SyncResult, error)
	SyncFrom(ctx context.Context, provider contacts.Provider) (application.SyncResult, error)
	AddContact(ctx context.Context, input application.ContactInput) (persistence.Contact, error)
	UpdateContact(ctx context.Context, id string, input application.ContactInput) (persistence.Contact, error)
	DeleteContact(ctx context.Context, id string) error
	GetContact(ctx context.Context, id string) (persistence.Contact, error)
	ListContacts(ctx context.Context) ([]persistence.Contact, error)
}

// ContactHandler serves the contact directory.
type ContactHandler struct {
	service   contactService
	provider  contacts.Provider
	responder responder
	logger    *slog.Logger
}

// NewContactHandler wires the handler. provider backs POST /contacts/sync
// requests without a body and may be nil.
func NewContactHandler(service contactService, provider contacts.Provider, logger *slog.Logger) *ContactHandler {
	base := logging.OrDefault(logger)
	return &ContactHandler{service: service, provider: provider, responder: newResponder(base), logger: base}
}

func (h *ContactHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ContactHandler", operation, attrs...)
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListContacts(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "contact list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listContactsResponse{Contacts: toContactDTOs(list)})
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	contact, err := h.service.GetContact(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, contactResponse{Contact: toContactDTO(contact)})
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode contact request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	contact, err := h.service.AddContact(r.Context(), req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "contact creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("contact_id", contact.ID).InfoContext(r.Context(), "contact created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, contactResponse{Contact: toContactDTO(contact)})
}

func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "contact_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode contact update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "contact_id", id)
	contact, err := h.service.UpdateContact(r.Context(), id, req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "contact update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "contact updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, contactResponse{Contact: toContactDTO(contact)})
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	logger := h.log(r.Context(), "Delete", "contact_id", id)
	if err := h.service.DeleteContact(r.Context(), id); err != nil {
		logger.WarnContext(r.Context(), "contact delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "contact deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Sync upserts the posted contacts, or pulls from the configured provider
// when the body is empty.
func (h *ContactHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Sync", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode sync request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	var (
		result application.SyncResult
		err    error
	)
	switch {
	case req.Contacts != nil:
		entries := make([]contacts.ProviderContact, 0, len(req.Contacts))
		for _, c := range req.Contacts {
			entries = append(entries, contacts.ProviderContact{Name: c.Name, PhoneNumber: c.PhoneNumber})
		}
		result, err = h.service.Sync(r.Context(), entries)
	case h.provider != nil:
		result, err = h.service.SyncFrom(r.Context(), h.provider)
	default:
		h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, errNoProvider)
		return
	}

	logger := h.log(r.Context(), "Sync")
	if err != nil {
		logger.ErrorContext(r.Context(), "contact sync failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "contacts synced", "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, syncResponse{
		Created:   result.Created,
		Updated:   result.Updated,
		Unchanged: result.Unchanged,
		Skipped:   result.Skipped,
	})
}

type contactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func (r contactRequest) toInput() application.ContactInput {
	return application.ContactInput{
		Name:        strings.TrimSpace(r.Name),
		PhoneNumber: strings.TrimSpace(r.PhoneNumber),
	}
}

type syncRequest struct {
	Contacts []contactRequest `json:"contacts"`
}

type syncResponse struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

type contactResponse struct {
	Contact contactDTO `json:"contact"`
}

type listContactsResponse struct {
	Contacts []contactDTO `json:"contacts"`
}

type contactDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toContactDTO(contact persistence.Contact) contactDTO {
	return contactDTO{
		ID:          contact.ID,
		Name:        contact.Name,
		PhoneNumber: contact.PhoneNumber,
		CreatedAt:   contact.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   contact.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toContactDTOs(list []persistence.Contact) []contactDTO {
	out := make([]contactDTO, 0, len(list))
	for _, contact := range list {
		out = append(out, toContactDTO(contact))
	}
	return out
}
