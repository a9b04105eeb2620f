package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

type groupService interface {
	CreateGroup(ctx context.Context, input application.GroupInput) (persistence.ContactGroup, error)
	UpdateGroup(ctx context.Context, id string, input application.GroupInput) (persistence.ContactGroup, error)
	AddMembers(ctx context.Context, id string, contactIDs []string) (persistence.ContactGroup, error)
	RemoveMember(ctx context.Context, id, contactID string) (persistence.ContactGroup, error)
	DeleteGroup(ctx context.Context, id string) error
	GetGroup(ctx context.Context, id string) (persistence.ContactGroup, error)
	ListGroups(ctx context.Context) ([]persistence.ContactGroup, error)
}

// GroupHandler serves contact groups and their membership.
type GroupHandler struct {
	service   groupService
	responder responder
	logger    *slog.Logger
}

func NewGroupHandler(service groupService, logger *slog.Logger) *GroupHandler {
	base := logging.OrDefault(logger)
	return &GroupHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GroupHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "GroupHandler", operation, attrs...)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "group list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]groupDTO, 0, len(groups))
	for _, group := range groups {
		out = append(out, toGroupDTO(group))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listGroupsResponse{Groups: out})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetGroup(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode group request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	group, err := h.service.CreateGroup(r.Context(), req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "group creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("group_id", group.ID).InfoContext(r.Context(), "group created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "group_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode group update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "group_id", id)
	group, err := h.service.UpdateGroup(r.Context(), id, req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "group update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "group updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	logger := h.log(r.Context(), "Delete", "group_id", id)
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		logger.WarnContext(r.Context(), "group delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "group deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "AddMembers", "group_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode members request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AddMembers", "group_id", id)
	group, err := h.service.AddMembers(r.Context(), id, req.ContactIDs)
	if err != nil {
		logger.WarnContext(r.Context(), "adding members failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "members added", "member_count", len(group.ContactIDs))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	contactID := pathParam(r, "contactID")
	logger := h.log(r.Context(), "RemoveMember", "group_id", id, "contact_id", contactID)

	group, err := h.service.RemoveMember(r.Context(), id, contactID)
	if err != nil {
		logger.WarnContext(r.Context(), "removing member failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member removed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

type groupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ContactIDs  []string `json:"contact_ids"`
}

func (r groupRequest) toInput() application.GroupInput {
	return application.GroupInput{
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		ContactIDs:  r.ContactIDs,
	}
}

type membersRequest struct {
	ContactIDs []string `json:"contact_ids"`
}

type groupResponse struct {
	Group groupDTO `json:"group"`
}

type listGroupsResponse struct {
	Groups []groupDTO `json:"groups"`
}

type groupDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ContactIDs  []string `json:"contact_ids"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func toGroupDTO(group persistence.ContactGroup) groupDTO {
	ids := group.ContactIDs
	if ids == nil {
		ids = []string{}
	}
	return groupDTO{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		ContactIDs:  ids,
		CreatedAt:   group.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   group.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
