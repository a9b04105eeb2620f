package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/attendance-tracker/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is malformed")
	errMissingID      = errors.New("resource id is required")
	errEmptyUpdate    = errors.New("nothing to update: set present or notes")
	errNoProvider     = errors.New("no contact source is configured")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto HTTP statuses.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.ErrorKind(err)
	switch kind {
	case "not_found":
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: kind, Message: "the requested resource does not exist"})
	case "already_exists":
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: kind, Message: "a resource with the same identity already exists"})
	case "not_template":
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: kind, Message: "the event is not a recurring template"})
	case "invalid_range":
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: kind, Message: "the date range ends before it starts"})
	case "unavailable", "canceled":
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{ErrorCode: kind, Message: "the store is temporarily unavailable"})
	case "validation":
		var vErr *application.ValidationError
		errors.As(err, &vErr)
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: kind,
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: kind, Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// decodeJSON reads the request body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// invalidFields builds a validation error for request level parse failures.
func invalidFields(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &application.ValidationError{FieldErrors: fields}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
