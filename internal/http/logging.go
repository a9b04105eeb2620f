package http

import (
	"context"
	"log/slog"

	"github.com/example/attendance-tracker/internal/logging"
)

// handlerLogger scopes the request logger (or fallback outside a request) to
// one handler operation.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, fallback, "handler", handlerName, operation, attrs...)
}
