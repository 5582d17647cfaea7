package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// MiddlewareHandler holds the logger for middleware.
type MiddlewareHandler struct {
	l *slog.Logger
}

// NewMiddlewareHandler creates a new middleware handler.
func NewMiddlewareHandler(l *slog.Logger) *MiddlewareHandler {
	return &MiddlewareHandler{l: l.With(slog.String("component", "http"))}
}

// RequestIDMiddleware reuses the X-Request-ID header or generates a new ID,
// echoes it back and stores it in the request context.
func (m *MiddlewareHandler) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}
