package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter

	statusCode   int
	bytesWritten int64
	written      bool
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write captures the status code if WriteHeader was not called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)

	return n, err
}

// Hijack lets websocket upgrades through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}

	rw.statusCode = http.StatusSwitchingProtocols
	rw.written = true

	return h.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// wrapResponseWriter wraps the ResponseWriter to capture status code.
func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// LoggerMiddleware adds a request-scoped logger to the context and logs the
// outcome of every request. Server errors log at error level, client errors
// at warn.
func (m *MiddlewareHandler) LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := m.l.With(
			slog.String("request_id", GetRequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)

		wrapped := wrapResponseWriter(w)
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(WithLogger(r.Context(), reqLogger)))

		level := slog.LevelInfo

		switch {
		case wrapped.statusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case wrapped.statusCode >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		// The pattern is only known once chi has routed the request.
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}

		reqLogger.LogAttrs(r.Context(), level, "request completed",
			slog.String("route", route),
			slog.Int("status", wrapped.statusCode),
			slog.Int64("response_bytes", wrapped.bytesWritten),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
