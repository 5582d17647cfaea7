package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// RecoveryMiddleware recovers from panics and logs them.
func (m *MiddlewareHandler) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}

			if err == http.ErrAbortHandler {
				panic(err)
			}

			l := GetLoggerFromContextOrNil(r.Context())
			if l == nil {
				l = m.l
			}

			l.Error("panic recovered",
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())),
			)

			// Generic message, internals stay in the log.
			resp := NewError(http.StatusInternalServerError, "Internal Server Error")
			resp.RequestID = GetRequestIDFromContext(r.Context())
			RespondJSON(w, r, resp.StatusCode, resp)
		}()

		next.ServeHTTP(w, r)
	})
}
