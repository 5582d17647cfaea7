package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"arksync/backend/internal/shared/types"
	"arksync/backend/pkg/router"
	"arksync/backend/pkg/utils"
)

const (
	MaxBodySize     = 1048576 // 1MB
	MaxBodyText     = "1MB"
	RequestIDHeader = "X-Request-ID"

	ReadHeaderTimeout = 5 * time.Second
	ReadTimeout       = 30 * time.Second
	WriteTimeout      = 30 * time.Second
	IdleTimeout       = 120 * time.Second
	ShutdownTimeout   = 30 * time.Second
)

const zeroUUID = "00000000-0000-0000-0000-000000000000"

type HTTPServer struct {
	l      *slog.Logger
	server *http.Server
}

func NewHTTPServer(l *slog.Logger, addr string, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}
	srv.SetKeepAlivesEnabled(true)

	return &HTTPServer{
		l:      l.With(slog.String("component", "http-server")),
		server: srv,
	}
}

// StartOnBackground serves until shutdown. A listener failure calls cancel.
func (s *HTTPServer) StartOnBackground(cancel context.CancelFunc) {
	go func() {
		s.l.Info("http server listening", slog.String("address", s.server.Addr))

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http server failed", utils.ErrAttr(err))
			cancel()
		}
	}()
}

func (s *HTTPServer) ShutdownWithDefaultTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// HandlerFunc is a HTTP handler that can return an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// NewError builds an error response, its code follows the status.
func NewError(statusCode int, message string) *types.ErrorResponse {
	return &types.ErrorResponse{
		StatusCode: statusCode,
		Code:       types.CodeForStatus(statusCode),
		Message:    message,
	}
}

// NewValidationError is a 400 naming the offending request fields.
func NewValidationError(fields map[string]string) *types.ErrorResponse {
	e := NewError(http.StatusBadRequest, "Validation failed")
	for field, msg := range fields {
		e.WithField(field, msg)
	}

	return e
}

// ErrorHandler adapts fn to http.HandlerFunc. A returned *types.ErrorResponse
// reaches the client as is, anything else becomes a logged 500.
func ErrorHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		l := GetLoggerFromContext(r.Context())

		var httpErr *types.ErrorResponse
		if !errors.As(err, &httpErr) {
			l.Error("internal error", utils.ErrAttr(err))
			httpErr = NewError(http.StatusInternalServerError, "Internal Server Error")
		} else {
			l.Warn("handler returned HTTP error",
				slog.Int("status", httpErr.StatusCode),
				slog.String("code", string(httpErr.Code)),
				slog.String("message", httpErr.Message),
			)
		}

		httpErr.RequestID = GetRequestIDFromContext(r.Context())
		RespondJSON(w, r, httpErr.StatusCode, httpErr)
	}
}

// RespondJSON writes data with statusCode. A nil data writes headers only.
// Encoding failures are logged, the status is already on the wire by then.
func RespondJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}

	if err := utils.ToJSONStream(w, data); err != nil {
		GetLoggerFromContext(r.Context()).Error("failed to encode JSON response", utils.ErrAttr(err))
	}
}

// DecodeJSON strictly decodes the request body into T. Failures come back as
// *types.ErrorResponse ready to be returned from a handler.
//
//nolint:ireturn // Generic functions must return type parameter T
func DecodeJSON[T any](r *http.Request) (T, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	res, err := utils.FromJSONStream[T](r.Body)
	if err != nil {
		var zero T
		return zero, decodeError(err)
	}

	return res, nil
}

func decodeError(err error) *types.ErrorResponse {
	var (
		syntaxError    *json.SyntaxError
		typeError      *json.UnmarshalTypeError
		maxBytesError  *http.MaxBytesError
		extraDataError *utils.ExtraDataAfterJSONError
	)

	switch {
	case errors.As(err, &maxBytesError):
		return NewError(http.StatusRequestEntityTooLarge, "Request body too large (max "+MaxBodyText+")")
	case errors.As(err, &syntaxError):
		return NewError(http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at position %d", syntaxError.Offset))
	case errors.As(err, &typeError):
		return NewValidationError(map[string]string{typeError.Field: "must be of type " + typeError.Type.String()})
	case errors.As(err, &extraDataError):
		return NewError(http.StatusBadRequest, "Request body contains multiple JSON objects")
	case errors.Is(err, io.EOF):
		return NewError(http.StatusBadRequest, "Request body is empty")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewError(http.StatusBadRequest, "Malformed JSON")
	}

	// json formats these as: json: unknown field "name"
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return NewValidationError(map[string]string{strings.Trim(field, `"`): "unknown field"})
	}

	return NewError(http.StatusBadRequest, "Invalid JSON payload")
}

// GenerateResponses adds the error responses every route can produce.
func GenerateResponses(responses map[int]router.ResponseSpec) map[int]router.ResponseSpec {
	for status, desc := range map[int]string{
		http.StatusRequestEntityTooLarge: "Request body too large (max " + MaxBodyText + ")",
		http.StatusInternalServerError:   "Internal Server Error",
	} {
		if _, exists := responses[status]; !exists {
			responses[status] = router.ResponseSpec{Description: desc, Type: types.ErrorResponse{}}
		}
	}

	return responses
}
