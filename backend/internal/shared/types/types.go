// Package types holds the response bodies shared by every HTTP route.
package types

import (
	"net/http"
	"time"
)

// ErrorCode is the machine readable class of an ErrorResponse.
type ErrorCode string

const (
	CodeBadRequest  ErrorCode = "bad_request"
	CodeNotFound    ErrorCode = "not_found"
	CodeConflict    ErrorCode = "conflict"
	CodeTooLarge    ErrorCode = "too_large"
	CodeBadGateway  ErrorCode = "bad_gateway"
	CodeUnavailable ErrorCode = "unavailable"
	CodeTimeout     ErrorCode = "timeout"
	CodeInternal    ErrorCode = "internal"
)

// CodeForStatus maps an HTTP status to its error code.
func CodeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusBadGateway:
		return CodeBadGateway
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusGatewayTimeout:
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// ErrorResponse is returned by every failing route. Handlers return it as an
// error and the error handler writes it.
//
//nolint:errname // ErrorResponse is an API response type, not a traditional error
type ErrorResponse struct {
	// HTTP status code (internal only, not sent to client)
	StatusCode int `json:"-"`
	// Request ID for tracking
	RequestID string    `json:"requestID"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	// Offending request fields, for validation failures
	Fields map[string]string `json:"fields,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// WithField records a problem with one request field.
func (e *ErrorResponse) WithField(field, message string) *ErrorResponse {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}

	e.Fields[field] = message

	return e
}

// PingResponse is the response to a ping request.
type PingResponse struct {
	Message string    `json:"message"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}
