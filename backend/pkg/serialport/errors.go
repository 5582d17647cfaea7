package serialport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is reported when no byte arrives within the read timeout.
	ErrTimeout = errors.New("read timeout")
	// ErrDisconnected is reported when the device goes away mid exchange.
	ErrDisconnected = errors.New("device disconnected")
	// ErrResponseTooLong is reported when no terminator shows up within MaxResponseLen bytes.
	ErrResponseTooLong = errors.New("response exceeds maximum length")
	// ErrClosed is reported for operations on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// TransportError is the single error type surfaced by this package.
// It is never retried here; callers decide.
type TransportError struct {
	Op   string // open, write, flush, read
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
