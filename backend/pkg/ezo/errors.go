package ezo

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse marks a response that does not carry the expected marker or shape.
var ErrUnexpectedResponse = errors.New("unexpected response")

// ProtocolError reports a response that could not be interpreted for a single command.
// It says nothing about the health of the connection itself.
type ProtocolError struct {
	Command  string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ezo %q: %v (response %q)", e.Command, e.Err, e.Response)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
