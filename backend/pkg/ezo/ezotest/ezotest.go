// Package ezotest provides an in-memory EZO circuit for tests.
package ezotest

import (
	"log/slog"
	"sync"

	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/serialport"
)

// Circuit is a fake ezo.Exchanger. It answers commands from a static table
// and can be switched off to simulate an unplugged device.
type Circuit struct {
	mu        sync.Mutex
	responses map[string]string
	offline   bool
	closed    bool
	sent      []string
}

// NewCircuit returns a circuit answering identification with info and reads
// with reading. Status reports a power-on restart.
func NewCircuit(info, reading string) *Circuit {
	return &Circuit{
		responses: map[string]string{
			ezo.CmdInfo:        info,
			ezo.CmdRead:        reading,
			ezo.CmdStatus:      "?STATUS,P,5.038",
			ezo.CmdCalibration: "?Cal,1",
			ezo.CmdSleep:       "",
		},
	}
}

// Set overrides the response for cmd.
func (c *Circuit) Set(cmd, resp string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responses[cmd] = resp
}

// SetOffline makes every exchange time out.
func (c *Circuit) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offline = offline
}

func (c *Circuit) SendCommand(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, cmd)

	if c.closed {
		return "", serialport.ErrClosed
	}

	if c.offline {
		return "", &serialport.TransportError{Op: "read", Port: "fake", Err: serialport.ErrTimeout}
	}

	resp, ok := c.responses[cmd]
	if !ok {
		return "*ER", nil
	}

	return resp, nil
}

func (c *Circuit) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

// Closed reports whether Close was called.
func (c *Circuit) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Sent returns a copy of every command received so far.
func (c *Circuit) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.sent...)
}

// Device wraps a new circuit in an ezo.Device with no retry delay.
func Device(l *slog.Logger, info, reading string) (*ezo.Device, *Circuit) {
	c := NewCircuit(info, reading)
	d := ezo.NewDevice(l, c)
	d.RetryDelay = 0

	return d, c
}
