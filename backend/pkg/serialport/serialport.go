// Package serialport owns an open UART channel to a single device and frames
// carriage-return terminated ASCII exchanges on top of it.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	BaudRate       = 9600
	ReadTimeout    = 1000 * time.Millisecond
	Terminator     = '\r'
	MaxResponseLen = 256
)

// Port identifies a physical connection point. It is metadata, not a resource.
type Port struct {
	Name         string `json:"portName"`
	SerialNumber string `json:"serialNumber"`
}

func (p Port) String() string {
	return p.Name + " (" + p.SerialNumber + ")"
}

// Device is the subset of serial.Port the framing layer relies on.
type Device interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	Drain() error
}

// Conn is an exclusive, opened binding to one Port.
type Conn struct {
	port Port
	dev  Device

	mu     sync.Mutex
	closed bool
}

// Open opens the device path with the fixed EZO line settings and discards stale input.
func Open(p Port) (*Conn, error) {
	dev, err := serial.Open(p.Name, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &TransportError{Op: "open", Port: p.Name, Err: err}
	}

	if err := dev.SetReadTimeout(ReadTimeout); err != nil {
		_ = dev.Close()
		return nil, &TransportError{Op: "open", Port: p.Name, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	c := NewConn(p, dev)
	if err := c.FlushInput(); err != nil {
		_ = dev.Close()
		return nil, err
	}

	return c, nil
}

// NewConn wraps an already opened device. The device must enforce its own read
// timeout and report it as a zero byte read, as go.bug.st/serial does.
func NewConn(p Port, dev Device) *Conn {
	return &Conn{port: p, dev: dev}
}

// Port returns the metadata the connection was opened with.
func (c *Conn) Port() Port {
	return c.port
}

// SendCommand performs one flush, write, read exchange. Exchanges on the same
// Conn never interleave.
func (c *Conn) SendCommand(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", &TransportError{Op: "write", Port: c.port.Name, Err: ErrClosed}
	}

	if err := c.flushInput(); err != nil {
		return "", err
	}

	if err := c.writeCommand(cmd); err != nil {
		return "", err
	}

	return c.readResponse()
}

// WriteCommand appends the terminator to cmd, writes it and waits for it to drain.
func (c *Conn) WriteCommand(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeCommand(cmd)
}

// ReadResponse reads up to the next terminator and returns the trimmed text.
func (c *Conn) ReadResponse() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readResponse()
}

// FlushInput discards anything the device sent since the last exchange.
func (c *Conn) FlushInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flushInput()
}

// Close releases the underlying device. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.dev.Close(); err != nil {
		return &TransportError{Op: "close", Port: c.port.Name, Err: err}
	}

	return nil
}

func (c *Conn) flushInput() error {
	if err := c.dev.ResetInputBuffer(); err != nil {
		return &TransportError{Op: "flush", Port: c.port.Name, Err: err}
	}

	return nil
}

func (c *Conn) writeCommand(cmd string) error {
	buf := make([]byte, 0, len(cmd)+1)
	buf = append(buf, cmd...)
	buf = append(buf, Terminator)

	if _, err := c.dev.Write(buf); err != nil {
		return &TransportError{Op: "write", Port: c.port.Name, Err: err}
	}

	if err := c.dev.Drain(); err != nil {
		return &TransportError{Op: "flush", Port: c.port.Name, Err: err}
	}

	return nil
}

func (c *Conn) readResponse() (string, error) {
	var (
		line []byte
		b    [1]byte
	)

	for {
		n, err := c.dev.Read(b[:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrDisconnected
			}

			return "", &TransportError{Op: "read", Port: c.port.Name, Err: err}
		}

		if n == 0 {
			return "", &TransportError{Op: "read", Port: c.port.Name, Err: ErrTimeout}
		}

		if b[0] == Terminator {
			break
		}

		if len(line) >= MaxResponseLen {
			return "", &TransportError{Op: "read", Port: c.port.Name, Err: ErrResponseTooLong}
		}

		line = append(line, b[0])
	}

	return strings.TrimSpace(strings.ToValidUTF8(string(line), "\uFFFD")), nil
}
