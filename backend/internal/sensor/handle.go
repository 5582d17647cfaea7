package sensor

import (
	"context"
	"errors"
	"sync"

	"arksync/backend/pkg/ezo"
)

// ErrHandleClosed is returned by Do once the last owner released the handle.
var ErrHandleClosed = errors.New("sensor connection closed")

// Handle shares one open device between the fleet and its readers. Access is
// exclusive: Do waits for any in-flight exchange, which can take up to a full
// transport timeout. The device is closed when the last reference is released.
type Handle struct {
	dev *ezo.Device
	sem chan struct{}

	mu     sync.Mutex
	refs   int
	closed bool
}

// NewHandle wraps dev with a single reference owned by the caller.
func NewHandle(dev *ezo.Device) *Handle {
	return &Handle{
		dev:  dev,
		sem:  make(chan struct{}, 1),
		refs: 1,
	}
}

// Do runs fn with exclusive access to the device.
func (h *Handle) Do(ctx context.Context, fn func(*ezo.Device) error) error {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-h.sem }()

	if h.Closed() {
		return ErrHandleClosed
	}

	return fn(h.dev)
}

// Retain adds a reference. It reports false if the handle is already closed.
func (h *Handle) Retain() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return false
	}

	h.refs++

	return true
}

// Release drops a reference and closes the device when none are left.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return nil
	}

	h.refs--
	last := h.refs == 0
	h.mu.Unlock()

	if !last {
		return nil
	}

	return h.closeDevice()
}

// Close drops every reference and closes the device. It is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.refs = 0
	h.mu.Unlock()

	return h.closeDevice()
}

func (h *Handle) closeDevice() error {
	// Wait for an in-flight exchange before closing the port under it.
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	return h.dev.Close()
}

// Refs reports the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.refs
}

// Closed reports whether the device has been closed.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.refs == 0 || h.closed
}
