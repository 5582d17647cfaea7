package fleet

import (
	"context"

	"arksync/backend/internal/sensor"
)

// Client submits commands to a Supervisor. Commands from one goroutine are
// applied in the order they were sent.
type Client struct {
	queue chan<- command
	done  <-chan struct{}
	gate  *gate
}

// Find looks up one sensor by serial number.
func (c *Client) Find(ctx context.Context, serial string) (sensor.Sensor, bool, error) {
	reply := make(chan findResult, 1)
	if err := c.submit(ctx, &findCmd{serial: serial, reply: reply}); err != nil {
		return sensor.Sensor{}, false, err
	}

	res, err := await(ctx, c, reply)

	return res.sensor, res.ok, err
}

// All returns a snapshot of the fleet sorted by serial number.
func (c *Client) All(ctx context.Context) ([]sensor.Sensor, error) {
	reply := make(chan []sensor.Sensor, 1)
	if err := c.submit(ctx, &allCmd{reply: reply}); err != nil {
		return nil, err
	}

	return await(ctx, c, reply)
}

// Upsert inserts or replaces sensors, marking them Active as of now. The
// supervisor takes over the reference held on each new handle.
func (c *Client) Upsert(ctx context.Context, sensors ...sensor.Sensor) error {
	if len(sensors) == 0 {
		return nil
	}

	return c.submit(ctx, &upsertCmd{sensors: sensors})
}

// Remove drops sensors and closes their handles. Unknown serials are ignored.
func (c *Client) Remove(ctx context.Context, serials ...string) error {
	if len(serials) == 0 {
		return nil
	}

	return c.submit(ctx, &removeCmd{serials: serials})
}

// MarkUnreachable flags sensors whose probe failed, keeping their last activity.
func (c *Client) MarkUnreachable(ctx context.Context, serials ...string) error {
	if len(serials) == 0 {
		return nil
	}

	return c.submit(ctx, &markUnreachableCmd{serials: serials})
}

// Rename sets the display name. It reports whether the sensor is in the fleet.
func (c *Client) Rename(ctx context.Context, serial, name string) (bool, error) {
	reply := make(chan bool, 1)
	if err := c.submit(ctx, &renameCmd{serial: serial, name: name, reply: reply}); err != nil {
		return false, err
	}

	return await(ctx, c, reply)
}

func (c *Client) submit(ctx context.Context, cmd command) error {
	c.gate.mu.RLock()
	defer c.gate.mu.RUnlock()

	if c.gate.closed {
		return ErrStopped
	}

	select {
	case c.queue <- cmd:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, c *Client, reply <-chan T) (T, error) {
	var zero T

	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		// The reply may have been sent just before shutdown.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
