package fleet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/ezo/ezotest"
	"arksync/backend/pkg/serialport"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// startSupervisor runs a supervisor on clock until the test ends.
func startSupervisor(t *testing.T, clock *fakeClock) (*Supervisor, *Client) {
	t.Helper()

	sup := NewSupervisor(discard(), nil)
	if clock != nil {
		sup.now = clock.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-sup.Done()
	})

	return sup, sup.Client()
}

// newSensor brings up a fake RTD circuit behind a fake port.
func newSensor(t *testing.T, serial string) (sensor.Sensor, *ezotest.Circuit) {
	t.Helper()

	dev, c := ezotest.Device(discard(), "?I,RTD,1.0", "21.50")
	port := serialport.Port{Name: "/dev/tty-" + serial, SerialNumber: serial}

	sn, err := sensor.New(context.Background(), discard(), port, dev)
	if err != nil {
		t.Fatalf("sensor.New() error = %v", err)
	}

	return sn, c
}

func mustFind(t *testing.T, c *Client, serial string) sensor.Sensor {
	t.Helper()

	sn, ok, err := c.Find(context.Background(), serial)
	if err != nil {
		t.Fatalf("Find(%s) error = %v", serial, err)
	}

	if !ok {
		t.Fatalf("Find(%s) not found", serial)
	}

	return sn
}

func mustAll(t *testing.T, c *Client) []sensor.Sensor {
	t.Helper()

	all, err := c.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}

	return all
}

// settle returns once every command c has sent so far is applied. Upsert,
// Remove and MarkUnreachable only queue; the queue is FIFO, so one round
// trip is enough.
func settle(t *testing.T, c *Client) {
	t.Helper()
	mustAll(t, c)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}
