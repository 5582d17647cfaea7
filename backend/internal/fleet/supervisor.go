// Package fleet owns the set of known sensors and the background tasks that
// discover, health check and read them.
package fleet

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"arksync/backend/internal/metrics"
	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/utils"
)

// QueueCapacity bounds the commands waiting for the supervisor.
const QueueCapacity = 100

// ErrStopped is returned by clients once the supervisor has shut down.
var ErrStopped = errors.New("fleet supervisor stopped")

// Supervisor is the only goroutine touching the fleet map. Everything else
// talks to it through a Client.
type Supervisor struct {
	l       *slog.Logger
	m       *metrics.Metrics
	queue   chan command
	done    chan struct{}
	stopped chan struct{}
	gate    *gate
	sensors map[string]sensor.Sensor

	// now is replaceable in tests.
	now func() time.Time
}

func NewSupervisor(l *slog.Logger, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		l:       l.With(slog.String("component", "fleet")),
		m:       m,
		queue:   make(chan command, QueueCapacity),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		gate:    &gate{},
		sensors: map[string]sensor.Sensor{},
		now:     time.Now,
	}
}

// Client returns a handle for submitting commands. Clients are cheap and safe
// for concurrent use.
func (s *Supervisor) Client() *Client {
	return &Client{queue: s.queue, done: s.done, gate: s.gate}
}

// Done is closed once Run has returned and every handle is closed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.stopped
}

// Run processes commands in arrival order until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.l.Info("fleet supervisor started", slog.Int("queueCapacity", QueueCapacity))

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case cmd := <-s.queue:
			s.apply(cmd)
		}
	}
}

func (s *Supervisor) apply(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			s.l.Error("panic while applying fleet command", slog.Any("panic", r))
		}
	}()

	if cmd.apply(s) {
		s.updateMetrics()
	}
}

// gate serializes client sends against shutdown. Once closed no command can
// enter the queue, so the final drain sees everything that was ever sent.
type gate struct {
	mu     sync.RWMutex
	closed bool
}

func (s *Supervisor) shutdown() {
	// Wakes clients blocked on a full queue so they give up the read lock.
	close(s.done)

	s.gate.mu.Lock()
	s.gate.closed = true
	s.gate.mu.Unlock()

	s.drain()

	for serial, sn := range s.sensors {
		s.closeHandle(sn)
		delete(s.sensors, serial)
	}

	s.l.Info("fleet supervisor stopped")
	close(s.stopped)
}

// drain discards queued commands, they will never be answered. Upserts carry
// handles nobody else owns.
func (s *Supervisor) drain() {
	for {
		select {
		case cmd := <-s.queue:
			if u, ok := cmd.(*upsertCmd); ok {
				for _, sn := range u.sensors {
					s.closeHandle(sn)
				}
			}
		default:
			return
		}
	}
}

func (s *Supervisor) closeHandle(sn sensor.Sensor) {
	if sn.Conn == nil {
		return
	}

	if err := sn.Conn.Release(); err != nil {
		s.l.Warn("failed to close sensor connection", slog.String("serialNumber", sn.SerialNumber), utils.ErrAttr(err))
	}
}

func (s *Supervisor) snapshot() []sensor.Sensor {
	all := slices.Collect(maps.Values(s.sensors))
	slices.SortFunc(all, func(a, b sensor.Sensor) int {
		return cmp.Compare(a.SerialNumber, b.SerialNumber)
	})

	return all
}

func (s *Supervisor) updateMetrics() {
	counts := map[string]int{}
	for _, sn := range s.sensors {
		counts[sn.State.String()]++
	}

	s.m.SetSensors(counts)
}

// upsert stores sn as Active with fresh activity. A replaced handle is released.
// The display name of a known sensor is kept.
func (s *Supervisor) upsert(sn sensor.Sensor) {
	old, known := s.sensors[sn.SerialNumber]

	// A probe that raced with Remove must not resurrect the sensor.
	if !known && sn.Conn != nil && sn.Conn.Closed() {
		return
	}

	sn.State = sensor.Active
	sn.LastActivity = s.now()

	if known {
		// Names only change through Rename.
		sn.Name = old.Name

		if old.Conn != nil && old.Conn != sn.Conn {
			s.closeHandle(old)
		}
	} else {
		s.l.Info("sensor joined the fleet",
			slog.String("serialNumber", sn.SerialNumber),
			slog.String("kind", string(sn.Kind)),
			slog.String("bus", busString(sn.Bus)),
		)
	}

	s.sensors[sn.SerialNumber] = sn
}

func (s *Supervisor) remove(serial string) {
	sn, ok := s.sensors[serial]
	if !ok {
		return
	}

	delete(s.sensors, serial)
	s.closeHandle(sn)
	s.l.Info("sensor removed from the fleet", slog.String("serialNumber", serial))
}

func busString(b sensor.Bus) string {
	if b == nil {
		return ""
	}

	return b.String()
}
