package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"arksync/backend/internal/metrics"
	"arksync/backend/internal/sensor"
	"arksync/backend/internal/telemetry"
	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/utils"
)

const (
	DefaultReconcileInterval = 2 * time.Second
	DefaultReadInterval      = 5 * time.Second
)

// Publisher receives what the readers produce. telemetry.Fanout satisfies it.
type Publisher interface {
	PublishReading(ctx context.Context, r telemetry.Reading) error
	PublishState(ctx context.Context, c telemetry.StateChange) error
}

type reader struct {
	cancel context.CancelFunc
	conn   *sensor.Handle
}

// Readers keeps one reader goroutine per Active sensor and publishes state
// changes it observes between snapshots. A reader stops within one reconcile
// interval of its sensor leaving Active, or right away when Nudge is called.
type Readers struct {
	l         *slog.Logger
	m         *metrics.Metrics
	client    *Client
	pub       Publisher
	reconcile time.Duration
	interval  time.Duration
	wake      chan struct{}

	mu      sync.Mutex
	running map[string]*reader
	states  map[string]string
	wg      sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// ReadersOptions configures Readers. Zero durations use the defaults.
type ReadersOptions struct {
	Publisher         Publisher
	ReconcileInterval time.Duration
	ReadInterval      time.Duration
	Metrics           *metrics.Metrics
}

func NewReaders(l *slog.Logger, client *Client, opts ReadersOptions) *Readers {
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultReconcileInterval
	}

	if opts.ReadInterval <= 0 {
		opts.ReadInterval = DefaultReadInterval
	}

	return &Readers{
		l:         l.With(slog.String("component", "readers")),
		m:         opts.Metrics,
		client:    client,
		pub:       opts.Publisher,
		reconcile: opts.ReconcileInterval,
		interval:  opts.ReadInterval,
		wake:      make(chan struct{}, 1),
		running:   map[string]*reader{},
		states:    map[string]string{},
		now:       time.Now,
	}
}

// Run reconciles until ctx is done, then cancels every reader and waits for
// them to exit.
func (r *Readers) Run(ctx context.Context) {
	r.l.Info("readers started", slog.Duration("readInterval", r.interval))
	defer r.Stop()

	runEveryOrWake(ctx, r.l, r.reconcile, r.wake, r.Reconcile)
}

// Nudge asks Run to reconcile now instead of waiting for the next tick. It
// never blocks; nudges arriving before the reconcile starts coalesce.
func (r *Readers) Nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop cancels all readers and waits for them. Safe to call more than once.
func (r *Readers) Stop() {
	r.mu.Lock()
	for serial, rd := range r.running {
		rd.cancel()
		delete(r.running, serial)
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.l.Info("readers stopped")
}

// Running returns the serial numbers that currently have a reader, sorted.
func (r *Readers) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	serials := make([]string, 0, len(r.running))
	for serial := range r.running {
		serials = append(serials, serial)
	}

	slices.Sort(serials)

	return serials
}

// Reconcile starts readers for Active sensors without one and cancels readers
// whose sensor left Active, left the fleet or got a new connection.
func (r *Readers) Reconcile(ctx context.Context) error {
	snapshot, err := r.client.All(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fleet: %w", err)
	}

	r.publishStates(ctx, snapshot)

	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]sensor.Sensor, len(snapshot))
	for _, sn := range snapshot {
		if sn.IsActive() && sn.Conn != nil {
			wanted[sn.SerialNumber] = sn
		}
	}

	for serial, rd := range r.running {
		if sn, ok := wanted[serial]; ok && sn.Conn == rd.conn {
			continue
		}

		rd.cancel()
		delete(r.running, serial)
	}

	for serial, sn := range wanted {
		if _, ok := r.running[serial]; ok {
			continue
		}

		if !sn.Conn.Retain() {
			continue
		}

		rctx, cancel := context.WithCancel(ctx)
		r.running[serial] = &reader{cancel: cancel, conn: sn.Conn}

		r.wg.Add(1)

		go r.read(rctx, sn)
	}

	return nil
}

// read owns one reference on the sensor's handle until it returns.
func (r *Readers) read(ctx context.Context, sn sensor.Sensor) {
	defer r.wg.Done()
	defer utils.LogOnError(r.l, sn.Conn.Release, "failed to release sensor connection")

	l := r.l.With(slog.String("serialNumber", sn.SerialNumber))
	l.Debug("reader started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Debug("reader stopped")
			return
		case <-ticker.C:
		}

		value, err := readOnce(ctx, sn)
		if err != nil {
			if ctx.Err() == nil {
				l.Warn("read failed", utils.ErrAttr(err))
			}

			continue
		}

		r.m.Reading(string(sn.Kind))

		if r.pub == nil {
			continue
		}

		if err := r.pub.PublishReading(ctx, telemetry.NewReading(sn, value, r.now())); err != nil && ctx.Err() == nil {
			l.Debug("publish failed", utils.ErrAttr(err))
		}
	}
}

func readOnce(ctx context.Context, sn sensor.Sensor) (float64, error) {
	var value float64

	err := sn.Conn.Do(ctx, func(d *ezo.Device) error {
		var err error
		if sn.Kind == sensor.KindRTD {
			value, err = d.ReadTemperature(ctx)
		} else {
			value, err = d.Read(ctx)
		}

		return err
	})

	return value, err
}

// publishStates reports sensors that joined, changed state or left since the
// previous snapshot.
func (r *Readers) publishStates(ctx context.Context, snapshot []sensor.Sensor) {
	current := make(map[string]string, len(snapshot))
	var changes []telemetry.StateChange

	for _, sn := range snapshot {
		state := sn.State.String()
		current[sn.SerialNumber] = state

		if r.states[sn.SerialNumber] != state {
			changes = append(changes, telemetry.StateChange{
				SerialNumber: sn.SerialNumber,
				Name:         sn.Name,
				Kind:         sn.Kind,
				State:        state,
				Timestamp:    r.now(),
			})
		}
	}

	for serial := range r.states {
		if _, ok := current[serial]; !ok {
			changes = append(changes, telemetry.StateChange{
				SerialNumber: serial,
				State:        telemetry.StateRemoved,
				Timestamp:    r.now(),
			})
		}
	}

	r.states = current

	if r.pub == nil {
		return
	}

	for _, c := range changes {
		if err := r.pub.PublishState(ctx, c); err != nil {
			r.l.Debug("state publish failed", slog.String("serialNumber", c.SerialNumber), utils.ErrAttr(err))
		}
	}
}
