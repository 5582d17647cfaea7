package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arksync/backend/internal/metrics"
	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/utils"
)

const (
	DefaultHealthInterval = 20 * time.Second
	DefaultGraceWindow    = 2 * time.Minute
)

var errNoConnection = errors.New("sensor has no connection")

// Probe checks that a sensor still answers.
type Probe func(ctx context.Context, s sensor.Sensor) error

// StatusProbe asks the circuit for its status through the shared handle.
func StatusProbe(ctx context.Context, s sensor.Sensor) error {
	if s.Conn == nil {
		return errNoConnection
	}

	return s.Conn.Do(ctx, func(d *ezo.Device) error {
		_, err := d.CheckStatus(ctx)
		return err
	})
}

// Healthcheck probes every sensor in the fleet. Sensors that answer are
// refreshed, the others are marked Unreachable, and sensors already
// Unreachable past the grace window are removed.
type Healthcheck struct {
	l        *slog.Logger
	m        *metrics.Metrics
	client   *Client
	probe    Probe
	interval time.Duration
	grace    time.Duration
	onDemote func()

	// now is replaceable in tests.
	now func() time.Time
}

// HealthcheckOptions configures a Healthcheck. Zero values use the defaults.
type HealthcheckOptions struct {
	Probe    Probe
	Interval time.Duration
	Grace    time.Duration
	Metrics  *metrics.Metrics
	// OnDemote runs after a cycle queued sensors as Unreachable or removed
	// them. Readers.Nudge fits.
	OnDemote func()
}

func NewHealthcheck(l *slog.Logger, client *Client, opts HealthcheckOptions) *Healthcheck {
	if opts.Probe == nil {
		opts.Probe = StatusProbe
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultHealthInterval
	}

	if opts.Grace <= 0 {
		opts.Grace = DefaultGraceWindow
	}

	return &Healthcheck{
		l:        l.With(slog.String("component", "healthcheck")),
		m:        opts.Metrics,
		client:   client,
		probe:    opts.Probe,
		interval: opts.Interval,
		grace:    opts.Grace,
		onDemote: opts.OnDemote,
		now:      time.Now,
	}
}

func (h *Healthcheck) Run(ctx context.Context) {
	h.l.Info("healthcheck started", slog.Duration("interval", h.interval), slog.Duration("grace", h.grace))
	runEvery(ctx, h.l, h.interval, h.Cycle)
	h.l.Info("healthcheck stopped")
}

// Cycle probes one snapshot of the fleet. An Active sensor is never removed
// in the cycle that first sees it fail.
func (h *Healthcheck) Cycle(ctx context.Context) (err error) {
	defer func() { h.m.Cycle("healthcheck", err) }()

	snapshot, err := h.client.All(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fleet: %w", err)
	}

	var (
		alive       []sensor.Sensor
		unreachable []string
		expired     []string
	)

	for _, sn := range snapshot {
		perr := h.probe(ctx, sn)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if perr == nil {
			alive = append(alive, sn)
			continue
		}

		age := h.now().Sub(sn.LastActivity)
		if sn.State == sensor.Unreachable && age > h.grace {
			h.l.Warn("removing sensor past grace window",
				slog.String("serialNumber", sn.SerialNumber),
				slog.Duration("silentFor", age),
				utils.ErrAttr(perr),
			)

			expired = append(expired, sn.SerialNumber)

			continue
		}

		h.l.Debug("health probe failed", slog.String("serialNumber", sn.SerialNumber), utils.ErrAttr(perr))
		unreachable = append(unreachable, sn.SerialNumber)
	}

	if err := h.client.Upsert(ctx, alive...); err != nil {
		return err
	}

	if err := h.client.MarkUnreachable(ctx, unreachable...); err != nil {
		return err
	}

	if err := h.client.Remove(ctx, expired...); err != nil {
		return err
	}

	// Both commands are queued, so a snapshot taken from here on sees them.
	if h.onDemote != nil && len(unreachable)+len(expired) > 0 {
		h.onDemote()
	}

	return nil
}
