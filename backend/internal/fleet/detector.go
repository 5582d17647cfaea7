package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arksync/backend/internal/discovery"
	"arksync/backend/internal/metrics"
	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/serialport"
	"arksync/backend/pkg/utils"
)

const DefaultDetectInterval = 5 * time.Second

// Scanner lists candidate ports. discovery.Scanner satisfies it.
type Scanner interface {
	Scan() ([]serialport.Port, error)
}

// BringUp opens a port and identifies the circuit behind it.
type BringUp func(ctx context.Context, p serialport.Port) (sensor.Sensor, error)

// NameLookup returns the stored display name of a sensor, "" if none.
type NameLookup interface {
	Name(ctx context.Context, serial string) (string, error)
}

// Detector adds newly plugged sensors to the fleet.
type Detector struct {
	l        *slog.Logger
	m        *metrics.Metrics
	client   *Client
	scanner  Scanner
	bringUp  BringUp
	names    NameLookup
	interval time.Duration
}

// DetectorOptions configures a Detector. Names may be nil.
type DetectorOptions struct {
	Scanner  Scanner
	BringUp  BringUp
	Names    NameLookup
	Interval time.Duration
	Metrics  *metrics.Metrics
}

func NewDetector(l *slog.Logger, client *Client, opts DetectorOptions) *Detector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDetectInterval
	}

	return &Detector{
		l:        l.With(slog.String("component", "detector")),
		m:        opts.Metrics,
		client:   client,
		scanner:  opts.Scanner,
		bringUp:  opts.BringUp,
		names:    opts.Names,
		interval: opts.Interval,
	}
}

// Run detects immediately and then on every interval until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	d.l.Info("detector started", slog.Duration("interval", d.interval))
	runEvery(ctx, d.l, d.interval, d.Cycle)
	d.l.Info("detector stopped")
}

// Cycle brings up every matching port whose serial is not in the fleet yet
// and submits them in one batch. Ports that fail are retried next cycle.
func (d *Detector) Cycle(ctx context.Context) (err error) {
	defer func() { d.m.Cycle("detect", err) }()

	ports, err := d.scanner.Scan()
	if err != nil {
		return err
	}

	known, err := d.client.All(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fleet: %w", err)
	}

	seen := make(map[string]struct{}, len(known)+len(ports))
	for _, sn := range known {
		seen[sn.SerialNumber] = struct{}{}
	}

	var added []sensor.Sensor

	for _, p := range ports {
		if _, ok := seen[p.SerialNumber]; ok {
			continue
		}

		seen[p.SerialNumber] = struct{}{}

		sn, err := d.bringUp(ctx, p)
		if err != nil {
			d.m.DiscoveryError()
			d.l.Warn("sensor bring-up failed", utils.ErrAttr(&discovery.DiscoveryError{Port: p.Name, Err: err}))

			continue
		}

		sn.Name = d.lookupName(ctx, sn.SerialNumber)
		added = append(added, sn)
	}

	if len(added) == 0 {
		return nil
	}

	if err := d.client.Upsert(ctx, added...); err != nil {
		for _, sn := range added {
			utils.LogOnError(d.l, sn.Conn.Release, "failed to close unsubmitted sensor")
		}

		return fmt.Errorf("submit detected sensors: %w", err)
	}

	d.l.Info("detected sensors", slog.Int("count", len(added)))

	return nil
}

func (d *Detector) lookupName(ctx context.Context, serial string) string {
	if d.names == nil {
		return ""
	}

	name, err := d.names.Name(ctx, serial)
	if err != nil {
		d.l.Warn("failed to load sensor name", slog.String("serialNumber", serial), utils.ErrAttr(err))
		return ""
	}

	return name
}
