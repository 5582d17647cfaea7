// Package telemetry carries readings and sensor state changes out of the
// fleet to MQTT, Redis and websocket clients.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"arksync/backend/internal/sensor"
	"arksync/backend/pkg/utils"
)

// Reading is one measurement taken by a reader.
type Reading struct {
	SerialNumber string      `json:"serialNumber"`
	Name         string      `json:"name,omitempty"`
	Kind         sensor.Kind `json:"kind"`
	Value        float64     `json:"value"`
	Unit         string      `json:"unit"`
	Timestamp    time.Time   `json:"timestamp"`
}

// StateRemoved is reported when a sensor leaves the fleet.
const StateRemoved = "removed"

// StateChange is published whenever a sensor joins, changes state or leaves.
type StateChange struct {
	SerialNumber string      `json:"serialNumber"`
	Name         string      `json:"name,omitempty"`
	Kind         sensor.Kind `json:"kind"`
	State        string      `json:"state"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewReading fills the unit and display name from s.
func NewReading(s sensor.Sensor, value float64, at time.Time) Reading {
	return Reading{
		SerialNumber: s.SerialNumber,
		Name:         s.Name,
		Kind:         s.Kind,
		Value:        value,
		Unit:         s.Kind.Unit(),
		Timestamp:    at,
	}
}

// Sink receives readings and state changes.
type Sink interface {
	PublishReading(ctx context.Context, r Reading) error
	PublishState(ctx context.Context, c StateChange) error
}

// Fanout forwards to every sink. A failing sink does not stop the others.
type Fanout struct {
	l     *slog.Logger
	sinks []Sink
}

func NewFanout(l *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		l:     l.With(slog.String("component", "telemetry")),
		sinks: sinks,
	}
}

// Add registers another sink. It must be called before publishing starts.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) PublishReading(ctx context.Context, r Reading) error {
	var errs []error

	for _, s := range f.sinks {
		if err := s.PublishReading(ctx, r); err != nil {
			f.l.Warn("failed to publish reading", slog.String("serialNumber", r.SerialNumber), utils.ErrAttr(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (f *Fanout) PublishState(ctx context.Context, c StateChange) error {
	var errs []error

	for _, s := range f.sinks {
		if err := s.PublishState(ctx, c); err != nil {
			f.l.Warn("failed to publish state", slog.String("serialNumber", c.SerialNumber), utils.ErrAttr(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
