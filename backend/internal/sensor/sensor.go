// Package sensor holds the fleet's sensor entity: identity, lifecycle state and
// the shared connection handle.
package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/serialport"
)

// Sensor is a value type. Copies share the same Conn handle.
type Sensor struct {
	SerialNumber string
	Kind         Kind
	Firmware     float64
	Name         string
	State        State
	Bus          Bus
	Conn         *Handle
	LastActivity time.Time
}

// FromDevice opens the port and runs bring-up on it.
func FromDevice(ctx context.Context, l *slog.Logger, p serialport.Port, observe ezo.Observer) (Sensor, error) {
	dev, err := ezo.Connect(l, p)
	if err != nil {
		return Sensor{}, err
	}

	dev.Observe = observe

	return New(ctx, l, p, dev)
}

// New identifies an already connected device and wraps it as a Sensor. On
// failure the device is closed.
func New(ctx context.Context, l *slog.Logger, p serialport.Port, dev *ezo.Device) (Sensor, error) {
	info, err := dev.DeviceInfo(ctx)
	if err != nil {
		_ = dev.Close()
		return Sensor{}, fmt.Errorf("identify %s: %w", p, err)
	}

	kind, known := ParseKind(info.DeviceType)
	if !known {
		l.Warn("unrecognised device type, using default kind",
			slog.String("serialNumber", p.SerialNumber),
			slog.String("deviceType", info.DeviceType),
			slog.String("kind", string(kind)),
		)
	}

	return Sensor{
		SerialNumber: p.SerialNumber,
		Kind:         kind,
		Firmware:     info.FirmwareVersion,
		State:        Initializing,
		Bus:          UART{Port: p},
		Conn:         NewHandle(dev),
		LastActivity: time.Now(),
	}, nil
}

// IsActive reports whether readers should run for this sensor.
func (s Sensor) IsActive() bool {
	return s.State == Active
}

// Port returns the UART port of the sensor, if it has one.
func (s Sensor) Port() (serialport.Port, bool) {
	u, ok := s.Bus.(UART)
	return u.Port, ok
}

// DisplayName is the user assigned name, or the serial number for unnamed sensors.
func (s Sensor) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	return s.SerialNumber
}
