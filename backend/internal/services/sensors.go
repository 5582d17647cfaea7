package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"arksync/backend/internal/fleet"
	"arksync/backend/internal/sensor"
	"arksync/backend/internal/store"
	"arksync/backend/pkg/ezo"
)

const (
	// MaxNameLength bounds display names, in runes.
	MaxNameLength = 64
	// CommandTimeout bounds a diagnostic exchange, including the wait for the
	// connection while a reader holds it.
	CommandTimeout = 5 * time.Second
)

var (
	ErrSensorNotFound = errors.New("sensor not found")
	ErrInvalidName    = errors.New("invalid sensor name")
	ErrInvalidCommand = errors.New("invalid command")
	ErrNoConnection   = errors.New("sensor has no connection")
)

type SensorService struct {
	l     *slog.Logger
	fleet *fleet.Client
	store NameStore
}

func NewSensorService(l *slog.Logger, client *fleet.Client, st NameStore) *SensorService {
	return &SensorService{
		l:     l.With(slog.String("service", "sensors")),
		fleet: client,
		store: st,
	}
}

// List returns every sensor ordered by serial number.
func (s *SensorService) List(ctx context.Context) ([]sensor.Sensor, error) {
	return s.fleet.All(ctx)
}

func (s *SensorService) Get(ctx context.Context, serial string) (sensor.Sensor, error) {
	sn, ok, err := s.fleet.Find(ctx, serial)
	if err != nil {
		return sensor.Sensor{}, err
	}

	if !ok {
		return sensor.Sensor{}, fmt.Errorf("%w: %s", ErrSensorNotFound, serial)
	}

	return sn, nil
}

// Rename stores a new display name and applies it to the live sensor. An
// empty name restores the serial number as display name.
func (s *SensorService) Rename(ctx context.Context, serial, name string) (sensor.Sensor, error) {
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > MaxNameLength {
		return sensor.Sensor{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}

	if strings.ContainsAny(name, "\r\n\t") {
		return sensor.Sensor{}, fmt.Errorf("%w: control characters are not allowed", ErrInvalidName)
	}

	if _, err := s.Get(ctx, serial); err != nil {
		return sensor.Sensor{}, err
	}

	if err := s.store.SetName(ctx, serial, name); err != nil {
		return sensor.Sensor{}, err
	}

	found, err := s.fleet.Rename(ctx, serial, name)
	if err != nil {
		return sensor.Sensor{}, err
	}

	// Removed between the lookup and the rename. The stored name applies on its next detection.
	if !found {
		return sensor.Sensor{}, fmt.Errorf("%w: %s", ErrSensorNotFound, serial)
	}

	s.l.Info("sensor renamed", slog.String("serialNumber", serial), slog.String("name", name))

	return s.Get(ctx, serial)
}

// Sightings lists every sensor the store has seen active.
func (s *SensorService) Sightings(ctx context.Context) ([]store.Sighting, error) {
	return s.store.Sightings(ctx)
}

func (s *SensorService) Status(ctx context.Context, serial string) (ezo.StatusCode, error) {
	var code ezo.StatusCode

	err := s.exchange(ctx, serial, func(ctx context.Context, d *ezo.Device) error {
		var err error
		code, err = d.CheckStatus(ctx)

		return err
	})

	return code, err
}

func (s *SensorService) Calibration(ctx context.Context, serial string) (ezo.CalibrationStatus, error) {
	var cal ezo.CalibrationStatus

	err := s.exchange(ctx, serial, func(ctx context.Context, d *ezo.Device) error {
		var err error
		cal, err = d.GetCalibration(ctx)

		return err
	})

	return cal, err
}

func (s *SensorService) Sleep(ctx context.Context, serial string) error {
	return s.exchange(ctx, serial, func(ctx context.Context, d *ezo.Device) error {
		return d.Sleep(ctx)
	})
}

// Raw sends an arbitrary command and returns the untouched response.
func (s *SensorService) Raw(ctx context.Context, serial, cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}

	var resp string

	err := s.exchange(ctx, serial, func(ctx context.Context, d *ezo.Device) error {
		var err error
		resp, err = d.SendRaw(ctx, cmd)

		return err
	})

	return resp, err
}

// exchange runs fn with exclusive use of the sensor connection.
func (s *SensorService) exchange(ctx context.Context, serial string, fn func(context.Context, *ezo.Device) error) error {
	sn, err := s.Get(ctx, serial)
	if err != nil {
		return err
	}

	if sn.Conn == nil {
		return fmt.Errorf("%w: %s", ErrNoConnection, serial)
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	return sn.Conn.Do(ctx, func(d *ezo.Device) error {
		return fn(ctx, d)
	})
}
