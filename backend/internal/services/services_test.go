package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"arksync/backend/internal/fleet"
	"arksync/backend/internal/sensor"
	"arksync/backend/internal/store"
	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/ezo/ezotest"
	"arksync/backend/pkg/serialport"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu      sync.Mutex
	names   map[string]string
	pingErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) SetName(_ context.Context, serial, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "" {
		delete(f.names, serial)
	} else {
		f.names[serial] = name
	}

	return nil
}

func (f *fakeStore) Sightings(context.Context) ([]store.Sighting, error) {
	return []store.Sighting{{SerialNumber: "DP065KS3", Kind: sensor.KindRTD}}, nil
}

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type env struct {
	sup   *fleet.Supervisor
	store *fakeStore
	svc   *Services
	c     *ezotest.Circuit
}

func newEnv(t *testing.T, redis Pinger) *env {
	t.Helper()

	sup := fleet.NewSupervisor(discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-sup.Done()
	})

	dev, c := ezotest.Device(discard(), "?I,RTD,1.0", "21.50")

	sn, err := sensor.New(context.Background(), discard(), serialport.Port{Name: "/dev/ttyUSB0", SerialNumber: "DP065KS3"}, dev)
	if err != nil {
		t.Fatalf("sensor.New() error = %v", err)
	}

	if err := sup.Client().Upsert(context.Background(), sn); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	st := &fakeStore{names: map[string]string{}}

	return &env{
		sup:   sup,
		store: st,
		c:     c,
		svc: NewServices(discard(), Deps{
			Store:      st,
			Fleet:      sup.Client(),
			Supervisor: sup,
			MQTT:       fakeConn(true),
			Redis:      redis,
		}),
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("all up without redis", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, nil)

		h := e.svc.Core.Health(context.Background())
		if !h.Healthy() || h.Redis != nil {
			t.Errorf("Health() = %+v", h)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, fakePinger{err: errors.New("refused")})

		h := e.svc.Core.Health(context.Background())
		if h.Healthy() || h.Redis == nil || *h.Redis {
			t.Errorf("Health() = %+v", h)
		}
	})

	t.Run("database and mqtt down", func(t *testing.T) {
		t.Parallel()

		core := NewCoreService(discard(), Deps{
			Store: &fakeStore{pingErr: errors.New("locked")},
			MQTT:  fakeConn(false),
		})

		h := core.Health(context.Background())
		if h.Database || h.MQTT || !h.Fleet || h.Healthy() {
			t.Errorf("Health() = %+v", h)
		}
	})
}

func TestSensorsGetAndList(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	all, err := e.svc.Sensors.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("List() = %v, %v", all, err)
	}

	if _, err := e.svc.Sensors.Get(ctx, "NOPE"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Get() error = %v, want ErrSensorNotFound", err)
	}

	sn, err := e.svc.Sensors.Get(ctx, "DP065KS3")
	if err != nil || sn.State != sensor.Active {
		t.Errorf("Get() = %+v, %v", sn, err)
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	sn, err := e.svc.Sensors.Rename(ctx, "DP065KS3", "  tank 1 ")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if sn.Name != "tank 1" || e.store.names["DP065KS3"] != "tank 1" {
		t.Errorf("Rename() = %q, stored %q", sn.Name, e.store.names["DP065KS3"])
	}

	if _, err := e.svc.Sensors.Rename(ctx, "DP065KS3", strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("long name error = %v", err)
	}

	if _, err := e.svc.Sensors.Rename(ctx, "DP065KS3", "a\nb"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("newline error = %v", err)
	}

	if _, err := e.svc.Sensors.Rename(ctx, "NOPE", "x"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("unknown sensor error = %v", err)
	}

	if _, ok := e.store.names["NOPE"]; ok {
		t.Error("name of an unknown sensor should not be stored")
	}

	sn, err = e.svc.Sensors.Rename(ctx, "DP065KS3", "")
	if err != nil || sn.Name != "" || sn.DisplayName() != "DP065KS3" {
		t.Errorf("clear name = %+v, %v", sn, err)
	}

	if _, ok := e.store.names["DP065KS3"]; ok {
		t.Error("cleared name should be deleted from the store")
	}
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	code, err := e.svc.Sensors.Status(ctx, "DP065KS3")
	if err != nil || code != ezo.StatusPoweredOn {
		t.Errorf("Status() = %v, %v", code, err)
	}

	cal, err := e.svc.Sensors.Calibration(ctx, "DP065KS3")
	if err != nil || cal.CalibrationPoints != 1 {
		t.Errorf("Calibration() = %+v, %v", cal, err)
	}

	if err := e.svc.Sensors.Sleep(ctx, "DP065KS3"); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}

	e.c.Set("L,?", "?L,1")

	resp, err := e.svc.Sensors.Raw(ctx, "DP065KS3", "L,?")
	if err != nil || resp != "?L,1" {
		t.Errorf("Raw() = %q, %v", resp, err)
	}

	if _, err := e.svc.Sensors.Raw(ctx, "DP065KS3", "R\rSleep"); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Raw() with terminator error = %v", err)
	}

	e.c.SetOffline(true)

	if _, err := e.svc.Sensors.Status(ctx, "DP065KS3"); !errors.Is(err, serialport.ErrTimeout) {
		t.Errorf("Status() offline error = %v, want ErrTimeout", err)
	}

	if _, err := e.svc.Sensors.Status(ctx, "NOPE"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Status() unknown error = %v", err)
	}

	sightings, err := e.svc.Sensors.Sightings(ctx)
	if err != nil || len(sightings) != 1 {
		t.Errorf("Sightings() = %v, %v", sightings, err)
	}
}
