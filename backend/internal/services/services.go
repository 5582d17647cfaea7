package services

import (
	"context"
	"log/slog"

	"arksync/backend/internal/fleet"
	"arksync/backend/internal/store"
)

// Pinger is anything a health check can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity reports the state of a long lived connection.
type Connectivity interface {
	IsConnected() bool
}

// NameStore persists display names and sighting history. store.Store satisfies it.
type NameStore interface {
	Pinger
	SetName(ctx context.Context, serial, name string) error
	Sightings(ctx context.Context) ([]store.Sighting, error)
}

// Deps are the collaborators of the services. Redis is optional.
type Deps struct {
	Store      NameStore
	Fleet      *fleet.Client
	Supervisor *fleet.Supervisor
	MQTT       Connectivity
	Redis      Pinger
}

type Services struct {
	l       *slog.Logger
	Core    *CoreService
	Sensors *SensorService
}

func NewServices(l *slog.Logger, deps Deps) *Services {
	return &Services{
		l:       l.With(slog.String("module", "services")),
		Core:    NewCoreService(l, deps),
		Sensors: NewSensorService(l, deps.Fleet, deps.Store),
	}
}
