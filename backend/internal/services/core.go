package services

import (
	"context"
	"log/slog"

	"arksync/backend/internal/fleet"
	"arksync/backend/pkg/utils"
)

type CoreService struct {
	l          *slog.Logger
	db         Pinger
	mqtt       Connectivity
	redis      Pinger
	supervisor *fleet.Supervisor
}

func NewCoreService(l *slog.Logger, deps Deps) *CoreService {
	return &CoreService{
		l:          l.With(slog.String("service", "core")),
		db:         deps.Store,
		mqtt:       deps.MQTT,
		redis:      deps.Redis,
		supervisor: deps.Supervisor,
	}
}

// HealthStatus is the health of every dependency. Redis is nil when it is not configured.
type HealthStatus struct {
	Database bool
	MQTT     bool
	Fleet    bool
	Redis    *bool
}

// Healthy reports whether every configured dependency is up.
func (h HealthStatus) Healthy() bool {
	return h.Database && h.MQTT && h.Fleet && (h.Redis == nil || *h.Redis)
}

func (s *CoreService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Database: true,
		MQTT:     true,
		Fleet:    true,
	}

	if err := s.db.Ping(ctx); err != nil {
		s.l.Error("database unreachable", utils.ErrAttr(err))

		status.Database = false
	}

	if !s.mqtt.IsConnected() {
		s.l.Error("mqtt broker unreachable")

		status.MQTT = false
	}

	if s.supervisor != nil {
		select {
		case <-s.supervisor.Done():
			s.l.Error("fleet supervisor stopped")

			status.Fleet = false
		default:
		}
	}

	if s.redis != nil {
		ok := true

		if err := s.redis.Ping(ctx); err != nil {
			s.l.Error("redis unreachable", utils.ErrAttr(err))

			ok = false
		}

		status.Redis = &ok
	}

	return status
}
