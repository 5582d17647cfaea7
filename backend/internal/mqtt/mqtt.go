// Package mqtt registers the MQTT surface of the fleet: reading and state
// publications and the per sensor command topic.
package mqtt

import (
	"log/slog"
	"sync"
	"time"

	"arksync/backend/internal/services"
	"arksync/backend/internal/telemetry"
	"arksync/backend/pkg/mqtt"
)

const (
	OpPublishStatus    = "publishSensorStatus"
	OpSubscribeCommand = "subscribeSensorCommand"

	TopicStatus = "sensors/{serialNumber}/status"
)

// Handler handles MQTT message processing.
type Handler struct {
	l   *slog.Logger
	svc *services.Services
	pub telemetry.MQTTPublisher
	now func() time.Time

	// Commands run off the paho callback goroutine, which must not block.
	wg sync.WaitGroup
}

// NewMQTTHandler creates a new MQTT handler. Replies go out through pub.
func NewMQTTHandler(l *slog.Logger, svc *services.Services, pub telemetry.MQTTPublisher) *Handler {
	return &Handler{
		l:   l.With(slog.String("component", "mqtt-handler")),
		svc: svc,
		pub: pub,
		now: time.Now,
	}
}

// Register adds every publication and subscription to mb.
func (h *Handler) Register(mb *mqtt.MQTTBuilder) {
	h.l.Info("Registering MQTT handlers...")

	h.RegisterReadingPublish(mb)
	h.RegisterStatePublish(mb)
	h.RegisterStatusPublish(mb)
	h.RegisterCommandSubscribe(mb)

	h.l.Info("MQTT handlers registered successfully")
}

// Wait blocks until every command in flight has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) spawn(fn func()) {
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		fn()
	}()
}
