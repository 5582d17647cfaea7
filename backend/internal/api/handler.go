// Package api exposes the fleet over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"arksync/backend/internal/fleet"
	"arksync/backend/internal/sensor"
	"arksync/backend/internal/services"
	sharedapi "arksync/backend/internal/shared/api"
	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/router"
	"arksync/backend/pkg/serialport"
)

const (
	CoreGroup    = "Core"
	SensorsGroup = "Sensors"
)

type Handler struct {
	l      *slog.Logger
	svc    *services.Services
	stream http.Handler
}

// NewHandler creates the API handler. stream serves the websocket feed.
func NewHandler(l *slog.Logger, svc *services.Services, stream http.Handler) *Handler {
	return &Handler{
		l:      l.With(slog.String("component", "api")),
		svc:    svc,
		stream: stream,
	}
}

// httpError maps service and device errors to responses. Unknown errors stay
// internal.
func httpError(err error) error {
	switch {
	case errors.Is(err, services.ErrSensorNotFound):
		return sharedapi.NewError(http.StatusNotFound, "Sensor not found")
	case errors.Is(err, services.ErrInvalidName):
		return sharedapi.NewValidationError(map[string]string{"name": err.Error()})
	case errors.Is(err, services.ErrInvalidCommand):
		return sharedapi.NewValidationError(map[string]string{"command": err.Error()})
	case errors.Is(err, services.ErrNoConnection), errors.Is(err, sensor.ErrHandleClosed),
		errors.Is(err, serialport.ErrDisconnected), errors.Is(err, serialport.ErrClosed):
		return sharedapi.NewError(http.StatusConflict, "Sensor connection unavailable")
	case errors.Is(err, serialport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return sharedapi.NewError(http.StatusGatewayTimeout, "Sensor did not answer in time")
	case errors.Is(err, ezo.ErrUnexpectedResponse):
		return sharedapi.NewError(http.StatusBadGateway, "Sensor sent an unexpected response")
	case errors.Is(err, fleet.ErrStopped):
		return sharedapi.NewError(http.StatusServiceUnavailable, "Fleet is shutting down")
	default:
		return err
	}
}

// Mount registers every route under /api with the request ID, logger and
// recovery middlewares.
func (h *Handler) Mount(rb *router.RouteBuilder) {
	mw := sharedapi.NewMiddlewareHandler(h.l)

	rb.Route("/api", func(rb *router.RouteBuilder) {
		rb.Use(mw.RequestIDMiddleware)
		rb.Use(mw.LoggerMiddleware)
		rb.Use(mw.RecoveryMiddleware)

		h.RegisterPing("/ping", rb)
		h.RegisterHealth("/health", rb)
		h.RegisterRoutes("/routes", rb)
		h.RegisterStream("/stream", rb)
		h.RegisterListSightings("/sightings", rb)

		rb.Route("/sensors", func(rb *router.RouteBuilder) {
			h.RegisterListSensors("/", rb)
			h.RegisterGetSensor("/{serialNumber}", rb)
			h.RegisterRenameSensor("/{serialNumber}/name", rb)
			h.RegisterGetSensorStatus("/{serialNumber}/status", rb)
			h.RegisterGetSensorCalibration("/{serialNumber}/calibration", rb)
			h.RegisterSleepSensor("/{serialNumber}/sleep", rb)
			h.RegisterRawCommand("/{serialNumber}/raw", rb)
		})
	})
}
