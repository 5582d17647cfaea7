package types

import (
	"time"

	"arksync/backend/internal/sensor"
	"arksync/backend/internal/store"
	"arksync/backend/pkg/router"
)

// HealthResponse reports each dependency. Redis is omitted when it is not configured.
type HealthResponse struct {
	Database bool  `json:"database"`
	MQTT     bool  `json:"mqtt"`
	Fleet    bool  `json:"fleet"`
	Redis    *bool `json:"redis,omitempty"`
}

// SensorResponse is the public view of a sensor.
type SensorResponse struct {
	SerialNumber string       `json:"serialNumber"`
	Name         string       `json:"name,omitempty"`
	DisplayName  string       `json:"displayName"`
	Kind         sensor.Kind  `json:"kind"`
	Unit         string       `json:"unit"`
	Firmware     float64      `json:"firmware"`
	State        sensor.State `json:"state"`
	Bus          string       `json:"bus,omitempty"`
	LastActivity time.Time    `json:"lastActivity"`
}

func NewSensorResponse(s sensor.Sensor) SensorResponse {
	resp := SensorResponse{
		SerialNumber: s.SerialNumber,
		Name:         s.Name,
		DisplayName:  s.DisplayName(),
		Kind:         s.Kind,
		Unit:         s.Kind.Unit(),
		Firmware:     s.Firmware,
		State:        s.State,
		LastActivity: s.LastActivity,
	}

	if s.Bus != nil {
		resp.Bus = s.Bus.String()
	}

	return resp
}

type ListSensorsResponse struct {
	Sensors []SensorResponse `json:"sensors"`
}

type RenameSensorRequest struct {
	// Empty clears the name.
	Name string `json:"name"`
}

type StatusResponse struct {
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
}

type CalibrationResponse struct {
	SerialNumber      string `json:"serialNumber"`
	CalibrationPoints uint8  `json:"calibrationPoints"`
}

type RawCommandRequest struct {
	Command string `json:"command"`
}

type RawCommandResponse struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

type ListSightingsResponse struct {
	Sightings []store.Sighting `json:"sightings"`
}

type ListRoutesResponse struct {
	Routes []router.RouteInfo `json:"routes"`
}
