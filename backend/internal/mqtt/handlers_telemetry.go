package mqtt

import (
	"arksync/backend/internal/telemetry"
	"arksync/backend/pkg/mqtt"
)

//nolint:gochecknoglobals // shared by every sensors/{serialNumber}/... topic
var serialTopicParams = []mqtt.TopicParameter{
	{Name: "serialNumber", Description: "USB serial number of the sensor's FTDI adapter"},
}

// RegisterReadingPublish registers the reading publication.
func (h *Handler) RegisterReadingPublish(mb *mqtt.MQTTBuilder) {
	mb.MustRegisterPublish(telemetry.TopicReading, mqtt.PublicationSpec{
		OperationID:     telemetry.OpPublishReading,
		Summary:         "Publish a sensor reading",
		TopicParameters: serialTopicParams,
		QoS:             mqtt.QoSAtLeastOnce,
	})
}

// RegisterStatePublish registers the retained state publication, so late
// subscribers learn the last known state of every sensor.
func (h *Handler) RegisterStatePublish(mb *mqtt.MQTTBuilder) {
	mb.MustRegisterPublish(telemetry.TopicState, mqtt.PublicationSpec{
		OperationID:     telemetry.OpPublishState,
		Summary:         "Publish sensor state changes",
		TopicParameters: serialTopicParams,
		QoS:             mqtt.QoSAtLeastOnce,
		Retained:        true,
	})
}
