package telemetry

import "context"

const (
	OpPublishReading = "publishReading"
	OpPublishState   = "publishSensorState"

	TopicReading = "sensors/{serialNumber}/reading"
	TopicState   = "sensors/{serialNumber}/state"
	TopicCommand = "sensors/{serialNumber}/command"
)

// MQTTPublisher is satisfied by the pkg/mqtt client.
type MQTTPublisher interface {
	Publish(operationID string, params map[string]string, payload any) error
}

// MQTTSink publishes to the topics registered under OpPublishReading and OpPublishState.
type MQTTSink struct {
	client MQTTPublisher
}

func NewMQTTSink(client MQTTPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

func (s *MQTTSink) PublishReading(_ context.Context, r Reading) error {
	return s.client.Publish(OpPublishReading, map[string]string{"serialNumber": r.SerialNumber}, r)
}

func (s *MQTTSink) PublishState(_ context.Context, c StateChange) error {
	return s.client.Publish(OpPublishState, map[string]string{"serialNumber": c.SerialNumber}, c)
}
