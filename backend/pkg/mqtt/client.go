package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"arksync/backend/pkg/pathspec"
	"arksync/backend/pkg/utils"
)

// PublishTimeout bounds how long a publish waits for the broker.
const PublishTimeout = 5 * time.Second

type MQTTClient struct {
	client  pahomqtt.Client
	builder *MQTTBuilder
}

// Publish sends payload as JSON using the publication spec identified by
// operationID. params fill the {param} segments of the registered topic.
func (c *MQTTClient) Publish(operationID string, params map[string]string, payload any) error {
	pub, ok := c.builder.publications[operationID]
	if !ok {
		return fmt.Errorf("publication not found for operationID %s", operationID)
	}

	topic, err := pathspec.Expand(pub.Topic, params)
	if err != nil {
		return fmt.Errorf("failed to build topic for %s: %w", operationID, err)
	}

	bytes, err := utils.ToJSON(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}

	token := c.client.Publish(topic, byte(pub.QoS), pub.Retained, bytes)
	if !token.WaitTimeout(PublishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	return nil
}

// IsConnected reports whether the connection to the broker is currently up.
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}
