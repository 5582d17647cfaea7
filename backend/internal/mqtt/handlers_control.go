package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"arksync/backend/internal/mqtt/types"
	"arksync/backend/internal/services"
	"arksync/backend/internal/telemetry"
	"arksync/backend/pkg/mqtt"
	"arksync/backend/pkg/pathspec"
	"arksync/backend/pkg/utils"
)

var errUnknownCommand = errors.New("unknown command")

func (h *Handler) RegisterStatusPublish(mb *mqtt.MQTTBuilder) {
	mb.MustRegisterPublish(TopicStatus, mqtt.PublicationSpec{
		OperationID:     OpPublishStatus,
		Summary:         "Publish the answer to a status command",
		TopicParameters: serialTopicParams,
		QoS:             mqtt.QoSAtLeastOnce,
	})
}

// RegisterCommandSubscribe registers the command subscription. Supported
// commands are "sleep" and "status".
func (h *Handler) RegisterCommandSubscribe(mb *mqtt.MQTTBuilder) {
	mb.MustRegisterSubscribe(telemetry.TopicCommand, mqtt.SubscriptionSpec{
		OperationID:     OpSubscribeCommand,
		Summary:         "Receive commands for a sensor",
		TopicParameters: serialTopicParams,
		Handler:         h.handleCommand,
		QoS:             mqtt.QoSAtLeastOnce,
	})
}

func (h *Handler) handleCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic, payload := msg.Topic(), msg.Payload()

	h.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), services.CommandTimeout)
		defer cancel()

		if err := h.processCommand(ctx, topic, payload); err != nil {
			h.l.Warn("command failed", slog.String("topic", topic), utils.ErrAttr(err))
		}
	})
}

func (h *Handler) processCommand(ctx context.Context, topic string, payload []byte) error {
	params, ok := pathspec.Match(telemetry.TopicCommand, topic)
	if !ok {
		return fmt.Errorf("unexpected topic %s", topic)
	}

	serial := params["serialNumber"]

	cmd, err := utils.FromJSON[types.Command](payload)
	if err != nil {
		return fmt.Errorf("failed to decode command: %w", err)
	}

	h.l.Info("received sensor command", slog.String("serialNumber", serial), slog.String("command", cmd.Command))

	switch cmd.Command {
	case types.CommandSleep:
		return h.svc.Sensors.Sleep(ctx, serial)
	case types.CommandStatus:
		reply := types.StatusReply{SerialNumber: serial}

		code, err := h.svc.Sensors.Status(ctx, serial)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Status = code.String()
		}

		reply.Timestamp = h.now()

		return h.pub.Publish(OpPublishStatus, map[string]string{"serialNumber": serial}, reply)
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Command)
	}
}
