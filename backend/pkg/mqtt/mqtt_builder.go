package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"arksync/backend/pkg/utils"
)

// MQTTBuilder provides a fluent API for registering MQTT publications and subscriptions.
type MQTTBuilder struct {
	client        pahomqtt.Client
	wrappedClient *MQTTClient
	l             *slog.Logger
	operationIDs  map[string]struct{}
	publications  map[string]*PublicationSpec
	subscriptions map[string]*SubscriptionSpec
	willTopic     string
	connected     atomic.Bool

	runConnectOnce atomic.Bool
}

// MQTTClientOptions contains configuration for creating an MQTT client.
type MQTTClientOptions struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// WillTopic, when set, holds a retained "online" while connected and
	// receives "offline" from the broker if the client drops.
	WillTopic string
}

// NewMQTTBuilder creates a new MQTT builder with the given broker configuration.
func NewMQTTBuilder(l *slog.Logger, opts MQTTClientOptions) (*MQTTBuilder, error) {
	l = l.With(slog.String("component", "mqtt-builder"))

	if opts.BrokerURL == "" {
		return nil, errors.New("broker URL is required")
	}

	if opts.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	mb := &MQTTBuilder{
		l:             l,
		operationIDs:  make(map[string]struct{}),
		publications:  make(map[string]*PublicationSpec),
		subscriptions: make(map[string]*SubscriptionSpec),
		willTopic:     opts.WillTopic,
	}

	clientOpts := pahomqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}

	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	// Retry every 5 seconds, max interval 15 seconds
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectTimeout(5 * time.Second)
	clientOpts.SetConnectRetryInterval(5 * time.Second)
	clientOpts.SetMaxReconnectInterval(15 * time.Second)
	clientOpts.SetKeepAlive(30 * time.Second)

	clientOpts.SetOnConnectHandler(mb.onConnect)
	clientOpts.SetConnectionLostHandler(mb.onConnectionLost)
	clientOpts.SetReconnectingHandler(mb.onReconnecting)

	if opts.WillTopic != "" {
		clientOpts.SetWill(opts.WillTopic, "offline", byte(QoSAtLeastOnce), true)
	}

	mb.client = pahomqtt.NewClient(clientOpts)
	mb.wrappedClient = &MQTTClient{
		client:  mb.client,
		builder: mb,
	}

	l.Info("MQTT builder created", slog.String("broker", opts.BrokerURL), slog.String("clientID", opts.ClientID))

	return mb, nil
}

// Client returns the publishing client.
func (mb *MQTTBuilder) Client() *MQTTClient {
	return mb.wrappedClient
}

// Connected reports whether the builder has an established session.
func (mb *MQTTBuilder) Connected() bool {
	return mb.connected.Load()
}

// RegisterPublish registers a publication operation.
func (mb *MQTTBuilder) RegisterPublish(topic string, spec PublicationSpec) error {
	op := operation{id: spec.OperationID, summary: spec.Summary, qos: spec.QoS, params: spec.TopicParameters}
	if err := mb.checkRegistration(topic, op); err != nil {
		return err
	}

	spec.Topic = topic
	mb.operationIDs[spec.OperationID] = struct{}{}
	mb.publications[spec.OperationID] = &spec

	mb.l.Info("Registered MQTT publication", slog.String("operationID", spec.OperationID), slog.String("topic", topic))

	return nil
}

// MustRegisterPublish registers a publication operation and terminates the program if an error occurs.
func (mb *MQTTBuilder) MustRegisterPublish(topic string, spec PublicationSpec) {
	if err := mb.RegisterPublish(topic, spec); err != nil {
		mb.l.Error("Failed to register publication", slog.String("operationID", spec.OperationID), slog.String("topic", topic), utils.ErrAttr(err))
		os.Exit(1)
	}
}

// RegisterSubscribe registers a subscription operation.
func (mb *MQTTBuilder) RegisterSubscribe(topic string, spec SubscriptionSpec) error {
	if spec.Handler == nil {
		return errors.New("invalid subscription spec: handler is required")
	}

	op := operation{id: spec.OperationID, summary: spec.Summary, qos: spec.QoS, params: spec.TopicParameters}
	if err := mb.checkRegistration(topic, op); err != nil {
		return err
	}

	spec.Topic = topic
	spec.TopicMQTT = subscriptionFilter(topic)
	mb.operationIDs[spec.OperationID] = struct{}{}
	mb.subscriptions[spec.OperationID] = &spec

	mb.l.Info("Registered MQTT subscription", slog.String("operationID", spec.OperationID), slog.String("topic", topic))

	return nil
}

// checkRegistration validates an operation before it is stored.
func (mb *MQTTBuilder) checkRegistration(topic string, op operation) error {
	if mb.runConnectOnce.Load() {
		return errors.New("cannot register operations after connecting to MQTT broker")
	}

	if err := validateTopic(topic); err != nil {
		return fmt.Errorf("invalid topic pattern: %w", err)
	}

	if err := op.validate(); err != nil {
		return fmt.Errorf("invalid operation spec: %w", err)
	}

	if _, exists := mb.operationIDs[op.id]; exists {
		return fmt.Errorf("duplicate operationID: %s", op.id)
	}

	if err := validateTopicParameters(topic, op.params); err != nil {
		return fmt.Errorf("invalid topic parameters in operationID %s: %w", op.id, err)
	}

	return nil
}

// MustRegisterSubscribe registers a subscription operation and terminates the program if an error occurs.
func (mb *MQTTBuilder) MustRegisterSubscribe(topic string, spec SubscriptionSpec) {
	if err := mb.RegisterSubscribe(topic, spec); err != nil {
		mb.l.Error("Failed to register subscription", slog.String("operationID", spec.OperationID), slog.String("topic", topic), utils.ErrAttr(err))
		os.Exit(1)
	}
}

// Connect connects to the MQTT broker. It waits until the first connection
// succeeds or ctx is done.
func (mb *MQTTBuilder) Connect(ctx context.Context) error {
	mb.runConnectOnce.Store(true)

	mb.l.Info("Connecting to MQTT broker...")

	token := mb.client.Connect()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			// Stops the retry loop.
			mb.client.Disconnect(0)
			return fmt.Errorf("connect to MQTT broker: %w", ctx.Err())
		case <-ticker.C:
			mb.l.Warn("MQTT has not done an initial connection yet, still waiting...")
		case <-token.Done():
			waiting = false
		}
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	mb.l.Info("Connected to MQTT broker")

	return nil
}

// Disconnect disconnects from the MQTT broker.
func (mb *MQTTBuilder) Disconnect() {
	if !mb.client.IsConnected() {
		return
	}

	mb.l.Info("Disconnecting from MQTT broker...")

	// A clean disconnect suppresses the will, so say it ourselves.
	if mb.willTopic != "" {
		mb.client.Publish(mb.willTopic, byte(QoSAtLeastOnce), true, "offline").WaitTimeout(PublishTimeout)
	}

	mb.client.Disconnect(250) // 250ms grace period
	mb.connected.Store(false)
	mb.l.Info("Disconnected from MQTT broker")
}

// onConnect is called when the client successfully connects or reconnects to the broker.
func (mb *MQTTBuilder) onConnect(client pahomqtt.Client) {
	mb.l.Info("Connected to MQTT broker, subscribing to topics", slog.Int("subscriptionCount", len(mb.subscriptions)))
	mb.connected.Store(true)

	for _, spec := range mb.subscriptions {
		token := client.Subscribe(spec.TopicMQTT, byte(spec.QoS), spec.Handler)
		token.Wait()

		if err := token.Error(); err != nil {
			mb.l.Error("Failed to subscribe", slog.String("topic", spec.TopicMQTT), slog.String("operationID", spec.OperationID), utils.ErrAttr(err))
			continue
		}

		mb.l.Info("Subscribed", slog.String("topic", spec.TopicMQTT), slog.String("operationID", spec.OperationID))
	}

	if mb.willTopic != "" {
		// Runs on the paho callback goroutine, so do not wait for the ack.
		client.Publish(mb.willTopic, byte(QoSAtLeastOnce), true, "online")
	}
}

func (mb *MQTTBuilder) onConnectionLost(_ pahomqtt.Client, err error) {
	mb.l.Warn("Connection to MQTT broker lost", utils.ErrAttr(err))
	mb.connected.Store(false)
}

func (mb *MQTTBuilder) onReconnecting(_ pahomqtt.Client, opts *pahomqtt.ClientOptions) {
	mb.l.Info("Reconnecting to MQTT broker", slog.String("broker", opts.Servers[0].String()))
}
