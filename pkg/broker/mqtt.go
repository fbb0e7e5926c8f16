package broker

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/ksuid"
)

// disconnectQuiesce is how long paho may spend flushing in-flight work on a
// clean disconnect, in milliseconds.
const disconnectQuiesce = 250

// MQTTClient is a Client backed by the Eclipse Paho MQTT library. It
// supports MQTT over TCP, TLS and websockets. Automatic reconnection is
// disabled: a lost connection moves the state to StateError.
type MQTTClient struct {
	opts     Options
	endpoint Endpoint
	client   mqtt.Client
	state    *StateFeed
	subs     *subscriptions
	logger   *slog.Logger
}

// NewMQTTClient creates a client for endpoint. It does not connect.
func NewMQTTClient(endpoint Endpoint, opts Options) *MQTTClient {
	opts = opts.withDefaults()
	if opts.ClientID == "" {
		opts.ClientID = generateClientID()
	}
	if opts.Username == "" && endpoint.User != nil {
		opts.Username = endpoint.User.Username()
		opts.Password, _ = endpoint.User.Password()
	}

	c := &MQTTClient{
		opts:     opts,
		endpoint: endpoint,
		state:    NewStateFeed(),
		subs:     newSubscriptions(opts.BufferSize),
		logger:   opts.Logger.With("component", "mqtt", "broker", endpoint.String()),
	}

	co := mqtt.NewClientOptions().
		AddBroker(endpoint.URL()).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(opts.KeepAlive).
		SetOnConnectHandler(func(mqtt.Client) {
			c.logger.Info("connected", "client_id", opts.ClientID)
			c.state.Set(StateConnected)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.logger.Warn("connection lost", "error", err)
			c.subs.closeAll()
			c.state.Set(StateError)
		})

	c.client = mqtt.NewClient(co)
	return c
}

// Connect implements Client
func (c *MQTTClient) Connect(ctx context.Context) error {
	if c.client.IsConnected() {
		return nil
	}

	c.state.Set(StateConnecting)
	c.logger.Info("connecting")

	if err := waitToken(ctx, c.client.Connect()); err != nil {
		if ctx.Err() != nil {
			// Abort the attempt paho is still making in the background.
			c.client.Disconnect(0)
		}
		c.state.Set(StateError)
		return errors.Wrapf(err, "connect to %s", c.endpoint)
	}
	// The on-connect handler normally runs first; set it here as well so
	// the state is right when Connect returns.
	c.state.Set(StateConnected)
	return nil
}

// Disconnect implements Client. It returns ErrNotConnected when there was
// no live connection to close.
func (c *MQTTClient) Disconnect() error {
	defer c.subs.closeAll()

	if !c.client.IsConnected() {
		c.state.Set(StateDisconnected)
		return ErrNotConnected
	}

	c.client.Disconnect(disconnectQuiesce)
	c.state.Set(StateDisconnected)
	c.logger.Info("disconnected")
	return nil
}

// Publish implements Client
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(ctx, c.client.Publish(topic, c.opts.QoS, c.opts.Retain, payload)); err != nil {
		return errors.Wrapf(err, "publish to %q", topic)
	}
	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
	return nil
}

// Subscribe implements Client
func (c *MQTTClient) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if !c.client.IsConnected() {
		return nil, ErrNotConnected
	}

	ch, err := c.subs.add(topic)
	if err != nil {
		return nil, err
	}

	token := c.client.Subscribe(topic, c.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
		if !c.subs.deliver(m.Topic(), m.Payload()) {
			c.logger.Warn("dropped message", "topic", m.Topic(), "bytes", len(m.Payload()))
		}
	})
	if err := waitToken(ctx, token); err != nil {
		c.subs.remove(topic)
		return nil, errors.Wrapf(err, "subscribe to %q", topic)
	}

	c.logger.Info("subscribed", "topic", topic, "qos", c.opts.QoS)
	return ch, nil
}

// State implements Client
func (c *MQTTClient) State() ConnectionState {
	return c.state.Current()
}

// States implements Client
func (c *MQTTClient) States() (<-chan ConnectionState, func()) {
	return c.state.Watch()
}

// waitToken blocks until the paho operation completes or ctx is done
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generateClientID returns a client id within the 23 byte MQTT 3.1 limit
func generateClientID() string {
	id := ksuid.New().String()
	return "protodemo-" + id[len(id)-10:]
}
