package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TopicExchange is the exchange RabbitMQ's MQTT plugin publishes to
const TopicExchange = "amq.topic"

// AMQPClient is a Client speaking AMQP 0-9-1 to RabbitMQ. Topics are
// mapped onto amq.topic routing keys the way the MQTT plugin maps them, so
// it interoperates with MQTT publishers and subscribers on the same broker.
type AMQPClient struct {
	opts     Options
	endpoint Endpoint
	state    *StateFeed
	subs     *subscriptions
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPClient creates a client for endpoint. It does not connect.
func NewAMQPClient(endpoint Endpoint, opts Options) *AMQPClient {
	opts = opts.withDefaults()
	return &AMQPClient{
		opts:     opts,
		endpoint: endpoint,
		state:    NewStateFeed(),
		subs:     newSubscriptions(opts.BufferSize),
		logger:   opts.Logger.With("component", "amqp", "broker", endpoint.String()),
	}
}

// Connect implements Client
func (c *AMQPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.state.Set(StateConnecting)
	c.logger.Info("connecting")

	cfg := amqp.Config{
		Heartbeat: c.opts.KeepAlive,
		Dial:      amqp.DefaultDial(c.opts.ConnectTimeout),
	}
	if c.opts.Username != "" {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: c.opts.Username, Password: c.opts.Password}}
	}

	conn, err := amqp.DialConfig(c.endpoint.URL(), cfg)
	if err != nil {
		c.state.Set(StateError)
		return errors.Wrapf(err, "connect to %s", c.endpoint)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		c.state.Set(StateError)
		return errors.Wrap(err, "open channel")
	}

	c.conn, c.ch = conn, ch
	go c.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))

	c.state.Set(StateConnected)
	c.logger.Info("connected")
	return nil
}

// watchClose moves to StateError when the server or network closes the
// connection. A clean Close closes the channel without an error.
func (c *AMQPClient) watchClose(notify <-chan *amqp.Error) {
	amqpErr, ok := <-notify
	if !ok || amqpErr == nil {
		return
	}
	c.logger.Warn("connection lost", "error", amqpErr)
	c.subs.closeAll()
	c.state.Set(StateError)
}

// Disconnect implements Client. Errors from closing the connection are
// returned to the caller.
func (c *AMQPClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.subs.closeAll()

	if c.conn == nil || c.conn.IsClosed() {
		c.state.Set(StateDisconnected)
		return ErrNotConnected
	}

	err := c.conn.Close()
	c.conn, c.ch = nil, nil
	c.state.Set(StateDisconnected)
	if err != nil {
		return errors.Wrap(err, "close connection")
	}
	c.logger.Info("disconnected")
	return nil
}

// Publish implements Client
func (c *AMQPClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}

	deliveryMode := amqp.Transient
	if c.opts.QoS > 0 {
		deliveryMode = amqp.Persistent
	}
	err := c.ch.PublishWithContext(ctx, TopicExchange, RoutingKey(topic), false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: deliveryMode,
		Body:         payload,
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %q", topic)
	}
	c.logger.Debug("published", "topic", topic, "bytes", len(payload))
	return nil
}

// Subscribe implements Client. Each subscription gets an exclusive,
// auto-deleted queue bound to the topic's routing key.
func (c *AMQPClient) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	out, err := c.subs.add(topic)
	if err != nil {
		return nil, err
	}

	deliveries, err := c.consume(topic)
	if err != nil {
		c.subs.remove(topic)
		return nil, errors.Wrapf(err, "subscribe to %q", topic)
	}

	go func() {
		for d := range deliveries {
			if !c.subs.deliver(topic, d.Body) {
				c.logger.Warn("dropped message", "topic", TopicFromRoutingKey(d.RoutingKey), "bytes", len(d.Body))
			}
		}
	}()

	c.logger.Info("subscribed", "topic", topic, "routing_key", RoutingKey(topic))
	return out, nil
}

func (c *AMQPClient) consume(topic string) (<-chan amqp.Delivery, error) {
	q, err := c.ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, errors.Wrap(err, "declare queue")
	}

	if err := c.ch.QueueBind(q.Name, RoutingKey(topic), TopicExchange, false, nil); err != nil {
		return nil, errors.Wrap(err, "bind queue")
	}

	return c.ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// State implements Client
func (c *AMQPClient) State() ConnectionState {
	return c.state.Current()
}

// States implements Client
func (c *AMQPClient) States() (<-chan ConnectionState, func()) {
	return c.state.Watch()
}
