// Package broker adapts third-party message broker clients to the small
// surface the demo needs: connect, disconnect, publish raw bytes, subscribe
// to one topic, and observe the connection state.
package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

// ConnectionState is the coarse state shown to users
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection
	ErrNotConnected = errors.New("broker: not connected")
	// ErrInvalidTopic is returned for empty topics and topics carrying wildcards
	ErrInvalidTopic = errors.New("broker: invalid topic")
	// ErrAlreadySubscribed is returned when a topic is subscribed twice
	ErrAlreadySubscribed = errors.New("broker: already subscribed")
	// ErrUnsupportedScheme is returned for broker URLs no client understands
	ErrUnsupportedScheme = errors.New("broker: unsupported scheme")
)

// Message is a payload delivered on a topic
type Message struct {
	Topic   string
	Payload []byte
}

// Client is a connection to a message broker.
type Client interface {
	// Connect opens the connection and blocks until it is established,
	// fails, or ctx is done.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Subscription channels are closed.
	Disconnect() error

	// Publish sends payload as-is to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe starts delivery of messages published to topic. The
	// returned channel is closed when the connection ends.
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)

	// State returns the current connection state.
	State() ConnectionState

	// States returns a channel receiving the current state followed by
	// every later change, and a function that stops the feed.
	States() (<-chan ConnectionState, func())
}

// Options configures a Client
type Options struct {
	URL            string
	WSPath         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	BufferSize     int
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.WSPath == "" {
		o.WSPath = DefaultWSPath
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
