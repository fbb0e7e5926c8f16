// Package brokertest provides an in-memory broker.Client for tests.
package brokertest

import (
	"context"
	"sync"

	"github.com/ssargent/protodemo/pkg/broker"
)

// FakeClient is an in-memory broker.Client. Published messages are
// recorded and, when the topic is subscribed, delivered back like a broker
// echoing to its own subscriber.
type FakeClient struct {
	ConnectErr    error
	PublishErr    error
	SubscribeErr  error
	DisconnectErr error

	state *broker.StateFeed

	mu        sync.Mutex
	connected bool
	published []broker.Message
	subs      map[string]chan broker.Message
}

// NewFakeClient creates a disconnected fake client
func NewFakeClient() *FakeClient {
	return &FakeClient{
		state: broker.NewStateFeed(),
		subs:  make(map[string]chan broker.Message),
	}
}

// Connect implements broker.Client
func (f *FakeClient) Connect(ctx context.Context) error {
	f.state.Set(broker.StateConnecting)
	if f.ConnectErr != nil {
		f.state.Set(broker.StateError)
		return f.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		f.state.Set(broker.StateError)
		return err
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	f.state.Set(broker.StateConnected)
	return nil
}

// Disconnect implements broker.Client
func (f *FakeClient) Disconnect() error {
	f.mu.Lock()
	wasConnected := f.connected
	f.connected = false
	for topic, ch := range f.subs {
		delete(f.subs, topic)
		close(ch)
	}
	f.mu.Unlock()

	f.state.Set(broker.StateDisconnected)
	if f.DisconnectErr != nil {
		return f.DisconnectErr
	}
	if !wasConnected {
		return broker.ErrNotConnected
	}
	return nil
}

// Publish implements broker.Client
func (f *FakeClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := broker.ValidateTopic(topic); err != nil {
		return err
	}
	if f.PublishErr != nil {
		return f.PublishErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return broker.ErrNotConnected
	}
	msg := broker.Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	f.published = append(f.published, msg)
	if ch, ok := f.subs[topic]; ok {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe implements broker.Client
func (f *FakeClient) Subscribe(ctx context.Context, topic string) (<-chan broker.Message, error) {
	if err := broker.ValidateTopic(topic); err != nil {
		return nil, err
	}
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil, broker.ErrNotConnected
	}
	if _, ok := f.subs[topic]; ok {
		return nil, broker.ErrAlreadySubscribed
	}
	ch := make(chan broker.Message, 16)
	f.subs[topic] = ch
	return ch, nil
}

// State implements broker.Client
func (f *FakeClient) State() broker.ConnectionState {
	return f.state.Current()
}

// States implements broker.Client
func (f *FakeClient) States() (<-chan broker.ConnectionState, func()) {
	return f.state.Watch()
}

// Deliver injects a message as if another producer had published it. It
// reports false when the topic is not subscribed.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.subs[topic]
	if !ok {
		return false
	}
	ch <- broker.Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	return true
}

// SetState forces a connection state, for example to simulate a lost
// connection.
func (f *FakeClient) SetState(state broker.ConnectionState) {
	f.state.Set(state)
}

// Published returns a copy of every message published so far
func (f *FakeClient) Published() []broker.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Message(nil), f.published...)
}

// Subscribed reports whether topic has an active subscription
func (f *FakeClient) Subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[topic]
	return ok
}

// Factory returns a broker.Factory handing out this client
func (f *FakeClient) Factory() broker.Factory {
	return factory{client: f}
}

type factory struct {
	client *FakeClient
}

func (f factory) CreateClient(broker.Options) (broker.Client, error) {
	return f.client, nil
}
