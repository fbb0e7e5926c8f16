// Package session connects a broker client to the codec and keeps the view
// of the demo: connection state, the last message and its decoded record.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssargent/protodemo/pkg/broker"
	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/storage"
)

// Recorder receives session events, typically for metrics
type Recorder interface {
	MessageReceived(bytes int)
	DecodeFailed()
	Published(success bool)
	StateChanged(state broker.ConnectionState)
	EntriesStored(count int)
}

// Broadcaster pushes serialized views to listeners
type Broadcaster interface {
	Broadcast(message []byte)
}

// Option configures a Service
type Option func(*Service)

// WithRecorder sets the event recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithBroadcaster sets where view updates are pushed
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is one demo session over a single topic.
type Service struct {
	client      broker.Client
	store       storage.MessageStore
	codec       *codec.SimpleRequestCodec
	topic       string
	recorder    Recorder
	broadcaster Broadcaster
	logger      *slog.Logger

	mu   sync.RWMutex
	view View

	wg sync.WaitGroup
}

// New creates a session. A nil store keeps no history.
func New(client broker.Client, store storage.MessageStore, topic string, opts ...Option) *Service {
	if store == nil {
		store = storage.NewNopStore()
	}
	s := &Service{
		client:   client,
		store:    store,
		codec:    codec.NewSimpleRequestCodec(),
		topic:    topic,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "topic", topic)
	s.view = View{State: client.State(), Topic: topic}
	return s
}

// Topic returns the subscribed topic
func (s *Service) Topic() string {
	return s.topic
}

// Start connects, subscribes to the topic and consumes messages in the
// background until ctx is done or the subscription ends.
func (s *Service) Start(ctx context.Context) error {
	if err := broker.ValidateTopic(s.topic); err != nil {
		return err
	}

	states, stop := s.client.States()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		s.watchStates(ctx, states)
	}()

	s.logger.Info("connecting")
	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	messages, err := s.client.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(ctx, messages)
	}()
	return nil
}

// Wait blocks until the background goroutines started by Start return
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) watchStates(ctx context.Context, states <-chan broker.ConnectionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			s.setState(state)
		}
	}
}

func (s *Service) setState(state broker.ConnectionState) {
	s.mu.Lock()
	if s.view.State == state {
		s.mu.Unlock()
		return
	}
	s.view.State = state
	view := s.view.clone()
	s.mu.Unlock()

	s.logger.Info("connection state changed", "state", state)
	s.recorder.StateChanged(state)
	s.broadcast(view)
}

func (s *Service) consume(ctx context.Context, messages <-chan broker.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.logger.Info("subscription closed")
				return
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Service) handle(ctx context.Context, msg broker.Message) {
	now := time.Now()
	s.recorder.MessageReceived(len(msg.Payload))

	record, decodeErr := s.codec.Decode(msg.Payload)

	s.mu.Lock()
	s.view.Received++
	s.view.LastRaw = RawString(msg.Topic, msg.Payload)
	s.view.LastHex = HexString(msg.Payload)
	s.view.ReceivedAt = &now
	if decodeErr != nil {
		s.view.Decoded = nil
		s.view.DecodedJSON = ""
		s.view.DecodeError = decodeErr.Error()
	} else {
		encoded, _ := json.Marshal(record)
		s.view.Decoded = &record
		s.view.DecodedJSON = string(encoded)
		s.view.DecodeError = ""
	}
	view := s.view.clone()
	s.mu.Unlock()

	if decodeErr != nil {
		s.recorder.DecodeFailed()
		s.logger.Warn("failed to decode message", "hex", view.LastHex, "error", decodeErr)
	} else {
		s.logger.Debug("message received", "name", record.Name, "id", record.ID)
	}

	if _, err := s.store.Append(ctx, msg.Topic, msg.Payload); err != nil {
		s.logger.Warn("failed to store message", "error", err)
	} else if count, err := s.store.Count(ctx); err == nil {
		s.recorder.EntriesStored(count)
	}

	s.broadcast(view)
}

func (s *Service) broadcast(view View) {
	if s.broadcaster == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Error("failed to encode view", "error", err)
		return
	}
	s.broadcaster.Broadcast(data)
}

// Publish encodes {name, id} and publishes the bytes to the topic. It
// returns the encoded payload.
func (s *Service) Publish(ctx context.Context, name string, id int32) ([]byte, error) {
	payload := s.codec.Encode(codec.SimpleRequest{Name: name, ID: id})
	if err := s.client.Publish(ctx, s.topic, payload); err != nil {
		s.recorder.Published(false)
		return nil, fmt.Errorf("publish: %w", err)
	}
	s.recorder.Published(true)
	s.logger.Info("published", "name", name, "id", id, "bytes", len(payload))
	return payload, nil
}

// Disconnect closes the broker connection and returns its error, if any.
func (s *Service) Disconnect() error {
	err := s.client.Disconnect()
	if err != nil {
		s.logger.Warn("disconnect failed", "error", err)
		return err
	}
	s.logger.Info("disconnected")
	return nil
}

// Snapshot returns a copy of the current view
func (s *Service) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.clone()
}

// Decode decodes payload with the session codec
func (s *Service) Decode(payload []byte) (codec.SimpleRequest, error) {
	return s.codec.Decode(payload)
}

// History returns up to limit stored messages, newest first, each decoded.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryItem, error) {
	entries, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return DecodeEntries(s.codec, entries), nil
}

// DecodeEntries decodes stored entries into history items
func DecodeEntries(c *codec.SimpleRequestCodec, entries []storage.Entry) []HistoryItem {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		item := HistoryItem{
			ID:         e.ID.String(),
			Topic:      e.Topic,
			ReceivedAt: e.ReceivedAt,
			Hex:        HexString(e.Payload),
		}
		if record, err := c.Decode(e.Payload); err != nil {
			item.DecodeError = err.Error()
		} else {
			item.Decoded = &record
		}
		items = append(items, item)
	}
	return items
}

type nopRecorder struct{}

func (nopRecorder) MessageReceived(int)                 {}
func (nopRecorder) DecodeFailed()                       {}
func (nopRecorder) Published(bool)                      {}
func (nopRecorder) StateChanged(broker.ConnectionState) {}
func (nopRecorder) EntriesStored(int)                   {}
