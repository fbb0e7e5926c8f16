// Package storage keeps a bounded history of received messages.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Storage backends accepted by Open
const (
	BackendPebble = "pebble"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// DefaultRedisKey is the list holding entries in Redis
const DefaultRedisKey = "protodemo:messages"

// MessageStore records received messages, newest last
type MessageStore interface {
	// Append stores a message and returns the stored entry
	Append(ctx context.Context, topic string, payload []byte) (Entry, error)

	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Count returns the number of stored entries
	Count(ctx context.Context) (int, error)

	// Close releases the store
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend    string
	DataDir    string
	RedisURL   string
	RedisKey   string
	MaxEntries int
}

// Open creates the store selected by opts.Backend
func Open(ctx context.Context, opts Options) (MessageStore, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendPebble, "":
		if opts.DataDir == "" {
			return nil, errors.New("storage: data dir is required for the pebble backend")
		}
		return NewPebbleStore(opts.DataDir, opts.MaxEntries)
	case BackendRedis:
		key := opts.RedisKey
		if key == "" {
			key = DefaultRedisKey
		}
		return NewRedisStore(ctx, opts.RedisURL, key, opts.MaxEntries)
	case BackendNone:
		return NewNopStore(), nil
	default:
		return nil, errors.Newf("storage: unknown backend %q", opts.Backend)
	}
}

// Factory opens message stores
type Factory interface {
	// OpenStore opens the store described by opts
	OpenStore(ctx context.Context, opts Options) (MessageStore, error)
}

// DefaultFactory is the default implementation of Factory
type DefaultFactory struct{}

// NewFactory creates a new store factory
func NewFactory() Factory {
	return &DefaultFactory{}
}

// OpenStore opens a store with Open
func (f *DefaultFactory) OpenStore(ctx context.Context, opts Options) (MessageStore, error) {
	return Open(ctx, opts)
}

// NopStore discards messages
type NopStore struct {
	ids *idSource
}

// NewNopStore creates a store that keeps nothing
func NewNopStore() *NopStore {
	return &NopStore{ids: &idSource{}}
}

// Append returns the entry without storing it
func (s *NopStore) Append(_ context.Context, topic string, payload []byte) (Entry, error) {
	now := time.Now()
	id, err := s.ids.next(now)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, Topic: topic, Payload: payload, ReceivedAt: now}, nil
}

// Recent always returns no entries
func (s *NopStore) Recent(context.Context, int) ([]Entry, error) {
	return nil, nil
}

// Count always returns zero
func (s *NopStore) Count(context.Context) (int, error) {
	return 0, nil
}

// Close does nothing
func (s *NopStore) Close() error {
	return nil
}
