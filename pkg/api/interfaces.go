// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/hub"
	"github.com/ssargent/protodemo/pkg/session"
)

// SessionService is the demo session the API displays and drives
type SessionService interface {
	Topic() string
	Snapshot() session.View
	Publish(ctx context.Context, name string, id int32) ([]byte, error)
	Disconnect() error
	History(ctx context.Context, limit int) ([]session.HistoryItem, error)
	Decode(payload []byte) (codec.SimpleRequest, error)
}

// ClientRegistry tracks websocket clients receiving view updates
type ClientRegistry interface {
	Register(client hub.Client)
	Unregister(client hub.Client)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves until ctx is done, then shuts down gracefully
	StartServer(ctx context.Context, svc SessionService, clients ClientRegistry, metrics *Metrics, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
