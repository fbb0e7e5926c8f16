package api

import (
	"time"

	"github.com/ssargent/protodemo/pkg/codec"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PublishRequest is the body of POST /publish. ID is wider than int32 so
// out-of-range values can be rejected instead of wrapping.
type PublishRequest struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// PublishResponse describes a published message
type PublishResponse struct {
	Topic string `json:"topic"`
	Hex   string `json:"hex"`
	Bytes int    `json:"bytes"`
}

// DecodeResponse is the result of POST /decode
type DecodeResponse struct {
	Record codec.SimpleRequest `json:"record"`
	JSON   string              `json:"json"`
	Hex    string              `json:"hex"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind            string
	Port            int
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}
