// Package hub fans view updates out to connected websocket clients.
package hub

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"
)

// sendBuffer is how many messages may wait for one client before it is
// dropped as too slow
const sendBuffer = 16

// Client is one connected websocket peer
type Client interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// peer is a registered client and its outgoing queue. The queue is
// drained by the peer's own writer goroutine so a slow client never blocks
// the hub.
type peer struct {
	client Client
	send   chan []byte
}

// Hub owns the set of clients. All mutations happen on the Run goroutine.
type Hub struct {
	register   chan Client
	unregister chan Client
	broadcast  chan []byte
	done       chan struct{}
	peers      map[Client]*peer
	logger     *slog.Logger
}

// New creates a hub. Run must be started before clients register.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan Client),
		unregister: make(chan Client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		peers:      make(map[Client]*peer),
		logger:     logger.With("component", "hub"),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// closes every client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.peers {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			p := &peer{client: client, send: make(chan []byte, sendBuffer)}
			h.peers[client] = p
			go h.writeLoop(p)
			h.logger.Debug("client registered", "clients", len(h.peers))
		case client := <-h.unregister:
			if _, ok := h.peers[client]; ok {
				h.drop(client)
				h.logger.Debug("client unregistered", "clients", len(h.peers))
			}
		case message := <-h.broadcast:
			for client, p := range h.peers {
				select {
				case p.send <- message:
				default:
					h.logger.Warn("dropping slow client", "queued", len(p.send))
					h.drop(client)
				}
			}
		}
	}
}

// drop removes a client, stops its writer and closes it. Run goroutine only.
func (h *Hub) drop(client Client) {
	p := h.peers[client]
	delete(h.peers, client)
	close(p.send)
	client.Close()
}

// writeLoop writes queued messages until the queue is closed. After a
// failed write the client is unregistered and the rest of the queue is
// discarded.
func (h *Hub) writeLoop(p *peer) {
	failed := false
	for message := range p.send {
		if failed {
			continue
		}
		if err := p.client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warn("dropping client", "error", err)
			failed = true
			p.client.Close()
			go h.Unregister(p.client)
		}
	}
}

// Register adds a client. After Run has returned the client is closed
// instead.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a client
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every client. It is a no-op once Run has
// returned.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}
