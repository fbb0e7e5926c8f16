package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ssargent/protodemo/pkg/broker"
	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/hub"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Server holds the API server state
type Server struct {
	session   SessionService
	clients   ClientRegistry
	metrics   *Metrics
	config    ServerConfig
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	startedAt time.Time
}

// NewServer creates a new API server. clients may be nil, in which case
// /ws is not served.
func NewServer(svc SessionService, clients ClientRegistry, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		session: svc,
		clients: clients,
		metrics: metrics,
		config:  config.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:    slog.Default().With("component", "api"),
		startedAt: time.Now(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, HealthResponse{
		Status: "healthy",
		State:  string(s.session.Snapshot().State),
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	view := s.session.Snapshot()
	sendSuccess(w, map[string]interface{}{
		"state":    view.State,
		"topic":    view.Topic,
		"received": view.Received,
	})
}

func (s *Server) handleLastMessage(w http.ResponseWriter, r *http.Request) {
	view := s.session.Snapshot()
	if view.Received == 0 {
		sendError(w, "No message received yet", http.StatusNotFound)
		return
	}
	sendSuccess(w, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	items, err := s.session.History(r.Context(), limit)
	if err != nil {
		s.logger.Error("history failed", "error", err)
		sendError(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	sendSuccess(w, items)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if req.ID < math.MinInt32 || req.ID > math.MaxInt32 {
		sendError(w, "id must fit in a signed 32-bit integer", http.StatusBadRequest)
		return
	}

	payload, err := s.session.Publish(r.Context(), req.Name, int32(req.ID))
	if err != nil {
		sendError(w, err.Error(), brokerErrorStatus(err))
		return
	}
	sendSuccess(w, PublishResponse{
		Topic: s.session.Topic(),
		Hex:   hex.EncodeToString(payload),
		Bytes: len(payload),
	})
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	payload := body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		payload, err = hex.DecodeString(strings.Join(strings.Fields(string(body)), ""))
		if err != nil {
			sendError(w, "Body is not valid hex", http.StatusBadRequest)
			return
		}
	}

	record, err := s.session.Decode(payload)
	if err != nil {
		if errors.Is(err, codec.ErrMalformedInput) {
			sendError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	encoded, _ := json.Marshal(record)
	sendSuccess(w, DecodeResponse{
		Record: record,
		JSON:   string(encoded),
		Hex:    hex.EncodeToString(payload),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		sendError(w, err.Error(), brokerErrorStatus(err))
		return
	}
	sendSuccess(w, map[string]string{"state": string(broker.StateDisconnected)})
}

// handleWebsocket streams every view update to the peer, starting with the
// current view. Messages from the peer are read and discarded.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := hub.NewWebsocketClient(conn)

	// Register before reading the snapshot so no update falls between them.
	s.clients.Register(client)
	defer s.clients.Unregister(client)

	initial, _ := json.Marshal(s.session.Snapshot())
	if err := client.WriteMessage(websocket.TextMessage, initial); err != nil {
		return
	}

	for {
		if _, _, err := client.ReadMessage(); err != nil {
			return
		}
	}
}

// isBodyTooLarge reports whether err came from the limitBody cap
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func brokerErrorStatus(err error) int {
	switch {
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, broker.ErrInvalidTopic):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
