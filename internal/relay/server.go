package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Service terminates WebSocket connections and routes client messages to the
// room manager. Every join gets an immediate snapshot so a client that
// reconnects mid-round renders current state without waiting for the next
// poll tick.
type Service struct {
	rooms    *Manager
	provider SnapshotProvider
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewService(rooms *Manager, provider SnapshotProvider, config ConnectionConfig) *Service {
	return &Service{
		rooms:    rooms,
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleWS upgrades the HTTP request and starts the connection pumps.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(sock, s)
	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
}

func (s *Service) handleClientMessage(conn *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, "malformed message")
		return
	}

	verb, kind, err := parseClientEvent(msg.Event)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}
	key := RoomKey{Kind: kind, ID: msg.ID}

	switch verb {
	case verbSubscribe:
		s.rooms.Subscribe(conn, key)
		s.pushSnapshot(conn, key)
	case verbUnsubscribe:
		s.rooms.Unsubscribe(conn, key)
	case verbRequestSnapshot:
		s.pushSnapshot(conn, key)
	}
}

// pushSnapshot sends a fresh snapshot to a single connection.
func (s *Service) pushSnapshot(conn *Connection, key RoomKey) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := s.provider.Snapshot(ctx, key.Kind, key.ID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("kind", string(key.Kind)).
			Str("room_id", key.ID.String()).
			Msg("join snapshot failed")
		s.sendError(conn, "snapshot unavailable")
		return
	}
	if snap.Session != nil {
		conn.enqueue(encodeFrame(sessionUpdateEvent(key.Kind), snap.Session))
	}
	if snap.Attempts != nil {
		conn.enqueue(encodeFrame(attemptsUpdateEvent(key.Kind), snap.Attempts))
	}
}

func (s *Service) sendError(conn *Connection, message string) {
	payload, err := json.Marshal(errorPayload{Message: message})
	if err != nil {
		return
	}
	conn.enqueue(encodeFrame("error", payload))
}

func (s *Service) dropConnection(conn *Connection) {
	s.rooms.DropConnection(conn)
	conn.shutdownSend()
	log.Info().Str("connection_id", conn.ID).Msg("connection closed")
}

// HandleStats reports active rooms and connections as JSON.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.rooms.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write relay stats")
	}
}
