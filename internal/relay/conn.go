package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds tuning for one WebSocket connection.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  2048,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection is one WebSocket client. A connection can join any number of
// rooms; subscriptions arrive as client messages after the upgrade.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	service *Service

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu orders enqueue against shutdownSend: a broadcast that snapshots
	// the room members just before a disconnect must never write to a closed
	// channel.
	sendMu     sync.Mutex
	sendClosed bool
}

func newConnection(sock *websocket.Conn, service *Service) *Connection {
	now := time.Now()
	return &Connection{
		ID:          uuid.New().String(),
		Conn:        sock,
		Send:        make(chan []byte, 256),
		service:     service,
		ConnectedAt: now,
		LastPing:    now,
	}
}

// enqueue hands a frame to the write pump. Returns false when the client is
// too slow to keep up, in which case the caller should drop the connection.
// Frames arriving after shutdownSend are discarded; the connection is
// already being torn down.
func (c *Connection) enqueue(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// shutdownSend closes the send channel exactly once. Safe to call from any
// goroutine; later enqueue calls become no-ops.
func (c *Connection) shutdownSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.service.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.service.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.service.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.service.dropConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.service.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.service.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.service.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.service.handleClientMessage(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.service.config.ReadTimeout))
	}
}
