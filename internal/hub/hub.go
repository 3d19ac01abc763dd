package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vitalwatch/internal/metrics"
)

// Options tune connection handling.
type Options struct {
	ReadLimit    int64
	WriteTimeout time.Duration
}

// Ack is the reply to a well-formed client message.
type Ack struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.ws.WriteJSON(v)
}

// Hub tracks the open WebSocket connections of one server.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*conn
}

// New constructs an empty hub.
func New(opts Options, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 * 1024
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger.With().Str("component", "hub").Logger(),
		metrics: m,
		conns:   make(map[string]*conn),
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) add(c *conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(len(h.conns)))
	}
	return len(h.conns)
}

func (h *Hub) remove(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(len(h.conns)))
	}
	return len(h.conns)
}

func (h *Hub) snapshot() []*conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends v to every connection. Failed sends are logged and skipped.
// It returns the number of connections registered when the call began.
func (h *Hub) Broadcast(v any) int {
	targets := h.snapshot()
	for _, c := range targets {
		if err := c.writeJSON(v, h.opts.WriteTimeout); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", c.id).Msg("broadcast failed")
		}
	}
	return len(targets)
}

// ServeHTTP upgrades the request and runs the echo loop until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket")
		return
	}
	ws.SetReadLimit(h.opts.ReadLimit)

	c := &conn{id: uuid.NewString(), ws: ws}
	total := h.add(c)
	h.logger.Info().Str("conn_id", c.id).Int("connections", total).Msg("websocket connected")

	defer func() {
		remaining := h.remove(c.id)
		_ = ws.Close()
		h.logger.Info().Str("conn_id", c.id).Int("connections", remaining).Msg("websocket disconnected")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", c.id).Msg("websocket read ended")
			}
			return
		}
		if err := c.writeJSON(Reply(data, time.Now().UTC()), h.opts.WriteTimeout); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", c.id).Msg("websocket reply failed")
			return
		}
	}
}

// Reply builds the response to one client message.
func Reply(data []byte, now time.Time) Ack {
	if !json.Valid(data) {
		return Ack{Type: "error", Message: "Invalid JSON format"}
	}
	return Ack{
		Type:      "acknowledgment",
		Message:   "Data received",
		Timestamp: now.Format("2006-01-02T15:04:05.000000"),
	}
}
