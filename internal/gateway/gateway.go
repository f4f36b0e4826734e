// Package gateway connects participants to quiz sessions over websockets.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/telemetry"
)

// Sessions looks up an active session by ID.
type Sessions interface {
	Get(id string) (*game.Session, error)
}

type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// RateLimit is the sustained number of inbound messages per second per connection.
	RateLimit float64
	Burst     int
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
		RateLimit:      20,
		Burst:          40,
	}
}

// Hub upgrades participant connections and tracks them until they close.
type Hub struct {
	sessions Sessions
	c        Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func NewHub(sessions Sessions, c Config) *Hub {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}

	return &Hub{
		sessions: sessions,
		c:        c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c, "gateway: upgrade failed", "error", err)
		return
	}

	cn := &conn{
		id:      uuid.NewString(),
		hub:     h,
		ws:      ws,
		send:    make(chan []byte, h.c.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.c.RateLimit), h.c.Burst),
	}
	h.register(cn)

	go cn.writePump()
	cn.readPump(context.WithoutCancel(c.Request.Context()))
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	telemetry.Connections.Inc()
	slog.Debug("gateway: connection opened", "conn_id", c.id)
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	telemetry.Connections.Dec()
}

// Close closes every open connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}
