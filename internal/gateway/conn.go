package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/telemetry"
)

var (
	errClosed = fmt.Errorf("gateway: connection closed")
	errSlow   = fmt.Errorf("gateway: send buffer full")
)

// conn is one participant connection. It is the session's outbound channel for that
// participant once enrolled.
type conn struct {
	id      string
	hub     *Hub
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	once    sync.Once

	// Read and written only by the read pump.
	session  *game.Session
	identity domain.Enrollment
}

// Send queues m for the write pump. It never blocks: a connection that cannot keep up is closed.
func (c *conn) Send(ctx context.Context, m domain.Message) error {
	b, err := encode(m)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		slog.WarnContext(ctx, "gateway: send buffer full, closing connection", "conn_id", c.id)
		c.shutdown()
		return errSlow
	}
}

// closeAfterFlush asks the write pump to close the connection once everything queued so far
// has been written.
func (c *conn) closeAfterFlush() {
	select {
	case c.send <- nil:
	default:
		c.shutdown()
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		c.hub.unregister(c)
	})
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.c.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.c.WriteTimeout))
			if b == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "enrollment rejected"))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				slog.Debug("gateway: write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.c.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("gateway: ping failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}

func (c *conn) readPump(ctx context.Context) {
	defer func() {
		if c.session != nil {
			c.session.Disconnect(c.identity.Username, c)
		}
		c.shutdown()
		slog.DebugContext(ctx, "gateway: connection closed", "conn_id", c.id)
	}()

	c.ws.SetReadLimit(c.hub.c.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.c.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.c.ReadTimeout))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "gateway: unexpected close", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.c.ReadTimeout))

		if !c.limiter.Allow() {
			telemetry.InboundDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		in, err := decode(b)
		if err != nil {
			telemetry.InboundDropped.WithLabelValues("malformed").Inc()
			c.reply(ctx, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("malformed message"), errors.WithCause(err)))
			continue
		}

		c.dispatch(ctx, in)
	}
}

func (c *conn) dispatch(ctx context.Context, in domain.Inbound) {
	switch m := in.(type) {
	case domain.Enrollment:
		c.enroll(ctx, m)
	case domain.Answer:
		c.answer(ctx, m)
	}
}

func (c *conn) enroll(ctx context.Context, e domain.Enrollment) {
	if c.session != nil {
		c.reply(ctx, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("already enrolled as %s", c.identity.Username)))
		return
	}

	s, err := c.hub.sessions.Get(e.SessionID)
	if err != nil {
		c.reply(ctx, err)
		c.closeAfterFlush()
		return
	}

	if err := s.AddPlayer(ctx, e, c); err != nil {
		slog.InfoContext(ctx, "gateway: enrollment rejected",
			"conn_id", c.id,
			"session_id", e.SessionID,
			"error", err,
		)
		c.closeAfterFlush()
		return
	}

	c.session = s
	c.identity = e
}

func (c *conn) answer(ctx context.Context, a domain.Answer) {
	id := c.identity
	if c.session == nil || a.SessionID != id.SessionID || a.TeamID != id.TeamID || a.Username != id.Username {
		telemetry.InboundDropped.WithLabelValues("unbound").Inc()
		slog.DebugContext(ctx, "gateway: answer does not match enrollment", "conn_id", c.id, "username", a.Username)
		return
	}

	c.session.SubmitAnswer(ctx, a)
}

func (c *conn) reply(ctx context.Context, err error) {
	_ = c.Send(ctx, domain.StatusMessage{Success: false, Message: errors.Convert(err).Message})
}
