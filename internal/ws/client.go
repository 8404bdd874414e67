package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"monopoly_server/internal/game"
	"monopoly_server/internal/lobby"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/metrics"
	"monopoly_server/internal/ratelimit"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Router receives decoded traffic from clients. *lobby.Registry implements it.
type Router interface {
	RouteMessage(conn lobby.Conn, raw []byte)
	RemoveConnection(conn lobby.Conn)
}

// Client is one websocket connection. It implements lobby.Conn.
type Client struct {
	id      string
	conn    *websocket.Conn
	router  Router
	limiter ratelimit.Limiter
	log     *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(id string, conn *websocket.Conn, router Router, limiter ratelimit.Limiter) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		router:  router,
		limiter: limiter,
		log:     logger.ForConn(id),
		send:    make(chan []byte, sendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg for the writer. It never blocks; a full queue drops msg.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run starts the writer and blocks in the reader until the connection ends.
func (c *Client) Run() {
	metrics.Connections.Inc()
	defer metrics.Connections.Dec()

	go c.writePump()
	c.readPump()
}

//read
func (c *Client) readPump() {
	defer func() {
		c.router.RemoveConnection(c)
		if f, ok := c.limiter.(interface{ Forget(string) }); ok {
			f.Forget(c.id)
		}
		c.closeSend()
		c.log.Info("connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read error", "error", err)
			}
			return
		}
		if !c.allow() {
			metrics.Errors.WithLabelValues(string(game.CodeRateLimited)).Inc()
			c.Send(lobby.ErrorFrame(game.NewError(game.CodeRateLimited, "too many messages")))
			continue
		}
		c.router.RouteMessage(c, msg)
	}
}

func (c *Client) allow() bool {
	if c.limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := c.limiter.Allow(ctx, c.id)
	if err != nil {
		c.log.Warn("rate limiter error, allowing", "error", err)
	}
	return ok
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
