package websocket

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live socket. It owns the outbox the dispatcher writes to and the
// two pumps moving frames between the socket and the relay.
type Conn struct {
	handle  domain.ConnectionHandle
	ws      *websocket.Conn
	log     *slog.Logger
	options Options

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConn(handle domain.ConnectionHandle, ws *websocket.Conn, log *slog.Logger, options Options) *Conn {
	return &Conn{
		handle:  handle,
		ws:      ws,
		log:     log.With("connection", handle),
		options: options,
		send:    make(chan []byte, options.OutboxSize),
	}
}

func (c *Conn) Handle() domain.ConnectionHandle { return c.handle }

// Send queues a frame without blocking. A full outbox drops the frame.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrOutboxClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.ErrOutboxFull
	}
}

// Close stops the write pump once the queued frames are flushed.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump forwards inbound frames to the relay until the socket fails, then
// reports the disconnect. Invalid frames are dropped, the socket stays open.
func (c *Conn) readPump(ctx context.Context, inbound Inbound) {
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), c.options.WriteTimeout)
		defer cancel()
		if err := inbound.Submit(disconnectCtx, domain.Envelope{Handle: c.handle, Command: domain.Disconnect{}}); err != nil {
			c.log.Error("Disconnect lost", "error", err)
		}
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.options.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.options.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.options.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("Read error", "error", err)
			}
			return
		}

		if err := inbound.Dispatch(ctx, c.handle, data); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Debug("Inbound frame dropped", "error", err)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.options.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
