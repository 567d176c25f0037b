package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chatflow/internal/config"
	"chatflow/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected   = errors.New("websocket is not connected")
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Conn is one dialed socket with its read and write pumps.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	cfg  config.WebSocketConfig

	// released is set when the owner closed the socket on purpose; the
	// read pump then exits without reporting a disconnect.
	released atomic.Bool
}

func newConn(ws *websocket.Conn, cfg config.WebSocketConfig) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
		cfg:  cfg,
	}
}

func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case <-c.done:
		return ErrNotConnected
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close releases the socket without triggering the disconnect callback.
func (c *Conn) Close() {
	c.released.Store(true)
	c.shutdown(websocket.CloseNormalClosure, "client closed")
}

func (c *Conn) shutdown(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *Conn) ReadPump(onFrame func([]byte), onClose func(error)) {
	defer c.shutdown(websocket.CloseGoingAway, "read loop ended")

	// Set read deadline and pong handler for connection health
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.released.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("WebSocket error: %v", err)
			} else {
				logger.Info("WebSocket disconnected: %v", err)
			}
			if onClose != nil {
				onClose(err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			logger.Debug("Ignoring non-text frame of type %d", msgType)
			continue
		}
		if onFrame != nil {
			onFrame(data)
		}
	}
}

func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				c.shutdown(websocket.CloseGoingAway, "write failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
