package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"chatflow/internal/config"
	"chatflow/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client owns the process-wide live connection. At most one conversation
// is connected at a time; Connect closes the previous socket first.
type Client struct {
	cfg    config.WebSocketConfig
	dialer *websocket.Dialer

	mutex          sync.Mutex
	conn           *Conn
	conversationID string
}

func NewClient(cfg config.WebSocketConfig) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Connect dials the live endpoint for conversationID. onFrame receives every
// text frame in arrival order on the reader goroutine; onClose is called
// once if the connection drops without Close having been called.
func (c *Client) Connect(ctx context.Context, conversationID, token string, onFrame func([]byte), onClose func(error)) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// A newer Connect or a teardown may have cancelled us while we waited
	// for the lock. The socket held now belongs to whoever superseded us.
	if err := ctx.Err(); err != nil {
		return err
	}

	c.releaseLocked()

	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint(conversationID, token), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to conversation %s: %w (status %d)", conversationID, err, resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to conversation %s: %w", conversationID, err)
	}
	if err := ctx.Err(); err != nil {
		_ = ws.Close()
		return err
	}

	conn := newConn(ws, c.cfg)
	c.conn = conn
	c.conversationID = conversationID

	go conn.WritePump()
	go conn.ReadPump(onFrame, func(err error) {
		c.mutex.Lock()
		if c.conn == conn {
			c.conn = nil
			c.conversationID = ""
		}
		c.mutex.Unlock()

		if onClose != nil {
			onClose(err)
		}
	})

	logger.Info("WebSocket connected to conversation %s", conversationID)
	return nil
}

// Send is valid only while a connection is open.
func (c *Client) Send(text string) error {
	c.mutex.Lock()
	conn := c.conn
	c.mutex.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send([]byte(text))
}

// Close releases the current connection. It is a no-op when nothing is open.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.releaseLocked()
	return nil
}

func (c *Client) Connected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn != nil
}

// ConversationID returns the conversation of the open connection, if any.
func (c *Client) ConversationID() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conversationID
}

func (c *Client) releaseLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	logger.Info("WebSocket disconnected from conversation %s", c.conversationID)
	c.conn = nil
	c.conversationID = ""
}

func (c *Client) endpoint(conversationID, token string) string {
	return c.cfg.URL + "/" + url.PathEscape(conversationID) + "/" + url.PathEscape(token)
}
