package ws

import (
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

// writeWait caps how long one presence event may take to flush to a peer.
// A consumer slower than this is dropped instead of stalling the hub.
const writeWait = 5 * time.Second

// Client adapts a websocket connection to the hub's Subscriber interface.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send pushes one presence event to the peer. A failed or timed-out write
// closes the connection and reports the error so the hub unsubscribes it.
func (c *Client) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("presence send failed", "remote", c.conn.RemoteAddr(), "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close attempts a close handshake before dropping the connection so
// well-behaved peers see a normal closure instead of an abrupt reset.
func (c *Client) Close() {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	_ = c.conn.Close()
}
