package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one live-update connection. Every client belongs to exactly one
// parent, and the hub only routes that parent's events into send.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	parentID int64
	send     chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, parentID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		parentID: parentID,
		send:     make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until the peer disconnects or ctx ends.
// The stream is one-way: frames from the browser are discarded.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead answers control frames and cancels ctx once the peer is gone.
	ctx = c.conn.CloseRead(ctx)
	if err := c.deliver(ctx); err != nil {
		c.conn.Close(ws.StatusGoingAway, "")
		return
	}
	c.conn.Close(ws.StatusNormalClosure, "")
}

// deliver writes queued events for this parent and keeps the link alive with
// pings. It returns nil when ctx ends and the write error otherwise.
func (c *Client) deliver(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-c.send:
			if err := c.conn.Write(ctx, ws.MessageText, event); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return err
			}
		}
	}
}
