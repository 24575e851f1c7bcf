package websocket

import (
	"context"
	"easy-chat/contract"
	"easy-chat/domain"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

var _ contract.Connection = (*Conn)(nil)

// Conn adapts a gorilla socket to contract.Connection.
// gorilla allows a single concurrent writer, so writes are serialized here.
type Conn struct {
	mu     sync.Mutex
	socket *ws.Conn
	closed bool
}

func NewConn(socket *ws.Conn) *Conn {
	return &Conn{socket: socket}
}

// Send writes one text frame. The context deadline becomes the write deadline.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ws.ErrCloseSent
	}
	deadline, _ := ctx.Deadline()
	if err := c.socket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.socket.WriteMessage(ws.TextMessage, payload)
}

// Close sends a close frame with the given code, then releases the socket.
// Subsequent calls are no-ops.
func (c *Conn) Close(code domain.CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := ws.FormatCloseMessage(int(code), reason)
	_ = c.socket.WriteControl(ws.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.socket.Close()
}
