package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"flickpick/pkg/types"
)

// Connection wraps one WebSocket transport connection. Writes are
// serialized through a single writer goroutine. The joined session code
// and participant name are set by the join protocol after validation.
type Connection struct {
	id      string
	conn    *websocket.Conn
	writeCh chan []byte
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once

	mu     sync.RWMutex
	code   string
	name   string
	joined bool
}

// NewConnection creates a connection wrapper with a fresh connection id
// and starts the writer goroutine.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying connection. writeCh is
// never closed; cancellation stops the loop and fails pending senders, and
// anything still queued is dropped with the channel.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEvent queues an event for delivery to this connection.
func (c *Connection) WriteEvent(event types.Event) error {
	return c.WriteJSON(event)
}

// WriteJSON queues an arbitrary JSON value for delivery.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close cancels the writer goroutine and closes the transport.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ID returns the connection identity assigned at upgrade time.
func (c *Connection) ID() string {
	return c.id
}

// SetIdentity records the session code and participant name after a
// successful join.
func (c *Connection) SetIdentity(code, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	c.name = name
	c.joined = true
}

// ClearIdentity detaches the connection from its session, used on explicit
// leave so the transport-close path does not run disconnect handling twice.
func (c *Connection) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = ""
	c.name = ""
	c.joined = false
}

// Identity returns the joined session code, participant name, and whether
// the connection has completed a join.
func (c *Connection) Identity() (code, name string, joined bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code, c.name, c.joined
}
