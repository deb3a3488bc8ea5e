package signal

import (
	"errors"
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrNotConnected = errors.New("signaling not connected")
)

// wsConn is one websocket with a bounded outbound queue drained by the
// write pump.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, queue int) *wsConn {
	return &wsConn{conn: conn, send: make(chan core.Frame, queue)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
