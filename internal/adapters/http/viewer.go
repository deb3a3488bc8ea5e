package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("backpressure")

const viewerQueue = 256

// viewerConn is a viewer's event stream. It implements core.SignalConnection.
type viewerConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}
	once sync.Once
}

var _ core.SignalConnection = (*viewerConn)(nil)

func newViewerConn(conn *websocket.Conn) *viewerConn {
	return &viewerConn{
		conn: conn,
		send: make(chan core.Frame, viewerQueue),
		done: make(chan struct{}),
	}
}

func (c *viewerConn) TrySend(f core.Frame) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *viewerConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop pumps frames to the network and closes the socket on exit.
func (c *viewerConn) writeLoop(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// readLoop only watches for the viewer going away; viewers talk to the
// session through the command endpoints.
func (c *viewerConn) readLoop() {
	defer c.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
