package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Duet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) pongWait() time.Duration {
	return c.opts.PingPeriod * 10 / 9
}

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	ticker := c.opts.Clock.Ticker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data, ok := <-conn.send:
			if !ok {
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			c.limiter.Forget()
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *wsConn) {
	ws := conn.conn
	ws.SetReadLimit(c.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			lvl := log.Warn()
			if errors.Is(err, protocol.ErrUnknownEvent) {
				lvl = log.Debug()
			}
			lvl.Err(err).Str("module", "signal").Msg("dropped frame")
			continue
		}
		c.dispatch(ctx, msg)
	}
}
