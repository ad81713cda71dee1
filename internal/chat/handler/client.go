package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32

	eventUserMessage = "user-message"
	eventBotMessage  = "bot-message"
)

// inboundFrame is a message from the widget.
type inboundFrame struct {
	Event string `json:"event"`
	Data  struct {
		Text string `json:"text"`
	} `json:"data"`
}

// outboundFrame is a message to the widget.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// client is one websocket connection. All writes go through out so
// frames reach the widget in the order they were emitted.
type client struct {
	id   string
	conn *websocket.Conn
	out  chan outboundFrame
	done chan struct{}
	once sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		out:  make(chan outboundFrame, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *client) enqueue(ctx context.Context, f outboundFrame, timeout time.Duration) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.out <- f:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errSlowClient
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				slog.Debug("websocket write failed", slog.String("conn_id", c.id), slog.String("error", err.Error()))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
