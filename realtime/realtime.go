// Package realtime maintains the long-lived websocket connection to the
// feed service's push endpoint and fans incoming change notifications out to
// per-channel handlers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to the peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Message is one change notification delivered on a channel.
type Message struct {
	Channel string            `json:"channel"`
	Feed    string            `json:"feed"`
	New     []json.RawMessage `json:"new,omitempty"`
	Deleted []string          `json:"deleted,omitempty"`
}

// frame is the wire envelope in both directions.
type frame struct {
	Type    string   `json:"type"` // subscribe, unsubscribe, message
	Channel string   `json:"channel,omitempty"`
	Token   string   `json:"token,omitempty"`
	UserID  string   `json:"user_id,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Conn is one websocket connection multiplexing any number of channel
// subscriptions. Writes are serialized through a single lock since the
// underlying connection allows one writer at a time.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]func(Message)

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the push endpoint and starts the read and ping loops.
func Dial(ctx context.Context, rawURL string, log *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		ws:       ws,
		log:      log,
		handlers: make(map[string]func(Message)),
		done:     make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Subscribe registers handler for the channel and announces the
// subscription to the server. A handler already registered for the channel
// is displaced; the registry layer above guarantees that never happens to a
// live subscription.
func (c *Conn) Subscribe(channel, token, userID string, handler func(Message)) (*Subscription, error) {
	c.mu.Lock()
	c.handlers[channel] = handler
	c.mu.Unlock()

	if err := c.writeFrame(frame{Type: "subscribe", Channel: channel, Token: token, UserID: userID}); err != nil {
		c.mu.Lock()
		delete(c.handlers, channel)
		c.mu.Unlock()
		return nil, err
	}

	return &Subscription{conn: c, channel: channel}, nil
}

// Close tears the connection down. Handlers receive nothing further.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writeFrame(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *Conn) readLoop() {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("realtime read error", "error", err)
			}
			return
		}

		if f.Type != "message" || f.Message == nil {
			continue
		}

		c.mu.Lock()
		handler := c.handlers[f.Channel]
		c.mu.Unlock()
		if handler == nil {
			continue
		}

		msg := *f.Message
		msg.Channel = f.Channel
		handler(msg)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Subscription is a handle on one channel subscription.
type Subscription struct {
	conn    *Conn
	channel string
	once    sync.Once
}

// Cancel unregisters the handler and tells the server to stop sending for
// the channel. It is idempotent and has no effect on anything else in
// flight on the connection.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.handlers, s.channel)
		s.conn.mu.Unlock()

		// Best effort: the connection may already be gone.
		if err := s.conn.writeFrame(frame{Type: "unsubscribe", Channel: s.channel}); err != nil {
			s.conn.log.Debug("unsubscribe write failed", "channel", s.channel, "error", err)
		}
	})
}
