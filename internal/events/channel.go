// Package events maintains the WebSocket event channel that carries
// call, conference and snapshot events pushed by the server.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// EndpointTopic is the per-endpoint topic events are published on.
func EndpointTopic(endpointID string) string {
	return "users/endpoints/" + endpointID
}

// frame is the client-to-server control envelope.
type frame struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

// Channel is a gorilla/websocket client with a serialized writer, a
// read loop dispatching decoded events, and a ping loop keeping the
// connection alive.
type Channel struct {
	url      string
	token    func() string
	handlers domain.EventHandlers
	log      zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	topics []string
	gen    int
	closed chan struct{}
}

// NewChannel builds an event channel. token is called at dial time so
// reconnects pick up rotated credentials.
func NewChannel(url string, token func() string, handlers domain.EventHandlers, log zerolog.Logger) *Channel {
	return &Channel{
		url:      url,
		token:    token,
		handlers: handlers,
		log:      log.With().Str("module", "events").Logger(),
		closed:   make(chan struct{}),
	}
}

// Connect dials the event endpoint and starts the read and ping loops.
func (c *Channel) Connect(ctx context.Context) error {
	header := http.Header{}
	if t := c.token(); t != "" {
		header.Set("Authorization", "Bearer "+t)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("event channel connected")

	go c.readLoop(conn, gen)
	go c.pingLoop(conn, gen)
	return nil
}

// Subscribe registers interest in a topic. The subscription is replayed
// on every reconnect.
func (c *Channel) Subscribe(topic string) error {
	c.mu.Lock()
	seen := false
	for _, t := range c.topics {
		if t == topic {
			seen = true
			break
		}
	}
	if !seen {
		c.topics = append(c.topics, topic)
	}
	c.mu.Unlock()

	return c.send(frame{Action: "subscribe", Topic: topic})
}

// Reconnect drops the current connection, dials again and replays all
// subscriptions.
func (c *Channel) Reconnect(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	topics := append([]string(nil), c.topics...)
	c.mu.Unlock()
	for _, t := range topics {
		if err := c.send(frame{Action: "subscribe", Topic: t}); err != nil {
			return fmt.Errorf("resubscribe %s: %w", t, err)
		}
	}
	return nil
}

// Close shuts the channel down for good.
func (c *Channel) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Channel) send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("event channel not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// stale reports whether the loops for gen belong to a replaced connection.
func (c *Channel) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.stale(gen) {
				return
			}
			select {
			case <-c.closed:
			default:
				c.log.Warn().Err(err).Msg("event channel read failed")
				if c.handlers.OnDisconnect != nil {
					c.handlers.OnDisconnect(err)
				}
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable event")
		return
	}
	switch e := ev.(type) {
	case domain.CallEvent:
		c.log.Debug().Str("type", e.CallBase().Type).Str("call", e.CallBase().CallID).Msg("call event")
		if c.handlers.OnCallEvent != nil {
			c.handlers.OnCallEvent(e)
		}
	case domain.ConferenceEvent:
		c.log.Debug().Str("type", e.Base().Type).Str("conference", e.Base().ConferenceID).Msg("conference event")
		if c.handlers.OnConferenceEvent != nil {
			c.handlers.OnConferenceEvent(e)
		}
	case *domain.SnapshotEvent:
		c.log.Debug().Str("type", e.Type).Msg("snapshot event")
		if c.handlers.OnSnapshotEvent != nil {
			c.handlers.OnSnapshotEvent(*e)
		}
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if c.stale(gen) {
				return
			}
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				if !c.stale(gen) {
					c.log.Warn().Err(err).Msg("event channel ping failed")
				}
				return
			}
		}
	}
}
