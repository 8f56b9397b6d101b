package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/stream"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Config tunes one connection's keepalive.
type Config struct {
	WriteWait time.Duration
	PongWait  time.Duration
	// Heartbeat is the interval of the in-band ping frame.
	Heartbeat time.Duration
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = stream.DefaultHeartbeat
	}
	return c
}

// pingPeriod must be less than PongWait.
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Message is the JSON text message carrying one frame.
type Message struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	conn   *websocket.Conn
	hub    *stream.Hub
	sub    *stream.Subscription
	cfg    Config
	logger *slog.Logger
}

// NewClient subscribes the viewer and binds the subscription to conn.
func NewClient(hub *stream.Hub, conn *websocket.Conn, viewer domain.Actor, cfg Config, logger *slog.Logger) *Client {
	sub := hub.Subscribe(viewer)
	return &Client{
		conn: conn,
		hub:  hub,
		sub:  sub,
		cfg:  cfg.withDefaults(),
		logger: logger.With(
			"component", "websocket_client",
			"user_id", viewer.ID.String(),
			"session_id", sub.ID,
		),
	}
}

// SessionID identifies the hub subscription behind this connection.
func (c *Client) SessionID() string {
	return c.sub.ID
}

// Serve runs the read and write pumps until either side ends, then
// unsubscribes and closes the connection.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	go func() {
		defer cancel()
		c.ReadPump()
	}()
	go c.pingLoop(ctx)

	c.WritePump(ctx)
}

// ReadPump drains the connection so pong handling keeps the read deadline
// moving. Inbound messages carry nothing the server acts on.
func (c *Client) ReadPump() {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

// WritePump greets the viewer and then streams its subscription.
func (c *Client) WritePump(ctx context.Context) {
	if err := c.WriteFrame(stream.ConnectedFrame(c.sub.Viewer, time.Now().UTC())); err != nil {
		c.logger.Debug("failed to send greeting", "error", err)
		return
	}

	err := stream.Pump(ctx, c.sub, c.cfg.Heartbeat, c)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, stream.ErrHubStopped):
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(c.cfg.WriteWait))
	default:
		c.logger.Error("failed to write message", "error", err)
	}
}

// WriteFrame implements stream.FrameSink.
func (c *Client) WriteFrame(f domain.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	msg := Message{Event: f.Name, ID: f.ID, Data: json.RawMessage(f.Data)}
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// pingLoop sends protocol pings. WriteControl may run concurrently with the
// write pump.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}
