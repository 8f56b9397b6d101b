// Package natsbus fans events out across service instances over NATS. Every
// instance publishes produced events to one subject and relays everything it
// receives on that subject into its local hub, its own events included.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// ErrNotConnected is returned by Ping while the client is reconnecting.
var ErrNotConnected = errors.New("nats connection is not established")

// LocalHub is the in-process distributor the relay feeds.
type LocalHub interface {
	Broadcast(ctx context.Context, event domain.Event) error
	RequestResync()
}

// Config holds the connection settings.
type Config struct {
	URL            string
	Subject        string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
}

// Bus publishes events to NATS and relays the subject into a LocalHub.
type Bus struct {
	conn    *nats.Conn
	subject string
	local   LocalHub
	logger  *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context
}

var _ ports.EventBroadcaster = (*Bus)(nil)

// Connect dials NATS with unlimited reconnects. Every reconnect asks the
// local hub for a resync since messages may have been lost meanwhile.
func Connect(cfg Config, local LocalHub, logger *slog.Logger) (*Bus, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}

	b := &Bus{
		subject: cfg.Subject,
		local:   local,
		logger:  logger.With("component", "natsbus", "subject", cfg.Subject),
		ctx:     context.Background(),
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(b.handleDisconnect),
		nats.ReconnectHandler(b.handleReconnect),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	b.conn = nc
	return b, nil
}

// Broadcast publishes the event. Delivery to viewers, including this
// instance's own, happens through the relay.
func (b *Bus) Broadcast(ctx context.Context, event domain.Event) error {
	data, err := domain.MarshalEvent(event)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Kind(), err)
	}
	return nil
}

// Start subscribes the relay. Relayed events use ctx; cancelling it stops
// delivery but leaves the connection open.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return nil
	}
	b.ctx = ctx

	sub, err := b.conn.Subscribe(b.subject, b.relay)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.subject, err)
	}
	// The subscription has to be registered before anyone publishes.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	b.sub = sub
	b.logger.Info("event relay subscribed")
	return nil
}

// Ping implements the health check.
func (b *Bus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.sub = nil
	b.mu.Unlock()
	return b.conn.Drain()
}

func (b *Bus) relay(msg *nats.Msg) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	event, err := domain.UnmarshalEvent(msg.Data)
	if err != nil {
		b.logger.Warn("dropping undecodable event", "error", err, "bytes", len(msg.Data))
		return
	}
	if err := b.local.Broadcast(ctx, event); err != nil {
		b.logger.Error("failed to relay event",
			"event_id", event.ID,
			"kind", event.Kind(),
			"error", err,
		)
	}
}

func (b *Bus) handleDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		b.logger.Warn("nats disconnected", "error", err)
	}
}

func (b *Bus) handleReconnect(nc *nats.Conn) {
	url := ""
	if nc != nil {
		url = nc.ConnectedUrlRedacted()
	}
	b.logger.Info("nats reconnected, requesting viewer resync", "url", url)
	b.local.RequestResync()
}
