// Package client is the staff session library: one push channel feeding a
// notification store and a ticket cache for a single authenticated actor.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lorrc/service-desk-realtime/internal/client/connection"
	"github.com/lorrc/service-desk-realtime/internal/client/notifications"
	"github.com/lorrc/service-desk-realtime/internal/client/tickets"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// Config wires a Session. Preferences, OnConflict and OnSystemEvent are
// optional.
type Config struct {
	Actor               domain.Actor
	Transport           ports.StreamTransport
	Snapshots           ports.SnapshotSource
	NotificationActions ports.NotificationActions
	TicketActions       ports.TicketActions
	Preferences         ports.FilterPreferences
	Connection          connection.Config

	OnConflict    func(tickets.Conflict)
	OnSystemEvent func(domain.Event, domain.SystemEvent)
	Logger        *slog.Logger
}

// Session owns the connection manager and both local projections.
type Session struct {
	actor         domain.Actor
	snapshots     ports.SnapshotSource
	notifications *notifications.Store
	tickets       *tickets.Coordinator
	conn          *connection.Manager
	onSystemEvent func(domain.Event, domain.SystemEvent)
	logger        *slog.Logger
}

var (
	_ connection.Handler  = (*Session)(nil)
	_ domain.EventHandler = (*Session)(nil)
)

// New builds a Session. Nothing connects until Start.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Actor.Validate(); err != nil {
		return nil, fmt.Errorf("session actor: %w", err)
	}
	if cfg.Transport == nil || cfg.Snapshots == nil || cfg.NotificationActions == nil || cfg.TicketActions == nil {
		return nil, fmt.Errorf("%w: transport, snapshots and actions are required", apperrors.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("user_id", cfg.Actor.ID.String(), "role", string(cfg.Actor.Role))

	s := &Session{
		actor:         cfg.Actor,
		snapshots:     cfg.Snapshots,
		notifications: notifications.NewStore(ctx, cfg.Actor, cfg.NotificationActions, cfg.Preferences, logger),
		tickets:       tickets.NewCoordinator(cfg.Actor, cfg.TicketActions, cfg.OnConflict, logger),
		onSystemEvent: cfg.OnSystemEvent,
		logger:        logger.With("component", "session"),
	}
	s.conn = connection.NewManager(cfg.Transport, s, cfg.Connection, logger)
	return s, nil
}

// Start connects the push channel in the background.
func (s *Session) Start(ctx context.Context) {
	s.conn.Start(ctx)
}

// Dispose stops the push channel and cancels in-flight actions. After it
// returns no further events are applied.
func (s *Session) Dispose() {
	s.conn.Dispose()
	s.notifications.Close()
	s.tickets.Shutdown()
}

// Actor returns the authenticated staff member.
func (s *Session) Actor() domain.Actor { return s.actor }

// Notifications returns the notification store.
func (s *Session) Notifications() *notifications.Store { return s.notifications }

// Tickets returns the ticket cache.
func (s *Session) Tickets() *tickets.Coordinator { return s.tickets }

// State returns the push channel state.
func (s *Session) State() connection.State { return s.conn.State() }

// Done is closed once the push channel stopped for good.
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

// Err returns why the push channel gave up, if it did.
func (s *Session) Err() error { return s.conn.Err() }

// HandleEvent re-checks visibility and routes the event to its projection.
func (s *Session) HandleEvent(_ context.Context, e domain.Event) {
	if !domain.Visible(e, s.actor) {
		s.logger.Debug("dropping event not visible to viewer", "event_id", e.ID, "kind", e.Kind())
		return
	}
	e.Dispatch(s)
}

// Resync replaces both projections with the server's snapshot.
func (s *Session) Resync(ctx context.Context) error {
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	s.notifications.Replace(snap.Notifications)
	s.tickets.Replace(snap.Tickets, snap.Messages)
	s.logger.Info("resynced",
		"tickets", len(snap.Tickets),
		"notifications", len(snap.Notifications),
		"generated_at", snap.GeneratedAt,
	)
	return nil
}

// CleanupArchived runs the archived notification cleanup and resyncs when the
// server did not say which notifications it removed.
func (s *Session) CleanupArchived(ctx context.Context, olderThanDays int) (*domain.CleanupReport, error) {
	report, err := s.notifications.CleanupArchived(ctx, olderThanDays)
	if errors.Is(err, apperrors.ErrResyncNeeded) {
		if rerr := s.Resync(ctx); rerr != nil {
			return report, errors.Join(err, rerr)
		}
		return report, nil
	}
	return report, err
}

func (s *Session) OnNewTicket(e domain.Event, _ domain.NewTicket)               { s.tickets.Apply(e) }
func (s *Session) OnTicketReply(e domain.Event, _ domain.TicketReply)           { s.tickets.Apply(e) }
func (s *Session) OnTicketAssigned(e domain.Event, _ domain.TicketAssigned)     { s.tickets.Apply(e) }
func (s *Session) OnTicketUnassigned(e domain.Event, _ domain.TicketUnassigned) { s.tickets.Apply(e) }
func (s *Session) OnTicketResolved(e domain.Event, _ domain.TicketResolved)     { s.tickets.Apply(e) }

func (s *Session) OnTicketStatusChanged(e domain.Event, _ domain.TicketStatusChanged) {
	s.tickets.Apply(e)
}

func (s *Session) OnSystemEvent(e domain.Event, p domain.SystemEvent) {
	s.logger.Info("system event", "level", p.Level, "source", p.Source, "message", p.Message)
	if s.onSystemEvent != nil {
		s.onSystemEvent(e, p)
	}
}

func (s *Session) OnNotificationCreated(e domain.Event, _ domain.NotificationCreated) {
	s.notifications.Apply(e)
}

func (s *Session) OnNotificationResolved(e domain.Event, _ domain.NotificationResolved) {
	s.notifications.Apply(e)
}

func (s *Session) OnNotificationUpdated(e domain.Event, _ domain.NotificationUpdated) {
	s.notifications.Apply(e)
}
