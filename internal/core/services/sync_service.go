package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/idgen"
)

const snapshotTicketLimit = 200

var systemEventLevels = map[string]bool{
	"info":    true,
	"warning": true,
	"error":   true,
}

// SyncService builds the state a reconnecting client resyncs from.
type SyncService struct {
	tickets       ports.TicketRepository
	notifications ports.NotificationRepository
	events        publisher
	logger        *slog.Logger
}

var _ ports.SyncService = (*SyncService)(nil)

// NewSyncService creates a new sync service
func NewSyncService(
	tickets ports.TicketRepository,
	notifications ports.NotificationRepository,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) ports.SyncService {
	logger = logger.With("component", "sync_service")
	p := newPublisher(broadcaster, logger)
	return &SyncService{
		tickets:       tickets,
		notifications: notifications,
		events:        p,
		logger:        logger,
	}
}

// Snapshot returns everything the viewer is allowed to see. Support staff
// get no notifications and only the unassigned queue plus their own tickets.
func (s *SyncService) Snapshot(ctx context.Context, viewer domain.Actor) (*domain.Snapshot, error) {
	if err := viewer.Validate(); err != nil {
		return nil, apperrors.ErrForbidden
	}

	snap := &domain.Snapshot{
		Notifications: []domain.Notification{},
		Tickets:       []domain.SupportTicket{},
		Messages:      []domain.TicketMessage{},
		GeneratedAt:   s.events.now(),
	}

	if domain.CanViewNotifications(viewer) {
		list, err := s.notifications.List(ctx, domain.NotificationFilter{Status: domain.StatusFilterAll}, maxNotificationLimit)
		if err != nil {
			return nil, err
		}
		for _, n := range list {
			snap.Notifications = append(snap.Notifications, *n)
		}
	}

	params := ports.ListTicketsParams{Limit: snapshotTicketLimit}
	if !viewer.IsAdmin() {
		id := viewer.ID
		params.VisibleTo = &id
	}
	tickets, err := s.tickets.List(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		if !domain.CanViewTicket(t, viewer) {
			continue
		}
		snap.Tickets = append(snap.Tickets, *t)
		ids = append(ids, t.ID)
	}

	if len(ids) > 0 {
		messages, err := s.tickets.ListMessages(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			snap.Messages = append(snap.Messages, *m)
		}
	}

	s.logger.DebugContext(ctx, "snapshot built",
		"viewer_id", viewer.ID,
		"notifications", len(snap.Notifications),
		"tickets", len(snap.Tickets),
	)
	return snap, nil
}

// EmitSystemEvent broadcasts an operational message to super admins.
func (s *SyncService) EmitSystemEvent(ctx context.Context, actor domain.Actor, params ports.SystemEventParams) (*domain.SystemEvent, error) {
	if !actor.IsSuperAdmin() {
		return nil, apperrors.ErrForbidden
	}

	level := strings.ToLower(strings.TrimSpace(params.Level))
	if level == "" {
		level = "info"
	}
	v := apperrors.NewValidationErrors()
	if !systemEventLevels[level] {
		v.Add("level", "Level must be info, warning or error")
	}
	message := strings.TrimSpace(params.Message)
	if message == "" {
		v.Add("message", "Message is required")
	}
	if v.HasErrors() {
		return nil, v
	}

	event := domain.SystemEvent{
		ID:      idgen.SystemEventID(),
		Level:   level,
		Source:  strings.TrimSpace(params.Source),
		Message: message,
	}
	s.events.publish(ctx, event)

	s.logger.InfoContext(ctx, "system event emitted",
		"system_event_id", event.ID,
		"level", event.Level,
		"actor_id", actor.ID,
	)
	return &event, nil
}
