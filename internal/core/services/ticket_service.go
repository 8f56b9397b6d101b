package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	defaultTicketPageSize = 50
	maxTicketPageSize     = 200
)

// TicketService is the authoritative owner of ticket locks. Mutations on the
// same ticket are serialized in-process, and the repository's version check
// rejects writes that raced with another instance.
type TicketService struct {
	ticketRepo ports.TicketRepository
	txManager  ports.TransactionManager
	events     publisher
	locks      *keyedMutex
	logger     *slog.Logger
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a new ticket service
func NewTicketService(
	ticketRepo ports.TicketRepository,
	txManager ports.TransactionManager,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) ports.TicketService {
	logger = logger.With("component", "ticket_service")
	return &TicketService{
		ticketRepo: ticketRepo,
		txManager:  txManager,
		events:     newPublisher(broadcaster, logger),
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// CreateTicket opens a ticket and announces it to admins.
func (s *TicketService) CreateTicket(ctx context.Context, params domain.TicketParams) (*domain.SupportTicket, error) {
	ticket, err := domain.NewSupportTicket(params, s.events.now())
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.ticketRepo.Create(ctx, ticket); err != nil {
			return err
		}
		if params.Message == "" {
			return nil
		}
		return s.ticketRepo.AddMessage(ctx, &domain.TicketMessage{
			ID:        uuid.New(),
			TicketID:  ticket.ID,
			Content:   params.Message,
			CreatedAt: ticket.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, domain.NewTicket{Ticket: *ticket})
	return ticket, nil
}

// GetTicket returns the ticket if the viewer may see it.
func (s *TicketService) GetTicket(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) (*domain.SupportTicket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanViewTicket(ticket, viewer) {
		return nil, apperrors.ErrForbidden
	}
	return ticket, nil
}

// ListTickets scopes support staff to the unassigned queue and their own tickets.
func (s *TicketService) ListTickets(ctx context.Context, viewer domain.Actor, params ports.ListTicketsParams) ([]*domain.SupportTicket, error) {
	if !viewer.Role.IsValid() {
		return nil, apperrors.ErrForbidden
	}
	if params.Limit <= 0 {
		params.Limit = defaultTicketPageSize
	}
	if params.Limit > maxTicketPageSize {
		params.Limit = maxTicketPageSize
	}
	if !viewer.IsAdmin() {
		id := viewer.ID
		params.VisibleTo = &id
	}
	return s.ticketRepo.List(ctx, params)
}

// ListMessages returns the conversation of a visible ticket.
func (s *TicketService) ListMessages(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) ([]*domain.TicketMessage, error) {
	if _, err := s.GetTicket(ctx, ticketID, viewer); err != nil {
		return nil, err
	}
	return s.ticketRepo.ListMessages(ctx, []uuid.UUID{ticketID})
}

// Assign gives the actor the ticket lock.
func (s *TicketService) Assign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	return s.mutate(ctx, ticketID, actor, func(t *domain.SupportTicket, now time.Time) (domain.Payload, error) {
		result, err := t.Assign(actor, now)
		if err != nil {
			return nil, err
		}
		if result.Override {
			s.logger.WarnContext(ctx, "ticket lock overridden",
				"ticket_id", t.ID,
				"previous_assignee", result.Previous,
				"actor_id", actor.ID,
			)
		}
		return domain.TicketAssigned{
			Ticket:           *t.Clone(),
			PreviousAssignee: result.Previous,
			Override:         result.Override,
		}, nil
	})
}

// Unassign releases the ticket lock.
func (s *TicketService) Unassign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	return s.mutate(ctx, ticketID, actor, func(t *domain.SupportTicket, now time.Time) (domain.Payload, error) {
		prev, err := t.Unassign(actor, now)
		if err != nil {
			return nil, err
		}
		return domain.TicketUnassigned{Ticket: *t.Clone(), PreviousAssignee: prev}, nil
	})
}

// Resolve marks the ticket resolved without releasing the lock.
func (s *TicketService) Resolve(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	return s.mutate(ctx, ticketID, actor, func(t *domain.SupportTicket, now time.Time) (domain.Payload, error) {
		if err := t.Resolve(actor, now); err != nil {
			return nil, err
		}
		return domain.TicketResolved{Ticket: *t.Clone()}, nil
	})
}

// Close closes the ticket without releasing the lock.
func (s *TicketService) Close(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	return s.mutate(ctx, ticketID, actor, func(t *domain.SupportTicket, now time.Time) (domain.Payload, error) {
		prev, err := t.Close(actor, now)
		if err != nil {
			return nil, err
		}
		return domain.TicketStatusChanged{Ticket: *t.Clone(), PreviousStatus: prev}, nil
	})
}

// Reply posts a staff message. The message insert and the ticket update
// commit together.
func (s *TicketService) Reply(ctx context.Context, ticketID uuid.UUID, actor domain.Actor, content string) (*domain.SupportTicket, *domain.TicketMessage, error) {
	if err := actor.Validate(); err != nil {
		return nil, nil, apperrors.ErrForbidden
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	var (
		ticket *domain.SupportTicket
		msg    domain.TicketMessage
	)
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.ticketRepo.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		msg, err = ticket.Reply(actor, content, s.events.now())
		if err != nil {
			return err
		}
		if err := s.ticketRepo.AddMessage(ctx, &msg); err != nil {
			return err
		}
		return s.ticketRepo.Update(ctx, ticket)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "ticket reply posted",
		"ticket_id", ticketID,
		"message_id", msg.ID,
		"actor_id", actor.ID,
	)
	s.events.publish(ctx, domain.TicketReply{Ticket: *ticket.Clone(), Message: msg})
	return ticket, &msg, nil
}

type ticketChange func(t *domain.SupportTicket, now time.Time) (domain.Payload, error)

// mutate runs a lock-protected read-modify-write. A version conflict means
// another instance wrote first; the change is re-evaluated once against the
// fresh state so the domain rules see the winner.
func (s *TicketService) mutate(ctx context.Context, ticketID uuid.UUID, actor domain.Actor, change ticketChange) (*domain.SupportTicket, error) {
	if err := actor.Validate(); err != nil {
		return nil, apperrors.ErrForbidden
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
		if err != nil {
			return nil, err
		}

		version := ticket.Version
		payload, err := change(ticket, s.events.now())
		if err != nil {
			return nil, err
		}
		if ticket.Version == version {
			return ticket, nil
		}

		err = s.ticketRepo.Update(ctx, ticket)
		if errors.Is(err, apperrors.ErrConcurrentUpdate) && attempt == 0 {
			s.logger.DebugContext(ctx, "ticket changed concurrently, retrying", "ticket_id", ticketID)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "ticket updated",
			"ticket_id", ticketID,
			"kind", payload.Kind(),
			"actor_id", actor.ID,
			"version", ticket.Version,
		)
		s.events.publish(ctx, payload)
		return ticket, nil
	}
}
