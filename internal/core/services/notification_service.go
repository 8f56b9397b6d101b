package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	defaultNotificationLimit = 100
	maxNotificationLimit     = 500
	defaultCleanupLogLimit   = 20
)

// NotificationService implements the server side of the notification lifecycle.
type NotificationService struct {
	repo      ports.NotificationRepository
	logs      ports.CleanupLogRepository
	txManager ports.TransactionManager
	events    publisher
	locks     *keyedMutex
	retention time.Duration
	logger    *slog.Logger
}

var _ ports.NotificationService = (*NotificationService)(nil)

// NewNotificationService creates a new notification service. retention is
// the default cleanup window used when a caller passes no day count.
func NewNotificationService(
	repo ports.NotificationRepository,
	logs ports.CleanupLogRepository,
	txManager ports.TransactionManager,
	broadcaster ports.EventBroadcaster,
	retention time.Duration,
	logger *slog.Logger,
) ports.NotificationService {
	if retention <= 0 {
		retention = domain.DefaultRetention
	}
	logger = logger.With("component", "notification_service")
	return &NotificationService{
		repo:      repo,
		logs:      logs,
		txManager: txManager,
		events:    newPublisher(broadcaster, logger),
		locks:     newKeyedMutex(),
		retention: retention,
		logger:    logger,
	}
}

// Create stores a notification and pushes it to admins.
func (s *NotificationService) Create(ctx context.Context, params domain.NotificationParams) (*domain.Notification, error) {
	n, err := domain.NewNotification(params, s.events.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.events.publish(ctx, domain.NotificationCreated{Notification: *n.Clone()})
	return n, nil
}

// List returns notifications matching the filter.
func (s *NotificationService) List(ctx context.Context, actor domain.Actor, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error) {
	if !domain.CanViewNotifications(actor) {
		return nil, apperrors.ErrForbidden
	}
	if !filter.Status.IsValid() {
		v := apperrors.NewValidationErrors()
		v.Add("status", "Unknown status filter")
		return nil, v
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.repo.List(ctx, filter, limit)
}

// UnreadCount counts unread, non-archived notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	if !domain.CanViewNotifications(actor) {
		return 0, apperrors.ErrForbidden
	}
	return s.repo.CountUnread(ctx)
}

// MarkRead is a no-op for notifications that are already read.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Notification, error) {
	return s.mutate(ctx, id, actor, func(n *domain.Notification, now time.Time) domain.Payload {
		if !n.MarkRead(actor, now) {
			return nil
		}
		return domain.NotificationUpdated{Notification: *n.Clone()}
	})
}

// MarkAllRead marks every unread notification read and returns the ones
// that changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) ([]*domain.Notification, error) {
	if !domain.CanViewNotifications(actor) {
		return nil, apperrors.ErrForbidden
	}
	unread, err := s.repo.List(ctx, domain.NotificationFilter{Status: domain.StatusFilterUnread}, maxNotificationLimit)
	if err != nil {
		return nil, err
	}

	changed := make([]*domain.Notification, 0, len(unread))
	for _, candidate := range unread {
		n, err := s.MarkRead(ctx, candidate.ID, actor)
		if errors.Is(err, apperrors.ErrNotificationNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		changed = append(changed, n)
	}
	return changed, nil
}

// Resolve records a resolution and notes who made it.
func (s *NotificationService) Resolve(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error) {
	return s.mutate(ctx, id, actor, func(n *domain.Notification, now time.Time) domain.Payload {
		n.Resolve(actor, note, now)
		return domain.NotificationResolved{Notification: *n.Clone()}
	})
}

// Archive hides a notification until cleanup removes it. Archiving twice is
// a no-op.
func (s *NotificationService) Archive(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error) {
	return s.mutate(ctx, id, actor, func(n *domain.Notification, now time.Time) domain.Payload {
		if !n.Archive(actor, note, now) {
			return nil
		}
		return domain.NotificationUpdated{Notification: *n.Clone()}
	})
}

// CleanupArchived purges archived notifications older than the window and
// records the run. A failed run is logged too and returned as
// CleanupFailedError alongside the report.
func (s *NotificationService) CleanupArchived(ctx context.Context, actor domain.Actor, olderThanDays int) (*domain.CleanupReport, error) {
	if !domain.CanViewNotifications(actor) {
		return nil, apperrors.ErrForbidden
	}

	retention := s.retention
	if olderThanDays > 0 {
		retention = domain.RetentionFromDays(olderThanDays)
	}
	now := s.events.now()
	report := &domain.CleanupReport{
		ID:            uuid.New(),
		Timestamp:     now,
		OlderThanDays: int(retention / (24 * time.Hour)),
	}

	var deleted []uuid.UUID
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.DeleteArchivedBefore(ctx, domain.CleanupCutoff(now, retention))
		if err != nil {
			return err
		}
		report.Result = domain.CleanupSuccess
		report.DeletedIDs = deleted
		report.DeletedCount = len(deleted)
		report.Details = fmt.Sprintf("deleted %d archived notification(s) older than %d day(s)", len(deleted), report.OlderThanDays)
		return s.logs.Insert(ctx, report)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "archived notification cleanup failed", "error", err)
		report.Result = domain.CleanupError
		report.DeletedIDs = nil
		report.DeletedCount = 0
		report.Details = err.Error()
		if logErr := s.logs.Insert(ctx, report); logErr != nil {
			s.logger.ErrorContext(ctx, "failed to record cleanup failure", "error", logErr)
		}
		return report, &apperrors.CleanupFailedError{
			RunID:     report.ID.String(),
			Timestamp: report.Timestamp,
			Details:   report.Details,
			Err:       err,
		}
	}

	s.logger.InfoContext(ctx, "archived notifications cleaned up",
		"deleted", report.DeletedCount,
		"older_than_days", report.OlderThanDays,
		"actor_id", actor.ID,
	)
	return report, nil
}

// CleanupLogs returns the most recent cleanup runs, newest first.
func (s *NotificationService) CleanupLogs(ctx context.Context, actor domain.Actor, limit int) ([]*domain.CleanupReport, error) {
	if !domain.CanViewNotifications(actor) {
		return nil, apperrors.ErrForbidden
	}
	if limit <= 0 {
		limit = defaultCleanupLogLimit
	}
	return s.logs.ListRecent(ctx, limit)
}

type notificationChange func(n *domain.Notification, now time.Time) domain.Payload

func (s *NotificationService) mutate(ctx context.Context, id uuid.UUID, actor domain.Actor, change notificationChange) (*domain.Notification, error) {
	if !domain.CanViewNotifications(actor) {
		return nil, apperrors.ErrForbidden
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		n, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		payload := change(n, s.events.now())
		if payload == nil {
			return n, nil
		}

		err = s.repo.Update(ctx, n)
		if errors.Is(err, apperrors.ErrConcurrentUpdate) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.events.publish(ctx, payload)
		return n, nil
	}
}
