// Package notifications holds the client's projection of the notification
// centre. User actions are applied optimistically and rolled back if the
// server rejects them.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// DefaultRecent is the size of the recent dropdown.
const DefaultRecent = 5

// Store is safe for concurrent use. Network calls run without the lock held.
type Store struct {
	actor   domain.Actor
	actions ports.NotificationActions
	prefs   ports.FilterPreferences
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	items       map[uuid.UUID]*domain.Notification
	intents     map[uuid.UUID]*intent
	unread      int
	filter      domain.NotificationFilter
	cleanupLogs []domain.CleanupReport
	closed      bool

	life   context.Context
	cancel context.CancelFunc
}

// NewStore creates an empty store and loads the saved filter. prefs may be
// nil.
func NewStore(ctx context.Context, actor domain.Actor, actions ports.NotificationActions, prefs ports.FilterPreferences, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	life, cancel := context.WithCancel(context.Background())
	s := &Store{
		actor:   actor,
		actions: actions,
		prefs:   prefs,
		logger:  logger.With("component", "notification_store"),
		now:     time.Now,
		items:   make(map[uuid.UUID]*domain.Notification),
		intents: make(map[uuid.UUID]*intent),
		life:    life,
		cancel:  cancel,
	}

	if prefs != nil {
		f, ok, err := prefs.LoadFilter(ctx)
		switch {
		case err != nil:
			s.logger.Warn("failed to load notification filter", "error", err)
		case ok:
			s.filter = f
		}
	}
	return s
}

// put is the only place entries are written. It keeps the unread counter in
// step. The caller holds mu.
func (s *Store) put(n *domain.Notification) {
	if old, ok := s.items[n.ID]; ok && old.IsUnread() {
		s.unread--
	}
	s.items[n.ID] = n
	if n.IsUnread() {
		s.unread++
	}
}

func (s *Store) remove(id uuid.UUID) {
	if old, ok := s.items[id]; ok {
		if old.IsUnread() {
			s.unread--
		}
		delete(s.items, id)
	}
	delete(s.intents, id)
}

// merge applies an authoritative copy by last-write-wins and clears any
// intent it confirms. It reports whether the copy was taken.
func (s *Store) merge(n *domain.Notification) bool {
	if in, ok := s.intents[n.ID]; ok && in.supersededBy(n) {
		delete(s.intents, n.ID)
	}
	if local, ok := s.items[n.ID]; ok && n.Version < local.Version {
		return false
	}
	s.put(n.Clone())
	return true
}

// Apply merges a notification event. Non-notification events are ignored.
func (s *Store) Apply(e domain.Event) bool {
	n := domain.NotificationOf(e.Payload)
	if n == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.merge(n)
}

// Replace swaps the whole collection for a snapshot. Entries missing from it
// are dropped. A cached entry with a higher version than its snapshot copy is
// kept, and pending intents the snapshot has not caught up with stay applied
// on top of it.
func (s *Store) Replace(snapshot []domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	optimistic := s.items
	s.items = make(map[uuid.UUID]*domain.Notification, len(snapshot))
	s.unread = 0
	for i := range snapshot {
		n := &snapshot[i]
		if _, pending := s.intents[n.ID]; !pending {
			if local, ok := optimistic[n.ID]; ok && local.Version > n.Version {
				s.put(local)
				continue
			}
		}
		s.put(n.Clone())
	}

	for id, in := range s.intents {
		fresh, ok := s.items[id]
		if !ok || in.supersededBy(fresh) {
			delete(s.intents, id)
			continue
		}
		in.prior = fresh.Clone()
		if local, ok := optimistic[id]; ok {
			s.put(local)
		}
	}
}

// MarkRead marks one notification read. Marking a read notification again is
// a no-op.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.act(ctx, id, domain.ActionRead, func(n *domain.Notification, now time.Time) bool {
		return n.MarkRead(s.actor, now)
	}, func(ctx context.Context) (*domain.Notification, error) {
		return s.actions.MarkRead(ctx, id)
	})
}

// Resolve records a resolution with an optional note. Read state is left
// alone.
func (s *Store) Resolve(ctx context.Context, id uuid.UUID, note string) error {
	return s.act(ctx, id, domain.ActionResolved, func(n *domain.Notification, now time.Time) bool {
		n.Resolve(s.actor, note, now)
		return true
	}, func(ctx context.Context) (*domain.Notification, error) {
		return s.actions.Resolve(ctx, id, note)
	})
}

// Archive hides a notification from the default listing.
func (s *Store) Archive(ctx context.Context, id uuid.UUID, note string) error {
	return s.act(ctx, id, domain.ActionArchived, func(n *domain.Notification, now time.Time) bool {
		return n.Archive(s.actor, note, now)
	}, func(ctx context.Context) (*domain.Notification, error) {
		return s.actions.Archive(ctx, id, note)
	})
}

type mutation func(n *domain.Notification, now time.Time) bool

type call func(ctx context.Context) (*domain.Notification, error)

// act runs the optimistic flow for a single notification.
func (s *Store) act(ctx context.Context, id uuid.UUID, action domain.HistoryAction, mutate mutation, remote call) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSessionDisposed
	}
	current, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrNotificationNotFound
	}
	next := current.Clone()
	if !mutate(next, s.now().UTC()) {
		s.mu.Unlock()
		return nil
	}
	in := &intent{action: action, prior: current.Clone(), version: next.Version}
	s.intents[id] = in
	s.put(next)
	s.mu.Unlock()

	callCtx, done := s.actionContext(ctx)
	result, err := remote(callCtx)
	done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrSessionDisposed
	}
	if err != nil {
		s.rollback(id, in)
		s.logger.Warn("notification action failed", "action", string(action), "notification_id", id, "error", err)
		return apperrors.NewActionFailedError(string(action), err)
	}
	if s.intents[id] == in {
		delete(s.intents, id)
	}
	if result != nil {
		s.merge(result)
	}
	return nil
}

// rollback restores the prior state if in is still the pending intent for id.
func (s *Store) rollback(id uuid.UUID, in *intent) {
	if s.intents[id] != in {
		return
	}
	delete(s.intents, id)
	if _, ok := s.items[id]; ok {
		s.put(in.prior)
	}
}

// MarkAllRead marks every unread notification read with a single call.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSessionDisposed
	}
	now := s.now().UTC()
	pending := make(map[uuid.UUID]*intent)
	for id, current := range s.items {
		if current.ReadStatus {
			continue
		}
		next := current.Clone()
		next.MarkRead(s.actor, now)
		in := &intent{action: domain.ActionRead, prior: current.Clone(), version: next.Version}
		s.intents[id] = in
		pending[id] = in
		s.put(next)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	callCtx, done := s.actionContext(ctx)
	results, err := s.actions.MarkAllRead(callCtx)
	done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrSessionDisposed
	}
	if err != nil {
		for id, in := range pending {
			s.rollback(id, in)
		}
		s.logger.Warn("mark all read failed", "count", len(pending), "error", err)
		return apperrors.NewActionFailedError("read-all", err)
	}
	for id, in := range pending {
		if s.intents[id] == in {
			delete(s.intents, id)
		}
	}
	for _, n := range results {
		s.merge(n)
	}
	return nil
}

// CleanupArchived asks the server to hard delete old archived notifications
// and removes exactly the reported ids. A report without ids returns
// ErrResyncNeeded.
func (s *Store) CleanupArchived(ctx context.Context, olderThanDays int) (*domain.CleanupReport, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, apperrors.ErrSessionDisposed
	}

	callCtx, done := s.actionContext(ctx)
	report, err := s.actions.CleanupArchived(callCtx, olderThanDays)
	done()
	if err != nil {
		var failed *apperrors.CleanupFailedError
		if errors.As(err, &failed) {
			return nil, err
		}
		return nil, &apperrors.CleanupFailedError{Err: apperrors.NewActionFailedError("cleanup", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.ErrSessionDisposed
	}
	s.cleanupLogs = append(s.cleanupLogs, *report)

	if !report.Succeeded() {
		return report, &apperrors.CleanupFailedError{
			RunID:     report.ID.String(),
			Timestamp: report.Timestamp,
			Details:   report.Details,
		}
	}
	if report.DeletedIDs == nil && report.DeletedCount > 0 {
		return report, apperrors.ErrResyncNeeded
	}
	for _, id := range report.DeletedIDs {
		s.remove(id)
	}
	return report, nil
}

// CleanupLog returns the cleanup reports seen by this store, newest first.
func (s *Store) CleanupLog() []domain.CleanupReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CleanupReport, len(s.cleanupLogs))
	for i, r := range s.cleanupLogs {
		out[len(out)-1-i] = r
	}
	return out
}

// UnreadCount returns the number of unread, non-archived notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Get returns a copy of one notification.
func (s *Store) Get(id uuid.UUID) (*domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Pending reports whether an action on id awaits confirmation.
func (s *Store) Pending(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.intents[id]
	return ok
}

// List returns copies matching filter, newest first.
func (s *Store) List(filter domain.NotificationFilter) []*domain.Notification {
	s.mu.Lock()
	out := make([]*domain.Notification, 0, len(s.items))
	for _, n := range s.items {
		if filter.Matches(n) {
			out = append(out, n.Clone())
		}
	}
	s.mu.Unlock()

	domain.SortNotifications(out)
	return out
}

// Recent returns the newest n active notifications.
func (s *Store) Recent(n int) []*domain.Notification {
	if n <= 0 {
		n = DefaultRecent
	}
	list := s.List(domain.NotificationFilter{Status: domain.StatusFilterActive})
	if len(list) > n {
		list = list[:n]
	}
	return list
}

// Filter returns the current filter.
func (s *Store) Filter() domain.NotificationFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter changes the filter and saves it. A failed save is logged.
func (s *Store) SetFilter(ctx context.Context, f domain.NotificationFilter) error {
	if !f.Status.IsValid() {
		return apperrors.ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSessionDisposed
	}
	s.filter = f
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.SaveFilter(ctx, f); err != nil {
			s.logger.Warn("failed to save notification filter", "error", err)
		}
	}
	return nil
}

// Close cancels in-flight actions. Later mutations return ErrSessionDisposed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// actionContext derives a call context that also ends when the store closes.
func (s *Store) actionContext(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ids returns the stored ids in a stable order, for tests and debugging.
func (s *Store) ids() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
