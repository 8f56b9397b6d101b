package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTicketRepository is a mock implementation of ports.TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy so the service can mutate it like a freshly loaded row.
	return args.Get(0).(*domain.SupportTicket).Clone(), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.SupportTicket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) List(ctx context.Context, params ports.ListTicketsParams) ([]*domain.SupportTicket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SupportTicket), args.Error(1)
}

func (m *MockTicketRepository) AddMessage(ctx context.Context, msg *domain.TicketMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockTicketRepository) ListMessages(ctx context.Context, ticketIDs []uuid.UUID) ([]*domain.TicketMessage, error) {
	args := m.Called(ctx, ticketIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TicketMessage), args.Error(1)
}

// MockNotificationRepository is a mock implementation of ports.NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification).Clone(), args.Error(1)
}

func (m *MockNotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) List(ctx context.Context, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationRepository) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockCleanupLogRepository is a mock implementation of ports.CleanupLogRepository
type MockCleanupLogRepository struct {
	mock.Mock
}

func NewMockCleanupLogRepository() *MockCleanupLogRepository {
	return &MockCleanupLogRepository{}
}

func (m *MockCleanupLogRepository) Insert(ctx context.Context, report *domain.CleanupReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockCleanupLogRepository) ListRecent(ctx context.Context, limit int) ([]*domain.CleanupReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CleanupReport), args.Error(1)
}

// MockTransactionManager runs the callback inline without a real transaction.
type MockTransactionManager struct{}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockTicketService is a mock implementation of ports.TicketService
type MockTicketService struct {
	mock.Mock
}

func NewMockTicketService() *MockTicketService {
	return &MockTicketService{}
}

func (m *MockTicketService) CreateTicket(ctx context.Context, params domain.TicketParams) (*domain.SupportTicket, error) {
	args := m.Called(ctx, params)
	return ticketResult(args)
}

func (m *MockTicketService) GetTicket(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, viewer)
	return ticketResult(args)
}

func (m *MockTicketService) ListTickets(ctx context.Context, viewer domain.Actor, params ports.ListTicketsParams) ([]*domain.SupportTicket, error) {
	args := m.Called(ctx, viewer, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SupportTicket), args.Error(1)
}

func (m *MockTicketService) ListMessages(ctx context.Context, ticketID uuid.UUID, viewer domain.Actor) ([]*domain.TicketMessage, error) {
	args := m.Called(ctx, ticketID, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TicketMessage), args.Error(1)
}

func (m *MockTicketService) Assign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, actor)
	return ticketResult(args)
}

func (m *MockTicketService) Unassign(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, actor)
	return ticketResult(args)
}

func (m *MockTicketService) Reply(ctx context.Context, ticketID uuid.UUID, actor domain.Actor, content string) (*domain.SupportTicket, *domain.TicketMessage, error) {
	args := m.Called(ctx, ticketID, actor, content)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.SupportTicket), args.Get(1).(*domain.TicketMessage), args.Error(2)
}

func (m *MockTicketService) Resolve(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, actor)
	return ticketResult(args)
}

func (m *MockTicketService) Close(ctx context.Context, ticketID uuid.UUID, actor domain.Actor) (*domain.SupportTicket, error) {
	args := m.Called(ctx, ticketID, actor)
	return ticketResult(args)
}

func ticketResult(args mock.Arguments) (*domain.SupportTicket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SupportTicket), args.Error(1)
}

// MockNotificationService is a mock implementation of ports.NotificationService
type MockNotificationService struct {
	mock.Mock
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) Create(ctx context.Context, params domain.NotificationParams) (*domain.Notification, error) {
	args := m.Called(ctx, params)
	return notificationResult(args)
}

func (m *MockNotificationService) List(ctx context.Context, actor domain.Actor, filter domain.NotificationFilter, limit int) ([]*domain.Notification, error) {
	args := m.Called(ctx, actor, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	args := m.Called(ctx, actor)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Notification, error) {
	args := m.Called(ctx, id, actor)
	return notificationResult(args)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) ([]*domain.Notification, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationService) Resolve(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error) {
	args := m.Called(ctx, id, actor, note)
	return notificationResult(args)
}

func (m *MockNotificationService) Archive(ctx context.Context, id uuid.UUID, actor domain.Actor, note string) (*domain.Notification, error) {
	args := m.Called(ctx, id, actor, note)
	return notificationResult(args)
}

func (m *MockNotificationService) CleanupArchived(ctx context.Context, actor domain.Actor, olderThanDays int) (*domain.CleanupReport, error) {
	args := m.Called(ctx, actor, olderThanDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CleanupReport), args.Error(1)
}

func (m *MockNotificationService) CleanupLogs(ctx context.Context, actor domain.Actor, limit int) ([]*domain.CleanupReport, error) {
	args := m.Called(ctx, actor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CleanupReport), args.Error(1)
}

func notificationResult(args mock.Arguments) (*domain.Notification, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

// MockSyncService is a mock implementation of ports.SyncService
type MockSyncService struct {
	mock.Mock
}

func NewMockSyncService() *MockSyncService {
	return &MockSyncService{}
}

func (m *MockSyncService) Snapshot(ctx context.Context, viewer domain.Actor) (*domain.Snapshot, error) {
	args := m.Called(ctx, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockSyncService) EmitSystemEvent(ctx context.Context, actor domain.Actor, params ports.SystemEventParams) (*domain.SystemEvent, error) {
	args := m.Called(ctx, actor, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SystemEvent), args.Error(1)
}

// MockNotificationActions is a mock implementation of ports.NotificationActions
type MockNotificationActions struct {
	mock.Mock
}

func NewMockNotificationActions() *MockNotificationActions {
	return &MockNotificationActions{}
}

func (m *MockNotificationActions) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return notificationResult(m.Called(ctx, id))
}

func (m *MockNotificationActions) MarkAllRead(ctx context.Context) ([]*domain.Notification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationActions) Resolve(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error) {
	return notificationResult(m.Called(ctx, id, note))
}

func (m *MockNotificationActions) Archive(ctx context.Context, id uuid.UUID, note string) (*domain.Notification, error) {
	return notificationResult(m.Called(ctx, id, note))
}

func (m *MockNotificationActions) CleanupArchived(ctx context.Context, olderThanDays int) (*domain.CleanupReport, error) {
	args := m.Called(ctx, olderThanDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CleanupReport), args.Error(1)
}

// MockTicketActions is a mock implementation of ports.TicketActions
type MockTicketActions struct {
	mock.Mock
}

func NewMockTicketActions() *MockTicketActions {
	return &MockTicketActions{}
}

func (m *MockTicketActions) Assign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *MockTicketActions) Unassign(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *MockTicketActions) Reply(ctx context.Context, ticketID uuid.UUID, content string) (*domain.SupportTicket, *domain.TicketMessage, error) {
	args := m.Called(ctx, ticketID, content)
	var (
		t   *domain.SupportTicket
		msg *domain.TicketMessage
	)
	if v := args.Get(0); v != nil {
		t = v.(*domain.SupportTicket)
	}
	if v := args.Get(1); v != nil {
		msg = v.(*domain.TicketMessage)
	}
	return t, msg, args.Error(2)
}

func (m *MockTicketActions) Resolve(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

func (m *MockTicketActions) Close(ctx context.Context, ticketID uuid.UUID) (*domain.SupportTicket, error) {
	return ticketResult(m.Called(ctx, ticketID))
}

// MockSnapshotSource is a mock implementation of ports.SnapshotSource
type MockSnapshotSource struct {
	mock.Mock
}

func NewMockSnapshotSource() *MockSnapshotSource {
	return &MockSnapshotSource{}
}

func (m *MockSnapshotSource) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

// MockFilterPreferences is a mock implementation of ports.FilterPreferences
type MockFilterPreferences struct {
	mock.Mock
}

func NewMockFilterPreferences() *MockFilterPreferences {
	return &MockFilterPreferences{}
}

func (m *MockFilterPreferences) LoadFilter(ctx context.Context) (domain.NotificationFilter, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.NotificationFilter), args.Bool(1), args.Error(2)
}

func (m *MockFilterPreferences) SaveFilter(ctx context.Context, filter domain.NotificationFilter) error {
	return m.Called(ctx, filter).Error(0)
}
