package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names a realtime event on the push channel.
type EventKind string

const (
	KindNewTicket            EventKind = "new-ticket"
	KindTicketReply          EventKind = "ticket-reply"
	KindTicketAssigned       EventKind = "ticket-assigned"
	KindTicketUnassigned     EventKind = "ticket-unassigned"
	KindTicketResolved       EventKind = "ticket-resolved"
	KindTicketStatusChanged  EventKind = "ticket-status-changed"
	KindSystemEvent          EventKind = "system-event"
	KindNotificationCreated  EventKind = "notification-created"
	KindNotificationResolved EventKind = "notification-resolved"
	KindNotificationUpdated  EventKind = "notification-updated"
)

// Kinds lists every event kind in the taxonomy.
func Kinds() []EventKind {
	return []EventKind{
		KindNewTicket,
		KindTicketReply,
		KindTicketAssigned,
		KindTicketUnassigned,
		KindTicketResolved,
		KindTicketStatusChanged,
		KindSystemEvent,
		KindNotificationCreated,
		KindNotificationResolved,
		KindNotificationUpdated,
	}
}

// Payload is the closed set of event bodies. Only types in this package
// implement it.
type Payload interface {
	Kind() EventKind
	EntityID() string
	dispatch(h EventHandler, e Event)
}

// EventHandler receives one call per payload type. Adding a payload type adds
// a method here, so every handler has to deal with it before it compiles.
type EventHandler interface {
	OnNewTicket(e Event, p NewTicket)
	OnTicketReply(e Event, p TicketReply)
	OnTicketAssigned(e Event, p TicketAssigned)
	OnTicketUnassigned(e Event, p TicketUnassigned)
	OnTicketResolved(e Event, p TicketResolved)
	OnTicketStatusChanged(e Event, p TicketStatusChanged)
	OnSystemEvent(e Event, p SystemEvent)
	OnNotificationCreated(e Event, p NotificationCreated)
	OnNotificationResolved(e Event, p NotificationResolved)
	OnNotificationUpdated(e Event, p NotificationUpdated)
}

// Event is the envelope delivered to viewers. AssignedTo is the ticket's
// assignee at emission time and is what the visibility filter checks.
type Event struct {
	ID         string
	Timestamp  time.Time
	AssignedTo *uuid.UUID
	Payload    Payload
}

// NewEvent wraps a payload, capturing the ticket assignee when the payload
// carries a ticket.
func NewEvent(id string, payload Payload, at time.Time) Event {
	e := Event{ID: id, Timestamp: at, Payload: payload}
	if t := ticketOf(payload); t != nil && t.AssignedTo != nil {
		assignee := *t.AssignedTo
		e.AssignedTo = &assignee
	}
	return e
}

// Kind returns the payload's kind.
func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Key is the identity used for de-duplication: kind, entity and timestamp.
func (e Event) Key() string {
	var entity string
	if e.Payload != nil {
		entity = e.Payload.EntityID()
	}
	return fmt.Sprintf("%s|%s|%d", e.Kind(), entity, e.Timestamp.UnixNano())
}

// Dispatch calls the handler method matching the payload type.
func (e Event) Dispatch(h EventHandler) {
	if e.Payload != nil {
		e.Payload.dispatch(h, e)
	}
}

// NewTicket announces a freshly opened ticket.
type NewTicket struct {
	Ticket SupportTicket `json:"ticket"`
}

// TicketReply carries a staff message posted on a ticket.
type TicketReply struct {
	Ticket  SupportTicket `json:"ticket"`
	Message TicketMessage `json:"message"`
}

// TicketAssigned reports a lock taken, possibly by super_admin override.
type TicketAssigned struct {
	Ticket           SupportTicket `json:"ticket"`
	PreviousAssignee *uuid.UUID    `json:"previousAssignee,omitempty"`
	Override         bool          `json:"override,omitempty"`
}

// TicketUnassigned reports a released lock.
type TicketUnassigned struct {
	Ticket           SupportTicket `json:"ticket"`
	PreviousAssignee uuid.UUID     `json:"previousAssignee"`
}

// TicketResolved reports a ticket moved to resolved.
type TicketResolved struct {
	Ticket SupportTicket `json:"ticket"`
}

// TicketStatusChanged reports any other status transition, including close.
type TicketStatusChanged struct {
	Ticket         SupportTicket `json:"ticket"`
	PreviousStatus TicketStatus  `json:"previousStatus"`
}

// SystemEvent is an operational broadcast for super admins.
type SystemEvent struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// NotificationCreated carries a new notification.
type NotificationCreated struct {
	Notification Notification `json:"notification"`
}

// NotificationResolved carries the notification after resolve.
type NotificationResolved struct {
	Notification Notification `json:"notification"`
}

// NotificationUpdated carries the notification after read or archive.
type NotificationUpdated struct {
	Notification Notification `json:"notification"`
}

func (NewTicket) Kind() EventKind            { return KindNewTicket }
func (TicketReply) Kind() EventKind          { return KindTicketReply }
func (TicketAssigned) Kind() EventKind       { return KindTicketAssigned }
func (TicketUnassigned) Kind() EventKind     { return KindTicketUnassigned }
func (TicketResolved) Kind() EventKind       { return KindTicketResolved }
func (TicketStatusChanged) Kind() EventKind  { return KindTicketStatusChanged }
func (SystemEvent) Kind() EventKind          { return KindSystemEvent }
func (NotificationCreated) Kind() EventKind  { return KindNotificationCreated }
func (NotificationResolved) Kind() EventKind { return KindNotificationResolved }
func (NotificationUpdated) Kind() EventKind  { return KindNotificationUpdated }

func (p NewTicket) EntityID() string            { return p.Ticket.ID.String() }
func (p TicketReply) EntityID() string          { return p.Message.ID.String() }
func (p TicketAssigned) EntityID() string       { return p.Ticket.ID.String() }
func (p TicketUnassigned) EntityID() string     { return p.Ticket.ID.String() }
func (p TicketResolved) EntityID() string       { return p.Ticket.ID.String() }
func (p TicketStatusChanged) EntityID() string  { return p.Ticket.ID.String() }
func (p SystemEvent) EntityID() string          { return p.ID }
func (p NotificationCreated) EntityID() string  { return p.Notification.ID.String() }
func (p NotificationResolved) EntityID() string { return p.Notification.ID.String() }
func (p NotificationUpdated) EntityID() string  { return p.Notification.ID.String() }

func (p NewTicket) dispatch(h EventHandler, e Event)            { h.OnNewTicket(e, p) }
func (p TicketReply) dispatch(h EventHandler, e Event)          { h.OnTicketReply(e, p) }
func (p TicketAssigned) dispatch(h EventHandler, e Event)       { h.OnTicketAssigned(e, p) }
func (p TicketUnassigned) dispatch(h EventHandler, e Event)     { h.OnTicketUnassigned(e, p) }
func (p TicketResolved) dispatch(h EventHandler, e Event)       { h.OnTicketResolved(e, p) }
func (p TicketStatusChanged) dispatch(h EventHandler, e Event)  { h.OnTicketStatusChanged(e, p) }
func (p SystemEvent) dispatch(h EventHandler, e Event)          { h.OnSystemEvent(e, p) }
func (p NotificationCreated) dispatch(h EventHandler, e Event)  { h.OnNotificationCreated(e, p) }
func (p NotificationResolved) dispatch(h EventHandler, e Event) { h.OnNotificationResolved(e, p) }
func (p NotificationUpdated) dispatch(h EventHandler, e Event)  { h.OnNotificationUpdated(e, p) }

// TicketOf returns the ticket carried by a ticket payload, or nil.
func TicketOf(p Payload) *SupportTicket {
	return ticketOf(p)
}

// NotificationOf returns the notification carried by a notification payload, or nil.
func NotificationOf(p Payload) *Notification {
	switch v := p.(type) {
	case NotificationCreated:
		return &v.Notification
	case NotificationResolved:
		return &v.Notification
	case NotificationUpdated:
		return &v.Notification
	}
	return nil
}

func ticketOf(p Payload) *SupportTicket {
	switch v := p.(type) {
	case NewTicket:
		return &v.Ticket
	case TicketReply:
		return &v.Ticket
	case TicketAssigned:
		return &v.Ticket
	case TicketUnassigned:
		return &v.Ticket
	case TicketResolved:
		return &v.Ticket
	case TicketStatusChanged:
		return &v.Ticket
	}
	return nil
}
