package tickets

import (
	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// Action names a ticket operation started by the local user.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionUnassign Action = "unassign"
	ActionReply    Action = "reply"
	ActionResolve  Action = "resolve"
	ActionClose    Action = "close"
)

// Conflict is emitted when the server's state overrides a pending action,
// for example another actor taking the lock first.
type Conflict struct {
	TicketID  uuid.UUID
	Action    Action
	Owner     *uuid.UUID
	OwnerName string
}

type intent struct {
	action  Action
	prior   *domain.SupportTicket
	version int64
	// message is the optimistic reply, if any.
	message *domain.TicketMessage
}

// confirmedBy reports whether t is the outcome the intent expected for actor.
func (in *intent) confirmedBy(t *domain.SupportTicket, actor uuid.UUID) bool {
	switch in.action {
	case ActionAssign:
		return t.IsAssignedTo(actor)
	case ActionUnassign:
		return !t.Locked
	case ActionResolve:
		return t.Status == domain.StatusResolved || t.Status == domain.StatusClosed
	case ActionClose:
		return t.Status == domain.StatusClosed
	case ActionReply:
		return t.Status != domain.StatusNew
	}
	return false
}
