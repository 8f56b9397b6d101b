package domain

// Visible decides whether viewer may receive the event. The same rules run on
// the server before enqueueing and on the client before applying.
func Visible(e Event, viewer Actor) bool {
	if !viewer.Role.IsValid() {
		return false
	}

	assignee := e.AssignedTo != nil && *e.AssignedTo == viewer.ID

	switch e.Payload.(type) {
	case NewTicket, TicketUnassigned:
		return viewer.IsAdmin()
	case SystemEvent:
		return viewer.IsSuperAdmin()
	case TicketReply, TicketStatusChanged:
		return viewer.IsAdmin() || assignee
	case TicketAssigned, TicketResolved:
		return viewer.IsSuperAdmin() || assignee
	case NotificationCreated, NotificationResolved, NotificationUpdated:
		return viewer.IsAdmin()
	}
	return false
}

// CanViewTicket decides which tickets appear in a viewer's snapshot. Support
// staff see the unassigned queue and their own tickets.
func CanViewTicket(t *SupportTicket, viewer Actor) bool {
	if viewer.IsAdmin() {
		return true
	}
	if viewer.Role != RoleSupport {
		return false
	}
	return t.AssignedTo == nil || *t.AssignedTo == viewer.ID
}

// CanViewNotifications decides whether the notification centre is available.
func CanViewNotifications(viewer Actor) bool {
	return viewer.IsAdmin()
}
