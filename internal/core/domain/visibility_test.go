package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func payloadFor(kind domain.EventKind, ticket domain.SupportTicket) domain.Payload {
	switch kind {
	case domain.KindNewTicket:
		return domain.NewTicket{Ticket: ticket}
	case domain.KindTicketReply:
		return domain.TicketReply{Ticket: ticket, Message: domain.TicketMessage{ID: uuid.New(), TicketID: ticket.ID}}
	case domain.KindTicketAssigned:
		return domain.TicketAssigned{Ticket: ticket}
	case domain.KindTicketUnassigned:
		return domain.TicketUnassigned{Ticket: ticket}
	case domain.KindTicketResolved:
		return domain.TicketResolved{Ticket: ticket}
	case domain.KindTicketStatusChanged:
		return domain.TicketStatusChanged{Ticket: ticket}
	case domain.KindSystemEvent:
		return domain.SystemEvent{ID: "sys-1", Level: "warn", Message: "queue lag"}
	case domain.KindNotificationCreated:
		return domain.NotificationCreated{}
	case domain.KindNotificationResolved:
		return domain.NotificationResolved{}
	case domain.KindNotificationUpdated:
		return domain.NotificationUpdated{}
	}
	return nil
}

func TestVisible(t *testing.T) {
	support := actor(domain.RoleSupport, "Sam")
	otherSupport := actor(domain.RoleSupport, "Sue")
	admin := actor(domain.RoleAdmin, "Ada")
	root := actor(domain.RoleSuperAdmin, "Root")

	assigned := domain.SupportTicket{ID: uuid.New(), AssignedTo: &support.ID, Locked: true}

	type row struct {
		support, other, admin, root bool
	}

	// Expected visibility when the ticket is assigned to `support`.
	tests := map[domain.EventKind]row{
		domain.KindNewTicket:            {false, false, true, true},
		domain.KindTicketUnassigned:     {false, false, true, true},
		domain.KindSystemEvent:          {false, false, false, true},
		domain.KindTicketReply:          {true, false, true, true},
		domain.KindTicketStatusChanged:  {true, false, true, true},
		domain.KindTicketAssigned:       {true, false, false, true},
		domain.KindTicketResolved:       {true, false, false, true},
		domain.KindNotificationCreated:  {false, false, true, true},
		domain.KindNotificationResolved: {false, false, true, true},
		domain.KindNotificationUpdated:  {false, false, true, true},
	}

	for _, kind := range domain.Kinds() {
		want, ok := tests[kind]
		if !assert.True(t, ok, "kind %s has no visibility expectation", kind) {
			continue
		}
		t.Run(string(kind), func(t *testing.T) {
			e := domain.NewEvent("evt", payloadFor(kind, assigned), now)
			assert.Equal(t, want.support, domain.Visible(e, support), "assignee support")
			assert.Equal(t, want.other, domain.Visible(e, otherSupport), "other support")
			assert.Equal(t, want.admin, domain.Visible(e, admin), "admin")
			assert.Equal(t, want.root, domain.Visible(e, root), "super admin")
		})
	}
}

func TestVisible_SupportNeverSeesOthersReplies(t *testing.T) {
	viewer := actor(domain.RoleSupport, "Sam")

	owners := []*uuid.UUID{nil}
	for i := 0; i < 20; i++ {
		id := uuid.New()
		owners = append(owners, &id)
	}

	for _, owner := range owners {
		ticket := domain.SupportTicket{ID: uuid.New(), AssignedTo: owner, Locked: owner != nil}
		e := domain.NewEvent("evt", payloadFor(domain.KindTicketReply, ticket), now)
		assert.False(t, domain.Visible(e, viewer))
	}
}

func TestVisible_UsesAssigneeAtEmission(t *testing.T) {
	support := actor(domain.RoleSupport, "Sam")
	ticket := domain.SupportTicket{ID: uuid.New(), AssignedTo: &support.ID, Locked: true}
	e := domain.NewEvent("evt", domain.TicketReply{Ticket: ticket}, now)

	// Mutating the source ticket after emission does not change the envelope.
	other := uuid.New()
	ticket.AssignedTo = &other

	assert.True(t, domain.Visible(e, support))
}

func TestVisible_RejectsUnknownRoles(t *testing.T) {
	viewer := domain.Actor{ID: uuid.New(), Role: "guest"}
	e := domain.NewEvent("evt", domain.NewTicket{}, now)
	assert.False(t, domain.Visible(e, viewer))
	assert.False(t, domain.Visible(domain.Event{}, actor(domain.RoleSuperAdmin, "Root")))
}

func TestCanViewTicket(t *testing.T) {
	support := actor(domain.RoleSupport, "Sam")
	other := uuid.New()

	unassigned := &domain.SupportTicket{}
	mine := &domain.SupportTicket{AssignedTo: &support.ID, Locked: true}
	theirs := &domain.SupportTicket{AssignedTo: &other, Locked: true}

	assert.True(t, domain.CanViewTicket(unassigned, support))
	assert.True(t, domain.CanViewTicket(mine, support))
	assert.False(t, domain.CanViewTicket(theirs, support))
	assert.True(t, domain.CanViewTicket(theirs, actor(domain.RoleAdmin, "Ada")))
}

func TestActorPermissions(t *testing.T) {
	tests := []struct {
		role domain.Role
		want []string
	}{
		{domain.RoleSupport, []string{domain.PermTicketsWork}},
		{domain.RoleAdmin, []string{domain.PermNotificationsManage, domain.PermTicketsViewAll, domain.PermTicketsWork}},
		{domain.RoleSuperAdmin, []string{domain.PermNotificationsManage, domain.PermSystemEventsEmit, domain.PermTicketsOverride, domain.PermTicketsViewAll, domain.PermTicketsWork}},
		{domain.Role("guest"), []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Actor{ID: uuid.New(), Role: tt.role}.Permissions())
		})
	}
}
