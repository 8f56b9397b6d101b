package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

const (
	MaxSubjectLength = 255
	MaxMessageLength = 10000
)

// TicketStatus represents the possible states of a support ticket.
type TicketStatus string

const (
	StatusNew        TicketStatus = "new"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// IsValid checks if the status is a known value.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsFinal reports whether the ticket no longer accepts assignment or replies.
func (s TicketStatus) IsFinal() bool {
	return s == StatusResolved || s == StatusClosed
}

// TicketPriority represents the urgency of a ticket.
type TicketPriority string

const (
	TicketPriorityUrgent TicketPriority = "urgent"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityLow    TicketPriority = "low"
)

// IsValid checks if the priority is a known value.
func (p TicketPriority) IsValid() bool {
	switch p {
	case TicketPriorityUrgent, TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return true
	}
	return false
}

// TicketCategory groups tickets by topic.
type TicketCategory string

const (
	CategoryPayment   TicketCategory = "payment"
	CategoryTechnical TicketCategory = "technical"
	CategoryAccount   TicketCategory = "account"
	CategoryProduct   TicketCategory = "product"
	CategoryOther     TicketCategory = "other"
)

// IsValid checks if the category is a known value.
func (c TicketCategory) IsValid() bool {
	switch c {
	case CategoryPayment, CategoryTechnical, CategoryAccount, CategoryProduct, CategoryOther:
		return true
	}
	return false
}

// SupportTicket is a customer request worked by exactly one staff member at a time.
// Locked is true exactly when AssignedTo is set.
type SupportTicket struct {
	ID             uuid.UUID      `json:"id"`
	Subject        string         `json:"subject"`
	Email          string         `json:"email"`
	Category       TicketCategory `json:"category"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	AssignedTo     *uuid.UUID     `json:"assignedTo"`
	AssignedToName string         `json:"assignedToName,omitempty"`
	Locked         bool           `json:"locked"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TicketMessage is one immutable entry in a ticket conversation.
type TicketMessage struct {
	ID         uuid.UUID  `json:"id"`
	TicketID   uuid.UUID  `json:"ticketId"`
	Content    string     `json:"content"`
	FromAdmin  bool       `json:"fromAdmin"`
	AuthorID   *uuid.UUID `json:"authorId,omitempty"`
	AuthorName string     `json:"authorName,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// TicketParams holds the input for opening a ticket.
type TicketParams struct {
	Subject  string
	Email    string
	Category TicketCategory
	Priority TicketPriority
	Message  string
}

// Validate checks the ticket params.
func (p TicketParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		errs.Add("subject", apperrors.ErrSubjectRequired.Error())
	} else if len(subject) > MaxSubjectLength {
		errs.Add("subject", apperrors.ErrSubjectTooLong.Error())
	}
	if strings.TrimSpace(p.Email) == "" {
		errs.Add("email", apperrors.ErrEmailRequired.Error())
	}
	if p.Category != "" && !p.Category.IsValid() {
		errs.Add("category", apperrors.ErrInvalidCategory.Error())
	}
	if !p.Priority.IsValid() {
		errs.Add("priority", apperrors.ErrInvalidPriority.Error())
	}
	if len(p.Message) > MaxMessageLength {
		errs.Add("message", apperrors.ErrMessageTooLong.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NewSupportTicket is a factory function to create a valid, unassigned ticket.
func NewSupportTicket(params TicketParams, now time.Time) (*SupportTicket, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	category := params.Category
	if category == "" {
		category = CategoryOther
	}

	return &SupportTicket{
		ID:        uuid.New(),
		Subject:   strings.TrimSpace(params.Subject),
		Email:     strings.TrimSpace(params.Email),
		Category:  category,
		Status:    StatusNew,
		Priority:  params.Priority,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsAssignedTo reports whether the actor currently holds the lock.
func (t *SupportTicket) IsAssignedTo(actorID uuid.UUID) bool {
	return t.Locked && t.AssignedTo != nil && *t.AssignedTo == actorID
}

// Assignment describes the outcome of a successful Assign.
type Assignment struct {
	Previous *uuid.UUID
	Override bool
}

// Assign takes the lock for the actor. A super_admin can take a lock held by
// someone else; the result reports that as an override.
func (t *SupportTicket) Assign(actor Actor, now time.Time) (Assignment, error) {
	if t.Status.IsFinal() {
		return Assignment{}, apperrors.ErrTicketFinal
	}

	var result Assignment
	if t.Locked && t.AssignedTo != nil {
		if *t.AssignedTo == actor.ID {
			return Assignment{}, nil
		}
		if !actor.IsSuperAdmin() {
			return Assignment{}, t.conflict()
		}
		prev := *t.AssignedTo
		result = Assignment{Previous: &prev, Override: true}
	}

	id := actor.ID
	t.AssignedTo = &id
	t.AssignedToName = actor.Name
	t.Locked = true
	if t.Status == StatusNew {
		t.Status = StatusInProgress
	}
	t.touch(now)
	return result, nil
}

// Unassign releases the lock. Only the holder or a super_admin may do it.
func (t *SupportTicket) Unassign(actor Actor, now time.Time) (uuid.UUID, error) {
	if !t.Locked || t.AssignedTo == nil {
		return uuid.Nil, apperrors.ErrNotLocked
	}
	if *t.AssignedTo != actor.ID && !actor.IsSuperAdmin() {
		return uuid.Nil, apperrors.ErrNotOwner
	}

	prev := *t.AssignedTo
	t.AssignedTo = nil
	t.AssignedToName = ""
	t.Locked = false
	t.touch(now)
	return prev, nil
}

// CanReply checks the lock rules for posting a staff reply.
func (t *SupportTicket) CanReply(actor Actor) error {
	if t.Status == StatusClosed {
		return apperrors.ErrTicketFinal
	}
	if !t.Locked || t.AssignedTo == nil {
		return apperrors.ErrNotLocked
	}
	if *t.AssignedTo != actor.ID && !actor.IsSuperAdmin() {
		return apperrors.ErrNotOwner
	}
	return nil
}

// Reply builds the staff message and advances a new ticket to in_progress.
func (t *SupportTicket) Reply(actor Actor, content string, now time.Time) (TicketMessage, error) {
	if err := t.CanReply(actor); err != nil {
		return TicketMessage{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return TicketMessage{}, apperrors.ErrMessageRequired
	}
	if len(content) > MaxMessageLength {
		return TicketMessage{}, apperrors.ErrMessageTooLong
	}

	author := actor.ID
	msg := TicketMessage{
		ID:         uuid.New(),
		TicketID:   t.ID,
		Content:    content,
		FromAdmin:  true,
		AuthorID:   &author,
		AuthorName: actor.Name,
		CreatedAt:  now,
	}
	if t.Status == StatusNew {
		t.Status = StatusInProgress
	}
	t.touch(now)
	return msg, nil
}

// Resolve marks the ticket resolved. The assignee keeps the lock.
func (t *SupportTicket) Resolve(actor Actor, now time.Time) error {
	if t.Status.IsFinal() {
		return apperrors.ErrTicketFinal
	}
	if err := t.checkHolder(actor); err != nil {
		return err
	}
	t.Status = StatusResolved
	t.touch(now)
	return nil
}

// Close marks the ticket closed. Closing a resolved ticket is allowed.
func (t *SupportTicket) Close(actor Actor, now time.Time) (TicketStatus, error) {
	if t.Status == StatusClosed {
		return "", apperrors.ErrTicketFinal
	}
	if err := t.checkHolder(actor); err != nil {
		return "", err
	}
	prev := t.Status
	t.Status = StatusClosed
	t.touch(now)
	return prev, nil
}

// Clone returns a deep copy.
func (t *SupportTicket) Clone() *SupportTicket {
	if t == nil {
		return nil
	}
	c := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	return &c
}

func (t *SupportTicket) checkHolder(actor Actor) error {
	if actor.IsSuperAdmin() {
		return nil
	}
	if !t.Locked || t.AssignedTo == nil {
		return apperrors.ErrNotLocked
	}
	if *t.AssignedTo != actor.ID {
		return apperrors.ErrNotOwner
	}
	return nil
}

func (t *SupportTicket) conflict() error {
	owner := *t.AssignedTo
	return &apperrors.LockConflictError{
		TicketID:  t.ID,
		Owner:     &owner,
		OwnerName: t.AssignedToName,
		Err:       apperrors.ErrAlreadyLocked,
	}
}

func (t *SupportTicket) touch(now time.Time) {
	t.UpdatedAt = now
	t.Version++
}
