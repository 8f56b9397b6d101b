package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// Control frame names. They share the stream with event frames but carry no
// domain payload.
const (
	FrameConnected      = "connected"
	FramePing           = "ping"
	FrameResyncRequired = "resync-required"
)

// Frame is one named message on the push channel.
type Frame struct {
	ID   string
	Name string
	Data []byte
}

// IsControl reports whether the frame is a connected, ping or resync frame.
func (f Frame) IsControl() bool {
	switch f.Name {
	case FrameConnected, FramePing, FrameResyncRequired:
		return true
	}
	return false
}

// Greeting is the body of the connected frame.
type Greeting struct {
	ViewerID uuid.UUID `json:"viewerId"`
	Role     Role      `json:"role"`
	At       time.Time `json:"at"`
}

// wireEvent is the JSON shape of an event frame's data.
type wireEvent struct {
	ID         string          `json:"id"`
	Kind       EventKind       `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	AssignedTo *uuid.UUID      `json:"assignedTo"`
	Payload    json.RawMessage `json:"payload"`
}

// MarshalEvent encodes an event as frame data.
func MarshalEvent(e Event) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("marshal event %q: %w", e.ID, apperrors.ErrMalformedEventData)
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind(), err)
	}
	return json.Marshal(wireEvent{
		ID:         e.ID,
		Kind:       e.Kind(),
		Timestamp:  e.Timestamp,
		AssignedTo: e.AssignedTo,
		Payload:    raw,
	})
}

// UnmarshalEvent decodes frame data back into a typed event. Unknown kinds
// return ErrUnknownEventKind.
func UnmarshalEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEventData, err)
	}

	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:         w.ID,
		Timestamp:  w.Timestamp,
		AssignedTo: w.AssignedTo,
		Payload:    payload,
	}, nil
}

// EventFrame builds the frame for an event.
func EventFrame(e Event) (Frame, error) {
	data, err := MarshalEvent(e)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: e.ID, Name: string(e.Kind()), Data: data}, nil
}

// ParseFrame decodes an event frame. The frame name has to agree with the
// kind in the body.
func ParseFrame(f Frame) (Event, error) {
	e, err := UnmarshalEvent(f.Data)
	if err != nil {
		return Event{}, err
	}
	if f.Name != "" && f.Name != "message" && EventKind(f.Name) != e.Kind() {
		return Event{}, fmt.Errorf("%w: frame %q carries %q", apperrors.ErrMalformedEventData, f.Name, e.Kind())
	}
	return e, nil
}

func decodePayload(kind EventKind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindNewTicket:
		return decodeAs[NewTicket](raw)
	case KindTicketReply:
		return decodeAs[TicketReply](raw)
	case KindTicketAssigned:
		return decodeAs[TicketAssigned](raw)
	case KindTicketUnassigned:
		return decodeAs[TicketUnassigned](raw)
	case KindTicketResolved:
		return decodeAs[TicketResolved](raw)
	case KindTicketStatusChanged:
		return decodeAs[TicketStatusChanged](raw)
	case KindSystemEvent:
		return decodeAs[SystemEvent](raw)
	case KindNotificationCreated:
		return decodeAs[NotificationCreated](raw)
	case KindNotificationResolved:
		return decodeAs[NotificationResolved](raw)
	case KindNotificationUpdated:
		return decodeAs[NotificationUpdated](raw)
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEventKind, kind)
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedEventData, err)
	}
	return p, nil
}
