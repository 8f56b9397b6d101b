package domain

import "time"

// Snapshot is the authoritative state a client resyncs from.
type Snapshot struct {
	Notifications []Notification  `json:"notifications"`
	Tickets       []SupportTicket `json:"tickets"`
	Messages      []TicketMessage `json:"messages"`
	GeneratedAt   time.Time       `json:"generatedAt"`
}
