package notifications

import (
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// intent is a user action applied locally but not yet confirmed by the
// server. prior is the state to restore if the action fails and nothing
// authoritative has replaced the optimistic copy in the meantime.
type intent struct {
	action  domain.HistoryAction
	prior   *domain.Notification
	version int64
}

// supersededBy reports whether an authoritative copy already covers the
// optimistic change.
func (in *intent) supersededBy(n *domain.Notification) bool {
	return n.Version >= in.version
}
