package connection

// State is the connection lifecycle of a session's push channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStale
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	}
	return "unknown"
}
