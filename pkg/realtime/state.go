package realtime

// State represents the connection lifecycle state
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted
	StateDisconnected State = iota

	// StateConnecting means the initial connection is being established
	StateConnecting

	// StateConnected means the connection is live
	StateConnected

	// StateReconnecting means the connection was lost and is being re-established
	StateReconnecting
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
