package connection

// State is the connection lifecycle state. Exactly one value is held at
// a time, mutated only by the Manager.
type State int

const (
	// StateDisconnected is the initial state, and terminal after an
	// intentional disconnect or policy exhaustion.
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
