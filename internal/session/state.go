package session

// State is the lifecycle position of the current session.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateExchanging
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExchanging:
		return "exchanging"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
