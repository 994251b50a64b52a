package wsclient

// ConnState is the client's connection state.
type ConnState int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting ConnState = iota

	// StateConnected means the socket is open and sends are permitted.
	StateConnected

	// StateDisconnected means the socket is gone; the client is either
	// waiting out a backoff delay or permanently stopped.
	StateDisconnected
)

// String returns the string representation of a ConnState.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
