package ingest

// State is a position in the ingestor's reconnect cycle:
// Disconnected -> Connecting -> Listening -> Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}
