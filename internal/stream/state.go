package stream

import "time"

// State is the consumer's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Streaming
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MaxReconnectDelay caps ReconnectDelay.
const MaxReconnectDelay = time.Hour

// ReconnectDelay returns base * 2^attempt for a zero-based attempt index,
// capped at MaxReconnectDelay.
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < MaxReconnectDelay; i++ {
		d *= 2
	}
	return min(d, MaxReconnectDelay)
}
