package acquisition

import "fmt"

// State is the device connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session failure stages, used as metric labels.
const (
	stageConnect   = "connect"
	stageSubscribe = "subscribe"
	stageWrite     = "write"
	stageReply     = "reply"
)

type sessionError struct {
	stage string
	err   error
}

func (e *sessionError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *sessionError) Unwrap() error { return e.err }
