package chat

// State is the lifecycle of a single send through the engine.
//
//	Idle → Requesting → Streaming → Completed | Aborted | Failed
//
// Requesting can move straight to Failed on a bad HTTP status. Terminal
// states are per-stream: a new send is allowed from any state except
// Requesting and Streaming.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
