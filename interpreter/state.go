package interpreter

// State is the lifecycle of a Runner
type State int32

const (
	// StateIdle means no run is active
	StateIdle State = iota
	// StateRunning means a run is executing chains
	StateRunning
	// StateCancelled means the last run ended through its token or context
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
