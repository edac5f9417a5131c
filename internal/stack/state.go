package stack

// State represents a managed service's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// IsActive reports whether the service currently has a live process.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}
