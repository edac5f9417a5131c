package events

// Event type constants for kelindar/event.
const (
	TypeServiceStateChanged uint32 = iota + 1
	TypePortAllocated
	TypeCollectorLine
	TypeStopRequested
	TypeSnapshotRendered
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ServiceStateChangedEvent represents a supervised service changing state.
type ServiceStateChangedEvent struct {
	Service   string `json:"service" example:"kafka" doc:"Service identifier"`
	OldState  string `json:"old_state" example:"starting" doc:"Previous state"`
	NewState  string `json:"new_state" example:"running" doc:"New state"`
	Error     string `json:"error,omitempty" doc:"Error detail when the new state is error"`
	Timestamp string `json:"timestamp" example:"2025-03-01T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServiceStateChangedEvent.
func (e ServiceStateChangedEvent) Type() uint32 { return TypeServiceStateChanged }

// PortAllocatedEvent represents a successful port lease.
type PortAllocatedEvent struct {
	Service   string `json:"service" example:"kafka" doc:"Service the port was leased for"`
	Port      int    `json:"port" example:"9092" doc:"Leased port"`
	Attempts  int    `json:"attempts" example:"1" doc:"Candidates tried before success"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for PortAllocatedEvent.
func (e PortAllocatedEvent) Type() uint32 { return TypePortAllocated }

// CollectorLineEvent represents one line captured from a data stream.
type CollectorLineEvent struct {
	Collector string `json:"collector" example:"mqtt" doc:"Collector identifier"`
	Source    string `json:"source" example:"stdout" doc:"Output stream the line came from"`
	Line      string `json:"line" doc:"Raw captured line"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for CollectorLineEvent.
func (e CollectorLineEvent) Type() uint32 { return TypeCollectorLine }

// StopRequestedEvent represents the global stop signal being set.
type StopRequestedEvent struct {
	Reason    string `json:"reason" example:"signal" doc:"What triggered the stop: signal, marker, api"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for StopRequestedEvent.
func (e StopRequestedEvent) Type() uint32 { return TypeStopRequested }

// SnapshotRenderedEvent represents a completed dashboard render cycle.
type SnapshotRenderedEvent struct {
	Path      string `json:"path" doc:"Path of the published snapshot"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SnapshotRenderedEvent.
func (e SnapshotRenderedEvent) Type() uint32 { return TypeSnapshotRendered }

// LogEntryEvent carries a structured log entry onto the bus for SSE clients.
type LogEntryEvent struct {
	Level     string `json:"level" example:"info" doc:"Log level"`
	Module    string `json:"module" example:"stack" doc:"Originating module"`
	Message   string `json:"message" doc:"Log message"`
	Timestamp string `json:"timestamp" doc:"Log timestamp"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
