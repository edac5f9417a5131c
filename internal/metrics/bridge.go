package metrics

import (
	"demostack/internal/events"
	"demostack/internal/stack"
)

// BindBus subscribes the metric recorders to the event bus so every
// state change, port lease, and captured line is counted. Returns an
// unsubscribe function.
func BindBus(bus *events.Bus) func() {
	unsubState := bus.Subscribe(func(e events.ServiceStateChangedEvent) {
		SetServiceUp(e.Service, e.NewState == string(stack.StateRunning))
	})
	unsubPorts := bus.Subscribe(func(e events.PortAllocatedEvent) {
		AddPortAllocationAttempts(e.Service, e.Attempts)
	})
	unsubLines := bus.Subscribe(func(e events.CollectorLineEvent) {
		IncCollectorLines(e.Collector)
	})

	return func() {
		unsubState()
		unsubPorts()
		unsubLines()
	}
}
