package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"demostack/internal/events"
)

// registerEventRoutes wires the native Huma SSE event stream.
func (s *Server) registerEventRoutes() {
	if s.options.Bus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of service state changes, port leases, collector lines, and stop requests",
		Tags:        []string{"events"},
	}, map[string]any{
		"service-state-changed": events.ServiceStateChangedEvent{},
		"port-allocated":        events.PortAllocatedEvent{},
		"collector-line":        events.CollectorLineEvent{},
		"stop-requested":        events.StopRequestedEvent{},
		"snapshot-rendered":     events.SnapshotRenderedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ServiceStateChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.PortAllocatedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.CollectorLineEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.StopRequestedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.SnapshotRenderedEvent](s.options.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial event so clients know the stream is live
		if err := send.Data(events.SnapshotRenderedEvent{
			Path:      s.options.DashboardPath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
