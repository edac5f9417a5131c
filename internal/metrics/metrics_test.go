package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"demostack/internal/events"
)

func TestSetServiceUp(t *testing.T) {
	SetServiceUp("kafka-test", true)
	if got := testutil.ToFloat64(serviceUp.WithLabelValues("kafka-test")); got != 1 {
		t.Errorf("service_up = %v, want 1", got)
	}

	SetServiceUp("kafka-test", false)
	if got := testutil.ToFloat64(serviceUp.WithLabelValues("kafka-test")); got != 0 {
		t.Errorf("service_up = %v, want 0", got)
	}
}

func TestCountersAccumulate(t *testing.T) {
	IncRestarts("col-test")
	IncRestarts("col-test")
	if got := testutil.ToFloat64(restartsTotal.WithLabelValues("col-test")); got != 2 {
		t.Errorf("restarts_total = %v, want 2", got)
	}

	AddPortAllocationAttempts("svc-test", 3)
	if got := testutil.ToFloat64(portAllocationAttempts.WithLabelValues("svc-test")); got != 3 {
		t.Errorf("allocation_attempts_total = %v, want 3", got)
	}
}

func TestBindBusRecordsEvents(t *testing.T) {
	bus := events.New()
	unbind := BindBus(bus)
	defer unbind()

	bus.Publish(events.ServiceStateChangedEvent{Service: "bus-svc", NewState: "running"})
	bus.Publish(events.CollectorLineEvent{Collector: "bus-col", Line: "x"})

	// kelindar/event delivers asynchronously
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		up := testutil.ToFloat64(serviceUp.WithLabelValues("bus-svc"))
		lines := testutil.ToFloat64(collectorLinesTotal.WithLabelValues("bus-col"))
		if up == 1 && lines == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bus events never reached the metric recorders")
}
