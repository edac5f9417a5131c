package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan ServiceStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e ServiceStateChangedEvent) {
		received <- e
	})
	defer unsub()

	ev := ServiceStateChangedEvent{
		Service:   "kafka",
		OldState:  "starting",
		NewState:  "running",
		Timestamp: "2025-03-01T10:30:00Z",
	}
	bus.Publish(ev)

	got := <-received
	if got.Service != ev.Service {
		t.Errorf("Expected service %s, got %s", ev.Service, got.Service)
	}
	if got.NewState != "running" {
		t.Errorf("Expected new_state running, got %s", got.NewState)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan PortAllocatedEvent, 1)
	received2 := make(chan PortAllocatedEvent, 1)

	unsub1 := bus.Subscribe(func(e PortAllocatedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e PortAllocatedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(PortAllocatedEvent{Service: "kafka", Port: 9092, Attempts: 1})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CollectorLineEvent, 1)

	unsub := bus.Subscribe(func(e CollectorLineEvent) {
		received <- e
	})

	bus.Publish(CollectorLineEvent{Collector: "mqtt", Line: "first"})
	<-received

	unsub()

	bus.Publish(CollectorLineEvent{Collector: "mqtt", Line: "second"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	stateReceived := make(chan bool, 1)
	stopReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ServiceStateChangedEvent) {
		stateReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StopRequestedEvent) {
		stopReceived <- true
	})
	defer unsub2()

	bus.Publish(ServiceStateChangedEvent{Service: "kafka"})
	<-stateReceived

	select {
	case <-stopReceived:
		t.Fatal("Stop subscriber should NOT have received ServiceStateChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(StopRequestedEvent{Reason: "signal"})
	<-stopReceived
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ CollectorLineEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(CollectorLineEvent{
					Collector: "opcua",
					Line:      "Temperature: 25.00",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[ServiceStateChangedEvent](bus, ch)
	defer unsub()

	bus.Publish(ServiceStateChangedEvent{Service: "zookeeper", NewState: "running"})

	received := <-ch
	ev, ok := received.(ServiceStateChangedEvent)
	if !ok {
		t.Fatalf("Expected ServiceStateChangedEvent, got %T", received)
	}
	if ev.Service != "zookeeper" {
		t.Errorf("Expected service zookeeper, got %s", ev.Service)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[StopRequestedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(StopRequestedEvent{Reason: "signal"})
		done <- true
	}()

	<-done // Should complete without blocking
}
