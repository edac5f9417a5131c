package events

import "github.com/kelindar/event"

// SubscribeToChannel adapts a typed subscription to a channel, which
// the SSE handlers consume in their select loops. Delivery is
// non-blocking: when the channel is full the event is dropped rather
// than stalling the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
