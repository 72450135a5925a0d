package gateway

import (
	"context"

	"github.com/cratos-ai/orchestrator/internal/eventbus"
)

// busLaggedEvent is sent to a connection once it detects dropped events on
// its subscription, matching the bounded-buffer backpressure contract.
const busLaggedEvent = "bus.lagged"

// EventSubscriber is the subset of the Event Bus a connection forwarder
// needs; satisfied structurally by *eventbus.Bus.
type EventSubscriber interface {
	Subscribe(bufferSize int) *eventbus.Subscription
}

// ForwardEvents relays bus events matching sessionKey to sink as Event
// frames until ctx is cancelled or the subscription drops. A zero
// sessionKey forwards every event on the bus, used for an operator/admin
// connection rather than a single chat session.
func ForwardEvents(ctx context.Context, bus EventSubscriber, sessionKey string, sink func(Event)) {
	sub := bus.Subscribe(eventbus.DefaultSubscriberBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if sessionKey != "" && ev.SessionKey != "" && ev.SessionKey != sessionKey {
				continue
			}
			sink(eventToFrame(ev))
			if sub.Dropped() > 0 {
				sink(Event{Event: busLaggedEvent})
			}
		}
	}
}
