package eventbus

import (
	"testing"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := New()
	sub1 := bus.Subscribe(4)
	sub2 := bus.Subscribe(4)
	defer sub1.Close()
	defer sub2.Close()

	bus.Publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionStarted, ExecutionID: "e1"})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			if ev.ExecutionID != "e1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishDropsOnFullBufferAndCountsLag(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(1)
	defer sub.Close()

	bus.Publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionStarted})
	bus.Publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionCompleted})

	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sub.Dropped())
	}

	<-sub.Events()
}

func TestCloseStopsDeliveryAndIsIdempotent(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(4)
	sub.Close()
	sub.Close()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	bus.Publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionStarted})

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel to yield no further events")
	}
}

func TestSubscriberCountReflectsLiveSubscriptions(t *testing.T) {
	bus := New()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0, got %d", bus.SubscriberCount())
	}
	sub := bus.Subscribe(1)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1, got %d", bus.SubscriberCount())
	}
	sub.Close()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 after close, got %d", bus.SubscriberCount())
	}
}
