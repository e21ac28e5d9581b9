package hub

import (
	"testing"

	"tickarb/internal/application/port"
)

func TestSnapshotBeforeStream(t *testing.T) {
	snap := []port.Event{
		{Type: port.EventMarketSummary, Data: "summary"},
		{Type: port.EventInitialPrices, Data: "prices"},
	}
	h := New(8, func() []port.Event { return snap })

	sub := h.Register()
	h.Publish(port.Event{Type: port.EventPriceUpdate, Data: "tick"})

	want := []port.EventType{port.EventMarketSummary, port.EventInitialPrices, port.EventPriceUpdate}
	for i, wt := range want {
		ev := <-sub.Events()
		if ev.Type != wt {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, wt)
		}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New(8, nil)
	a := h.Register()
	b := h.Register()

	h.Publish(port.Event{Type: port.EventPriceUpdate, Data: 1})

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			if ev.Data != 1 {
				t.Errorf("data = %v, want 1", ev.Data)
			}
		default:
			t.Fatal("subscriber missed event")
		}
	}
}

func TestSlowSubscriberDropsOldestPriceUpdate(t *testing.T) {
	h := New(2, nil)
	sub := h.Register()

	for i := 0; i < 4; i++ {
		h.Publish(port.Event{Type: port.EventPriceUpdate, Data: i})
	}

	// queue held the last two; 0 and 1 were evicted
	first := <-sub.Events()
	second := <-sub.Events()
	if first.Data != 2 || second.Data != 3 {
		t.Errorf("queued events = %v, %v; want 2, 3", first.Data, second.Data)
	}
	if h.SubscriberCount() != 1 {
		t.Error("droppable overflow must not disconnect the subscriber")
	}
}

func TestSlowSubscriberDisconnectedOnSummary(t *testing.T) {
	h := New(1, nil)
	sub := h.Register()

	h.Publish(port.Event{Type: port.EventMarketSummary, Data: "a"})
	h.Publish(port.Event{Type: port.EventMarketSummary, Data: "b"}) // queue full

	if h.SubscriberCount() != 0 {
		t.Fatal("slow subscriber must be disconnected on non-droppable overflow")
	}

	// drain the one delivered event, then observe the close signal
	<-sub.Events()
	if _, ok := <-sub.Events(); ok {
		t.Error("channel must be closed after disconnect")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := New(4, nil)
	sub := h.Register()
	h.Unregister(sub)
	h.Unregister(sub) // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Error("channel must be closed after unregister")
	}
	h.Publish(port.Event{Type: port.EventPriceUpdate}) // must not panic
}
