package events

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBusSequencesAndFilters(t *testing.T) {
	bus := NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := bus.Subscribe(ctx)
	audits := bus.Subscribe(ctx, KindAudit)

	bus.Emit(Event{Kind: KindRecordAdded, RecordID: 1})
	bus.Emit(Event{Kind: KindAudit, RecordID: 1})

	if e := recv(t, all); e.Seq != 1 || e.Kind != KindRecordAdded {
		t.Fatalf("first event = %+v", e)
	}
	if e := recv(t, all); e.Seq != 2 {
		t.Fatalf("second event = %+v", e)
	}
	if e := recv(t, audits); e.Kind != KindAudit || e.Seq != 2 {
		t.Fatalf("filtered event = %+v", e)
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	for i := 0; i < 5; i++ {
		bus.Emit(Event{Kind: KindAudit})
	}
	if e := recv(t, ch); e.Seq != 1 {
		t.Fatalf("expected first event to be buffered, got %+v", e)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event %+v", e)
	default:
	}
}

func TestBusUnsubscribeOnCancel(t *testing.T) {
	bus := NewBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	if bus.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", bus.Subscribers())
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after cancel", bus.Subscribers())
	}
	bus.Emit(Event{Kind: KindAudit})
}
