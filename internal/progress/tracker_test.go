package progress

import (
	"context"
	"testing"
	"time"
)

func TestTrackerDeliversSentEventsToSubscriber(t *testing.T) {
	tr := NewTracker(0)
	sub := tr.Subscribe()
	defer sub.Close()

	tr.Send(1)
	tr.Send(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Recv(ctx)
	if !ok || first != 1 {
		t.Fatalf("Recv() = %d, %v; want 1, true", first, ok)
	}
	second, ok := sub.Recv(ctx)
	if !ok || second != 2 {
		t.Fatalf("Recv() = %d, %v; want 2, true", second, ok)
	}
}

func TestTrackerRecvReturnsFalseOnContextDone(t *testing.T) {
	tr := NewTracker(0)
	sub := tr.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := sub.Recv(ctx)
	if ok {
		t.Fatal("expected Recv to time out with no events sent")
	}
}

func TestTrackerLaggedSubscriberResyncsToLatest(t *testing.T) {
	tr := NewTracker(0)
	sub := tr.Subscribe()
	defer sub.Close()

	// Flood past the subscriber's buffer without ever draining it.
	for i := 1; i <= subChanCapacity+10; i++ {
		tr.Send(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := sub.Recv(ctx)
	if !ok {
		t.Fatal("expected a resynced value, got ok=false")
	}
	if got != subChanCapacity+10 {
		t.Errorf("Recv() = %d; want latest value %d", got, subChanCapacity+10)
	}
}

func TestTrackerCloseStopsDelivery(t *testing.T) {
	tr := NewTracker(0)
	sub := tr.Subscribe()
	sub.Close()

	tr.Send(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := sub.Recv(ctx); ok {
		t.Error("expected no delivery after Close")
	}
}

func TestTrackerMultipleSubscribersEachReceive(t *testing.T) {
	tr := NewTracker(0)
	subA := tr.Subscribe()
	subB := tr.Subscribe()
	defer subA.Close()
	defer subB.Close()

	tr.Send(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a, okA := subA.Recv(ctx)
	b, okB := subB.Recv(ctx)
	if !okA || a != 42 || !okB || b != 42 {
		t.Errorf("expected both subscribers to see 42, got a=%d(%v) b=%d(%v)", a, okA, b, okB)
	}
}
