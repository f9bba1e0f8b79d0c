package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)

	evt := DecisionEvent{
		Principal: "alice",
		Resource:  "ViewReports",
		Allowed:   true,
		Timestamp: time.Now().UTC(),
	}
	s.Publish(evt)

	for name, ch := range map[string]<-chan DecisionEvent{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Principal != "alice" || !got.Allowed {
				t.Fatalf("subscriber %s: unexpected event %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s: no event received", name)
		}
	}
}

func TestSubscribeChannelClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context end")
	}

	// Publishing after unsubscribe must not panic or block.
	s.Publish(DecisionEvent{Principal: "bob", Resource: "X"})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(DecisionEvent{Principal: "alice", Resource: "Y"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}
