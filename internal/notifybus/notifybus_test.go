package notifybus

import (
	"context"
	"testing"
	"time"
)

func TestHasPrefix(t *testing.T) {
	cases := map[string]bool{
		"request:/a":     true,
		"response:foo":   true,
		"setting:key":    true,
		"database:alias": true,
		"unknown stuff":  false,
		"":               false,
	}
	for payload, want := range cases {
		if got := HasPrefix(payload); got != want {
			t.Errorf("HasPrefix(%q) = %v, want %v", payload, got, want)
		}
	}
}

func TestFanOutDropsOldestWhenFull(t *testing.T) {
	b := &Bus{subscribers: make(map[int]chan Message)}
	ch := make(chan Message, 2)
	b.subscribers[0] = ch

	b.fanOut(Message{Text: "one"})
	b.fanOut(Message{Text: "two"})
	b.fanOut(Message{Text: "three"})

	first := <-ch
	second := <-ch
	if first.Text != "two" || second.Text != "three" {
		t.Fatalf("expected oldest message dropped, got %q then %q", first.Text, second.Text)
	}
}

func TestSubscribeFanOutReachesEveryIsolate(t *testing.T) {
	b := New(nil, "nino")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)

	b.fanOut(Message{Text: "request:foo"})

	for _, ch := range []<-chan Message{a, c} {
		select {
		case msg := <-ch:
			if msg.Text != "request:foo" {
				t.Fatalf("got %q, want request:foo", msg.Text)
			}
		case <-time.After(time.Second):
			t.Fatal("a subscriber did not receive the broadcast message")
		}
	}
}

func TestSubscribeClosesOnContextCancel(t *testing.T) {
	b := New(nil, "nino")
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel was never removed after context cancel")
		}
	}
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := New(nil, "nino")
	ch := b.Subscribe(context.Background())

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel closed")
	}

	second := b.Subscribe(context.Background())
	if _, ok := <-second; ok {
		t.Fatal("expected Subscribe after Close to hand back an already-closed channel")
	}
}
