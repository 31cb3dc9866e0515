package taskqueue

import (
	"context"
	"testing"

	"nino/internal/domain"
)

func TestEnqueueNextRoundTrip(t *testing.T) {
	q := New(1)
	done := make(chan struct{})

	want := domain.Task{Kind: domain.TaskMessage, Message: &domain.MessageTask{Text: "hi"}}
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, ok := q.Next(done)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.Message.Text != "hi" {
		t.Fatalf("got %q, want hi", got.Message.Text)
	}
}

func TestCloseDrainsThenReturnsFalse(t *testing.T) {
	q := New(2)
	done := make(chan struct{})
	_ = q.Enqueue(context.Background(), domain.Task{Kind: domain.TaskMessage, Message: &domain.MessageTask{Text: "a"}})
	q.Close()

	if _, ok := q.Next(done); !ok {
		t.Fatal("expected the buffered task to still be delivered after Close")
	}
	if _, ok := q.Next(done); ok {
		t.Fatal("expected ok=false once drained and closed")
	}
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()
	if err := q.Enqueue(context.Background(), domain.Task{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestChanDeliversSameTasksAsNext(t *testing.T) {
	q := New(1)
	want := domain.Task{Kind: domain.TaskMessage, Message: &domain.MessageTask{Text: "via chan"}}
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, ok := <-q.Chan()
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.Message.Text != "via chan" {
		t.Fatalf("got %q, want %q", got.Message.Text, "via chan")
	}
}

func TestChanClosesWithQueue(t *testing.T) {
	q := New(1)
	q.Close()
	if _, ok := <-q.Chan(); ok {
		t.Fatal("expected Chan to report closed once drained")
	}
}
