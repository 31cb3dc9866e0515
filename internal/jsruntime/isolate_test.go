package jsruntime

import (
	"context"
	"testing"
	"time"

	"nino/internal/domain"
	"nino/internal/logsink"
	"nino/internal/taskqueue"
)

func TestIsolateRunConsumesQueuedTasks(t *testing.T) {
	queue := taskqueue.New(4)
	iso := New(0, queue, nil, nil, logsink.NoopSink{}, "secret", "nino")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		iso.Run(ctx, nil)
		close(done)
	}()

	if err := queue.Enqueue(context.Background(), domain.Task{
		Kind:    domain.TaskMessage,
		Message: &domain.MessageTask{Text: "request:/foo"},
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// The isolate has no onMessage handler bound, so runMessage is a no-op;
	// closing the queue right after is enough to prove Run drained the
	// enqueued task instead of stalling on the select.
	queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the queue closed")
	}
	cancel()
}

func TestIsolateRunExitsOnContextCancel(t *testing.T) {
	queue := taskqueue.New(1)
	iso := New(1, queue, nil, nil, logsink.NoopSink{}, "secret", "nino")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		iso.Run(ctx, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx was cancelled")
	}
}
