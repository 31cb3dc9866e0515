package logsink

import "testing"

func TestNoopSink(t *testing.T) {
	var s Sink = NoopSink{}
	if err := s.Enqueue(nil, Entry{LogMessage: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultConfigIsSane(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BufferSize <= 0 || cfg.BatchSize <= 0 || cfg.FlushInterval <= 0 {
		t.Fatalf("expected positive defaults, got %+v", cfg)
	}
	if cfg.BatchSize > cfg.BufferSize {
		t.Fatalf("batch size %d should not exceed buffer size %d", cfg.BatchSize, cfg.BufferSize)
	}
}
