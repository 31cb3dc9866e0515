// Package logsink is the invocation log writer behind the `log` host op
// (§4.7): a bounded, fire-and-forget channel-backed batcher so a slow
// insert into nino_log never blocks an isolate's goroutine.
//
// Grounded on the teacher's logsink abstraction (internal/logsink/sink.go,
// a pluggable LogSink fanning writes to PostgreSQL), narrowed to the one
// row shape nino's log table has and widened with the batching and
// bounded-channel behavior the teacher's executor applied at the call
// site rather than inside the sink itself.
package logsink

import (
	"context"
	"fmt"
	"time"

	"nino/internal/dbfacade"
	"nino/internal/logging"
)

// Entry is one row of nino_log.
type Entry struct {
	Method     string
	Request    string
	Response   string
	LogMessage string
}

// Sink accepts invocation log entries without blocking the caller.
type Sink interface {
	Enqueue(ctx context.Context, e Entry) error
	Close() error
}

// NoopSink discards every entry; useful for tests and for isolates that
// have no DB facade configured yet.
type NoopSink struct{}

func (NoopSink) Enqueue(context.Context, Entry) error { return nil }
func (NoopSink) Close() error                         { return nil }

// PostgresBatchSink buffers entries on a bounded channel and flushes them
// to nino_log in batches, either when the batch fills or on a fixed
// interval, whichever comes first.
type PostgresBatchSink struct {
	db            *dbfacade.Facade
	ch            chan Entry
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
}

// Config controls the batcher's size/latency tradeoff.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig matches the teacher's invocation-log batcher defaults,
// scaled down for nino's lower expected log volume.
func DefaultConfig() Config {
	return Config{BufferSize: 1024, BatchSize: 64, FlushInterval: 2 * time.Second}
}

// NewPostgresBatchSink starts the background flush loop and returns a sink
// ready to accept entries.
func NewPostgresBatchSink(db *dbfacade.Facade, cfg Config) *PostgresBatchSink {
	s := &PostgresBatchSink{
		db:            db,
		ch:            make(chan Entry, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue never blocks: a full buffer drops the entry and logs the drop
// operationally, since log loss is preferable to slowing down the hot
// path.
func (s *PostgresBatchSink) Enqueue(_ context.Context, e Entry) error {
	select {
	case s.ch <- e:
		return nil
	default:
		logging.Op().Warn("log sink buffer full, dropping entry")
		return nil
	}
}

func (s *PostgresBatchSink) run() {
	batch := make([]Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.write(batch); err != nil {
			logging.Op().Error("log batch write failed", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				flush()
				close(s.done)
				return
			}
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *PostgresBatchSink) write(batch []Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, e := range batch {
		if _, err := s.db.Execute(ctx, `INSERT INTO nino_log (method, request, response, log_message) VALUES ($1, $2, $3, $4)`,
			e.Method, e.Request, e.Response, e.LogMessage); err != nil {
			return fmt.Errorf("logsink: insert: %w", err)
		}
	}
	return nil
}

// Close stops accepting new entries, flushes whatever remains, and waits
// for the flush loop to exit.
func (s *PostgresBatchSink) Close() error {
	close(s.ch)
	<-s.done
	return nil
}
