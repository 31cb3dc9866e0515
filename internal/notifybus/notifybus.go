// Package notifybus is the notification/invalidation bus (C2): a single
// dedicated listener holds a blocking Postgres connection, LISTENs on one
// channel named after the program, and fans out every payload to a
// broadcast channel shared by cache invalidators and script isolates.
//
// Grounded on the LISTEN/NOTIFY broker shape in the toolbox pubsub package,
// narrowed from its multi-topic design to nino's single fixed channel and
// its capacity-bounded, drop-oldest fan-out.
package notifybus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nino/internal/logging"
)

// Prefixes that scope an invalidation payload, per the public channel
// contract. Anything else is still fanned out, as a message task.
const (
	PrefixRequest  = "request:"
	PrefixResponse = "response:"
	PrefixSetting  = "setting:"
	PrefixDatabase = "database:"
)

// reconnectBackoff is the fixed delay between LISTEN attempts after the
// listener connection is lost.
const reconnectBackoff = 5 * time.Second

// broadcastCapacity bounds the fan-out channel; slow subscribers lose
// messages rather than stall the listener.
const broadcastCapacity = 64

// Message is one payload observed on the notification channel.
type Message struct {
	Text string
}

// Bus owns the dedicated listener connection and the broadcast fan-out.
// Publish goes through the shared pool; Listen owns its own connection
// because LISTEN state is per-connection and must survive independently of
// pool churn.
type Bus struct {
	pool    *pgxpool.Pool
	channel string

	mu          sync.RWMutex
	subscribers map[int]chan Message
	nextID      int
	closed      bool

	cancel context.CancelFunc
}

// New creates a Bus that will NOTIFY/LISTEN on channel through pool. Call
// Run to start the listener loop; it blocks until ctx is cancelled.
func New(pool *pgxpool.Pool, channel string) *Bus {
	return &Bus{
		pool:        pool,
		channel:     channel,
		subscribers: make(map[int]chan Message),
	}
}

// Subscribe registers a new fan-out channel. The channel is closed when ctx
// is cancelled or the Bus is closed. Capacity is fixed at broadcastCapacity;
// a full channel drops its oldest queued message to make room, per the
// bus's best-effort fan-out contract.
func (b *Bus) Subscribe(ctx context.Context) <-chan Message {
	ch := make(chan Message, broadcastCapacity)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

func (b *Bus) fanOut(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop the oldest queued message to make room, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// Publish runs NOTIFY <channel>, <escaped-payload> through the pool.
// Escaping doubles single quotes and wraps the payload in quotes; an empty
// payload becomes the literal NULL rather than an empty string.
func (b *Bus) Publish(ctx context.Context, payload string) error {
	if payload == "" {
		_, err := b.pool.Exec(ctx, fmt.Sprintf("NOTIFY %s, NULL", pgx.Identifier{b.channel}.Sanitize()))
		return err
	}
	escaped := "'" + strings.ReplaceAll(payload, "'", "''") + "'"
	_, err := b.pool.Exec(ctx, fmt.Sprintf("NOTIFY %s, %s", pgx.Identifier{b.channel}.Sanitize(), escaped))
	return err
}

// Run is the listener's outer loop: it acquires a dedicated connection,
// issues LISTEN, and iterates notifications until the connection is lost or
// ctx is cancelled, then reconnects after reconnectBackoff. A lost
// connection mid-iteration is treated as "rebuild from scratch" — the loop
// never assumes a dropped connection's LISTEN state survives a reconnect.
func (b *Bus) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.listenOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Op().Error("notification listener lost connection", "error", err, "channel", b.channel)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (b *Bus) listenOnce(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("notifybus: acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("notifybus: LISTEN %s: %w", b.channel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("notifybus: wait for notification: %w", err)
		}
		b.fanOut(Message{Text: n.Payload})
	}
}

// Close stops the listener loop and closes every subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	return nil
}

// HasPrefix reports whether payload is scoped by one of the known prefixes.
func HasPrefix(payload string) bool {
	for _, p := range []string{PrefixRequest, PrefixResponse, PrefixSetting, PrefixDatabase} {
		if strings.HasPrefix(payload, p) {
			return true
		}
	}
	return false
}
