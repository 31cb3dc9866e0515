package jsruntime

import (
	"context"
	"sync"

	"nino/internal/logsink"
	"nino/internal/notifybus"
	"nino/internal/txsession"
)

// Pool is the fixed set of N isolates spawned at startup (C6). Each
// isolate gets its own OS-scheduled goroutine, its own session worker, and
// never shares a goja.Runtime with another.
type Pool struct {
	isolates []*Isolate
	wg       sync.WaitGroup
}

// NewPool constructs n isolates wired to the shared queue, loader, and
// bus. Each isolate's session is started separately and handed to Start.
func NewPool(n int, queue TaskSource, loader *Loader, bus *notifybus.Bus, sink logsink.Sink, jwtSecret, programName string) *Pool {
	p := &Pool{isolates: make([]*Isolate, 0, n)}
	for i := 0; i < n; i++ {
		p.isolates = append(p.isolates, New(int16(i), queue, loader, bus, sink, jwtSecret, programName))
	}
	return p
}

// Start launches every isolate's Run loop. sessions must have one entry
// per isolate index, already started against this pool's db/mainDSN.
func (p *Pool) Start(ctx context.Context, sessions []*txsession.Session) {
	for i, iso := range p.isolates {
		p.wg.Add(1)
		go func(iso *Isolate, session *txsession.Session) {
			defer p.wg.Done()
			iso.Run(ctx, session)
		}(iso, sessions[i])
	}
}

// Wait blocks until every isolate has returned from Run, i.e. until the
// shared queue is closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the configured isolate count.
func (p *Pool) Size() int {
	return len(p.isolates)
}
