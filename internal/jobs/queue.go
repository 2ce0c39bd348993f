package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind identifies a class of queued work.
type Kind string

const (
	// KindEnrich enriches one lead and routes it.
	KindEnrich Kind = "enrich"
	// KindAttach confirms one lead into its suggested campaign.
	KindAttach Kind = "attach"
)

// defaultBuffer is the per-kind channel capacity.
const defaultBuffer = 256

// ErrQueueFull is returned by Enqueue when a kind's buffer is at
// capacity. Callers feeding the queue in bulk stop on it instead of
// dropping every remaining id one by one.
var ErrQueueFull = eris.New("jobs: queue full")

// Handler processes one queued entity id.
type Handler func(ctx context.Context, id string) error

type pool struct {
	ch      chan string
	workers int
	handler Handler
}

// Queue fans entity ids out to fixed per-kind worker pools. Tasks carry
// ids only; workers re-read state from the store, so a stale or
// duplicate task is harmless.
type Queue struct {
	mu      sync.Mutex
	pools   map[Kind]*pool
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewQueue creates an empty queue. Register each kind before Start.
func NewQueue() *Queue {
	return &Queue{pools: make(map[Kind]*pool)}
}

// Register adds a worker pool for a kind. workers must be >= 1.
func (q *Queue) Register(kind Kind, workers int, handler Handler) {
	if workers < 1 {
		workers = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pools[kind] = &pool{
		ch:      make(chan string, defaultBuffer),
		workers: workers,
		handler: handler,
	}
}

// Start launches the worker pools. ctx cancellation stops workers after
// their current task.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for kind, p := range q.pools {
		for i := 0; i < p.workers; i++ {
			q.wg.Add(1)
			go q.work(ctx, kind, p)
		}
	}
}

func (q *Queue) work(ctx context.Context, kind Kind, p *pool) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.ch:
			if !ok {
				return
			}
			start := time.Now()
			if err := p.handler(ctx, id); err != nil {
				zap.L().Warn("queued task failed",
					zap.String("kind", string(kind)),
					zap.String("id", id),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				continue
			}
			zap.L().Debug("queued task done",
				zap.String("kind", string(kind)),
				zap.String("id", id),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
}

// Enqueue submits an id for the given kind. Returns an error when the
// kind is unregistered, the queue has been closed, or the buffer is
// full; the caller decides whether a full buffer is worth retrying.
func (q *Queue) Enqueue(kind Kind, id string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return eris.Errorf("jobs: queue closed, dropping %s %s", kind, id)
	}
	p, ok := q.pools[kind]
	q.mu.Unlock()
	if !ok {
		return eris.Errorf("jobs: unknown kind %q", kind)
	}

	select {
	case p.ch <- id:
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "%s %s", kind, id)
	}
}

// Close stops accepting work and waits for buffered tasks to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, p := range q.pools {
		close(p.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
