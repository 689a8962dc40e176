package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Entry is what workers read off the queue.
type Entry = model.LogEntry

// Sink persists log records.
type Sink interface {
	WriteSuggestion(ctx context.Context, r model.SuggestionRecord) error
	WriteAcceptance(ctx context.Context, r model.AcceptanceRecord) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Entry
}

// Worker drains entries into a sink.
type Worker interface {
	// Run processes entries until the queue closes, ctx is done or
	// Shutdown is called.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	sink     Sink
	name     string
	shutdown chan struct{}
	once     sync.Once
	done     chan struct{}
	onDrop   func(ctx context.Context, e Entry, err error)
	logger   logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue and writing to sink.
func NewInMemoryWorker(queue Queue, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	entries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			// sink failures are logged, counted and handed to onDrop, never retried
			_ = w.process(ctx, e)
		}
	}
}

// Shutdown stops the worker without draining the queue.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.once.Do(func() { close(w.shutdown) })
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, e Entry) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	var err error
	switch {
	case e.Kind == model.KindSuggestion && e.Suggestion != nil:
		err = w.sink.WriteSuggestion(ctx, *e.Suggestion)
	case e.Kind == model.KindAcceptance && e.Acceptance != nil:
		err = w.sink.WriteAcceptance(ctx, *e.Acceptance)
	default:
		err = fmt.Errorf("%w: %q", ErrMalformedEntry, e.Kind)
	}
	if err != nil {
		metrics.RecordSinkError(string(e.Kind))
		metrics.RecordErrorByComponent("worker", "sink_write")
		w.logger.Error(ctx, "dropping log entry",
			logger.String("entry", e.Key()),
			logger.Error(err))
		if w.onDrop != nil {
			w.onDrop(ctx, e, err)
		}
		return err
	}
	metrics.RecordSinkWrite(string(e.Kind))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   ShardedQueue
	logger  logger.Logger
}

// ShardedQueue hands each worker a partition of its own.
type ShardedQueue interface {
	Shards() int
	DequeueShard(ctx context.Context, shard int) <-chan Entry
	Close() error
}

type shardView struct {
	q     ShardedQueue
	shard int
}

func (v shardView) Dequeue(ctx context.Context) <-chan Entry {
	return v.q.DequeueShard(ctx, v.shard)
}

// NewShardedPool starts one worker per shard of q. Entries with the same
// partition key are written in the order they were enqueued.
func NewShardedPool(q ShardedQueue, sink Sink, opts ...Option) *Pool {
	p := &Pool{
		workers: make([]*InMemoryWorker, q.Shards()),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(shardView{q: q, shard: i}, sink, wopts...)
	}
	metrics.UpdateWorkerCount(len(p.workers))
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets the workers drain it. Workers still
// running when ctx (or the pool timeout) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-drainCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.stop()
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", drainCtx.Err())
	}
	return nil
}
