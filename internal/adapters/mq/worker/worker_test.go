package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tutormarket/internal/adapters/mq/queue"
	"github.com/okian/tutormarket/internal/adapters/mq/worker"
	"github.com/okian/tutormarket/internal/domain/model"
	logging "github.com/okian/tutormarket/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockSink struct {
	mu          sync.Mutex
	suggestions []string
	acceptances []string
	fail        error
}

func (m *mockSink) WriteSuggestion(_ context.Context, r model.SuggestionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.suggestions = append(m.suggestions, r.ID)
	return nil
}

func (m *mockSink) WriteAcceptance(_ context.Context, r model.AcceptanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.acceptances = append(m.acceptances, r.SuggestionID)
	return nil
}

func (m *mockSink) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.suggestions), len(m.acceptances)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestWorkerPool(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a pool draining a queue into a sink", t, func() {
		ctx := context.Background()
		q := queue.NewSharded(3, 99)
		sink := &mockSink{}
		pool := worker.NewShardedPool(q, sink)
		pool.Start(ctx)

		convey.Convey("When suggestions and acceptances are enqueued", func() {
			for _, id := range []string{"s1", "s2", "s3"} {
				convey.So(q.Enqueue(ctx, model.SuggestionEntry(model.SuggestionRecord{ID: id})), convey.ShouldBeNil)
			}
			convey.So(q.Enqueue(ctx, model.AcceptanceEntry(model.AcceptanceRecord{SuggestionID: "s1", AcceptedPrice: 90})), convey.ShouldBeNil)

			convey.Convey("Then each reaches the sink once", func() {
				convey.So(waitFor(func() bool {
					s, a := sink.counts()
					return s == 3 && a == 1
				}), convey.ShouldBeTrue)
				convey.So(pool.Size(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the pool shuts down with entries buffered", func() {
			for _, id := range []string{"s4", "s5"} {
				_ = q.Enqueue(ctx, model.SuggestionEntry(model.SuggestionRecord{ID: id}))
			}
			err := pool.Shutdown(ctx)

			convey.Convey("Then the queue is closed and drained", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				s, _ := sink.counts()
				convey.So(s, convey.ShouldEqual, 2)
			})
		})

		convey.Reset(func() {
			_ = pool.Shutdown(ctx)
		})
	})
}

// orderedSink rejects acceptances of suggestions it has not stored yet.
type orderedSink struct {
	mu       sync.Mutex
	stored   map[string]bool
	accepted map[string]bool
}

func newOrderedSink() *orderedSink {
	return &orderedSink{stored: make(map[string]bool), accepted: make(map[string]bool)}
}

func (o *orderedSink) WriteSuggestion(_ context.Context, r model.SuggestionRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	// widen the window in which an unordered consumer would overtake
	time.Sleep(time.Millisecond)
	o.stored[r.ID] = true
	return nil
}

func (o *orderedSink) WriteAcceptance(_ context.Context, r model.AcceptanceRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.stored[r.SuggestionID] {
		return fmt.Errorf("%w: %s", model.ErrRejected, r.SuggestionID)
	}
	o.accepted[r.SuggestionID] = true
	return nil
}

func (o *orderedSink) acceptedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.accepted)
}

func TestShardedPoolOrdering(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given eight workers over a sharded queue", t, func() {
		ctx := context.Background()
		q := queue.NewSharded(8, 800)
		sink := newOrderedSink()

		var mu sync.Mutex
		var dropped []string
		pool := worker.NewShardedPool(q, sink, worker.WithDropHandler(func(_ context.Context, e worker.Entry, err error) {
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, model.ErrRejected) {
				dropped = append(dropped, e.PartitionKey())
			}
		}))
		pool.Start(ctx)
		convey.So(pool.Size(), convey.ShouldEqual, 8)

		convey.Convey("When each suggestion is accepted right after it is queued", func() {
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("s-%d", i)
				convey.So(q.Enqueue(ctx, model.SuggestionEntry(model.SuggestionRecord{ID: id})), convey.ShouldBeNil)
				convey.So(q.Enqueue(ctx, model.AcceptanceEntry(model.AcceptanceRecord{SuggestionID: id, AcceptedPrice: 90})), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every acceptance lands after its suggestion", func() {
				convey.So(sink.acceptedCount(), convey.ShouldEqual, 50)
				mu.Lock()
				defer mu.Unlock()
				convey.So(dropped, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When an acceptance arrives for a suggestion never queued", func() {
			convey.So(q.Enqueue(ctx, model.AcceptanceEntry(model.AcceptanceRecord{SuggestionID: "ghost"})), convey.ShouldBeNil)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the drop handler sees the rejection", func() {
				mu.Lock()
				defer mu.Unlock()
				convey.So(dropped, convey.ShouldResemble, []string{"ghost"})
			})
		})

		convey.Reset(func() {
			_ = pool.Shutdown(ctx)
		})
	})
}

func TestWorkerSinkFailure(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker whose sink fails", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		sink := &mockSink{fail: errors.New("db down")}
		w := worker.NewInMemoryWorker(q, sink, worker.WithName("w-test"))
		go w.Run(ctx)

		convey.Convey("When entries keep arriving", func() {
			_ = q.Enqueue(ctx, model.SuggestionEntry(model.SuggestionRecord{ID: "s1"}))
			_ = q.Enqueue(ctx, model.LogEntry{Kind: "bogus"})
			sink.mu.Lock()
			sink.fail = nil
			sink.mu.Unlock()
			_ = q.Enqueue(ctx, model.SuggestionEntry(model.SuggestionRecord{ID: "s2"}))

			convey.Convey("Then the worker keeps running and later writes succeed", func() {
				convey.So(waitFor(func() bool {
					s, _ := sink.counts()
					return s >= 1
				}), convey.ShouldBeTrue)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestBreakerSink(t *testing.T) {
	convey.Convey("Given a breaker that opens after two failures", t, func() {
		ctx := context.Background()
		inner := &mockSink{fail: errors.New("db down")}
		b := worker.NewBreakerSink(inner, 2, time.Hour, nil)

		convey.So(b.WriteSuggestion(ctx, model.SuggestionRecord{ID: "s1"}), convey.ShouldNotBeNil)
		convey.So(b.WriteSuggestion(ctx, model.SuggestionRecord{ID: "s2"}), convey.ShouldNotBeNil)

		convey.Convey("Then further writes are rejected without reaching the store", func() {
			inner.mu.Lock()
			inner.fail = nil
			inner.mu.Unlock()

			err := b.WriteAcceptance(ctx, model.AcceptanceRecord{SuggestionID: "s1"})
			convey.So(errors.Is(err, worker.ErrSinkOpen), convey.ShouldBeTrue)
			convey.So(b.State(), convey.ShouldEqual, "open")
			_, a := inner.counts()
			convey.So(a, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a healthy store", t, func() {
		inner := &mockSink{}
		b := worker.NewBreakerSink(inner, 0, 0, nil)
		convey.So(b.WriteSuggestion(context.Background(), model.SuggestionRecord{ID: "s1"}), convey.ShouldBeNil)
		convey.So(b.State(), convey.ShouldEqual, "closed")
	})
}
