package queue

import (
	"context"
	"hash/fnv"

	"github.com/okian/tutormarket/pkg/metrics"
)

// Sharded spreads entries over several InMemoryQueues by partition key.
// With one consumer per shard, entries sharing a key are delivered in
// enqueue order, so an acceptance never overtakes its suggestion.
type Sharded struct {
	shards   []*InMemoryQueue
	capacity int
}

// NewSharded creates shardCount queues sharing capacity. Each shard holds
// capacity/shardCount entries, rounded up.
func NewSharded(shardCount, capacity int) *Sharded {
	if shardCount < 1 {
		shardCount = 1
	}
	if capacity < 1 {
		capacity = defaultQueueCapacity
	}
	per := (capacity + shardCount - 1) / shardCount
	s := &Sharded{
		shards:   make([]*InMemoryQueue, shardCount),
		capacity: per * shardCount,
	}
	for i := range s.shards {
		s.shards[i] = NewInMemoryQueue(WithCapacity(per), withSizeReporter(s.reportSize))
	}
	metrics.UpdateQueueCapacity(s.capacity)
	s.reportSize()
	return s
}

// Enqueue adds e to the shard owning its partition key. A full shard
// returns ErrFull even when other shards have room.
func (s *Sharded) Enqueue(ctx context.Context, e Entry) error {
	return s.shards[s.ShardFor(e.PartitionKey())].Enqueue(ctx, e)
}

// ShardFor returns the shard index for key.
func (s *Sharded) ShardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// DequeueShard returns the delivery channel of one shard.
func (s *Sharded) DequeueShard(ctx context.Context, shard int) <-chan Entry {
	return s.shards[shard].Dequeue(ctx)
}

// Shards returns the number of shards.
func (s *Sharded) Shards() int { return len(s.shards) }

// Len returns the number of entries buffered across all shards.
func (s *Sharded) Len(ctx context.Context) int {
	n := 0
	for _, q := range s.shards {
		if q != nil {
			n += q.Len(ctx)
		}
	}
	return n
}

// Cap returns the combined capacity.
func (s *Sharded) Cap() int { return s.capacity }

// Close closes every shard. Buffered entries stay available to consumers.
func (s *Sharded) Close() error {
	for _, q := range s.shards {
		if err := q.Close(); err != nil {
			return err
		}
	}
	return nil
}

// IsClosed reports whether Close was called.
func (s *Sharded) IsClosed() bool { return s.shards[0].IsClosed() }

func (s *Sharded) reportSize() {
	metrics.UpdateQueueSize(s.Len(context.Background()), s.capacity)
}
