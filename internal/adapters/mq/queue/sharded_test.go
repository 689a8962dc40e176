package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/tutormarket/internal/domain/model"
)

func acceptance(id string) Entry {
	return model.AcceptanceEntry(model.AcceptanceRecord{SuggestionID: id, AcceptedPrice: 90})
}

func TestSharded_KeepsKeyOrder(t *testing.T) {
	q := NewSharded(4, 400)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s-%d", i)
		if err := q.Enqueue(ctx, suggestion(id)); err != nil {
			t.Fatalf("enqueue suggestion %s: %v", id, err)
		}
		if err := q.Enqueue(ctx, acceptance(id)); err != nil {
			t.Fatalf("enqueue acceptance %s: %v", id, err)
		}
	}
	if l := q.Len(ctx); l != 40 {
		t.Errorf("expected length 40, got %d", l)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	seen := make(map[string]bool)
	total := 0
	for shard := 0; shard < q.Shards(); shard++ {
		for e := range q.DequeueShard(ctx, shard) {
			total++
			key := e.PartitionKey()
			if got := q.ShardFor(key); got != shard {
				t.Errorf("entry %s delivered by shard %d, owned by %d", e.Key(), shard, got)
			}
			switch e.Kind {
			case model.KindSuggestion:
				seen[key] = true
			case model.KindAcceptance:
				if !seen[key] {
					t.Errorf("acceptance %s delivered before its suggestion", key)
				}
			}
		}
	}
	if total != 40 {
		t.Errorf("expected 40 entries drained, got %d", total)
	}
}

func TestSharded_Capacity(t *testing.T) {
	q := NewSharded(3, 10)
	if q.Cap() != 12 {
		t.Errorf("expected capacity rounded up to 12, got %d", q.Cap())
	}
	if q.Shards() != 3 {
		t.Errorf("expected 3 shards, got %d", q.Shards())
	}

	ctx := context.Background()
	// one key always lands on one shard of 4
	for i := 0; i < 4; i++ {
		if err := q.Enqueue(ctx, suggestion("same")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, suggestion("same")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull from the owning shard, got %v", err)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected sharded queue to be closed")
	}
	if err := q.Enqueue(ctx, suggestion("other")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSharded_Defaults(t *testing.T) {
	q := NewSharded(0, 0)
	if q.Shards() != 1 || q.Cap() != defaultQueueCapacity {
		t.Errorf("expected one shard of %d, got %d shards of total %d", defaultQueueCapacity, q.Shards(), q.Cap())
	}
}
