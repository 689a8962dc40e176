package scoring

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

const defaultConcurrency = 8

// Ranker loads ranking inputs and scores them.
type Ranker struct {
	reader      Reader
	caps        Caps
	concurrency int
	log         logger.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithCaps replaces the default caps.
func WithCaps(c Caps) Option {
	return func(r *Ranker) { r.caps = c }
}

// WithConcurrency bounds parallel loads in RankCandidates.
func WithConcurrency(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the ranker logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Ranker) { r.log = l }
}

// NewRanker creates a Ranker over reader.
func NewRanker(reader Reader, opts ...Option) *Ranker {
	r := &Ranker{reader: reader, caps: DefaultCaps(), concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores one profile.
func (r *Ranker) Rank(ctx context.Context, profileID string, interests, hobbies []string) (Result, error) {
	start := time.Now()
	in, err := r.reader.RankingInputs(ctx, profileID)
	if err != nil {
		return Result{}, err
	}
	in.ProfileID = profileID
	res := Score(r.caps, in, interests, hobbies)
	metrics.RecordRanking(float64(time.Since(start).Milliseconds()), float64(res.Total))
	return res, nil
}

// RankCandidates scores every known candidate and orders them by total
// descending, ties by profile id. Unknown ids are skipped.
func (r *Ranker) RankCandidates(ctx context.Context, profileIDs []string, interests, hobbies []string) ([]Result, error) {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(profileIDs))
		seen    = make(map[string]bool, len(profileIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range profileIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			res, err := r.Rank(gctx, id, interests, hobbies)
			if errors.Is(err, profile.ErrNotFound) {
				if r.log != nil {
					r.log.Debug(gctx, "skipping unknown candidate", logger.String("profile_id", id))
				}
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].ProfileID < results[j].ProfileID
	})
	return results, nil
}
