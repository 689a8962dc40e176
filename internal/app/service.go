// Package service wires the pricing and ranking engines to storage and the
// suggestion log pipeline, and implements what the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tutormarket/internal/adapters/mq/queue"
	"github.com/okian/tutormarket/internal/adapters/mq/worker"
	"github.com/okian/tutormarket/internal/adapters/repository"
	"github.com/okian/tutormarket/internal/domain/dedupe"
	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/internal/domain/scoring"
	"github.com/okian/tutormarket/internal/domain/types"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

// Store is the storage the service reads from and logs into.
type Store interface {
	pricing.Reader
	scoring.Reader
	rules.Source
	worker.Sink
	Stats(ctx context.Context) (repository.Stats, error)
	Suggestion(ctx context.Context, id string) (repository.PriceSuggestionLog, error)
	Ping(ctx context.Context) error
}

// Service implements the API dependencies for the tutor marketplace.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    Store
	engine   *pricing.Engine
	ranker   *scoring.Ranker
	deduper  dedupe.Deduper
	logQueue *queue.Sharded
	sink     *worker.BreakerSink
	pool     *worker.Pool

	// Configuration
	workerCount        int
	queueSize          int
	dedupeSize         int
	failureThreshold   uint32
	openTimeout        time.Duration
	pricingConfig      pricing.Config
	caps               scoring.Caps
	rankingConcurrency int
	now                func() time.Time

	// State
	started   bool
	startedAt time.Time
	dropped   atomic.Int64
	stopCh    chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of sink workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the log queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many accepted suggestion ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSinkBreaker configures the circuit breaker in front of the sink.
func WithSinkBreaker(failureThreshold int, openTimeout time.Duration) Option {
	return func(s *Service) {
		if failureThreshold > 0 {
			s.failureThreshold = uint32(failureThreshold)
		}
		if openTimeout > 0 {
			s.openTimeout = openTimeout
		}
	}
}

// WithPricingConfig sets the pricing engine parameters.
func WithPricingConfig(cfg pricing.Config) Option {
	return func(s *Service) { s.pricingConfig = cfg }
}

// WithRankingCaps sets the ranking sub-score caps.
func WithRankingCaps(caps scoring.Caps) Option {
	return func(s *Service) { s.caps = caps }
}

// WithRankingConcurrency bounds parallel loads when ranking candidates.
func WithRankingConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingConcurrency = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store with default configuration.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:              store,
		workerCount:        runtime.NumCPU() * 2,
		queueSize:          10_000,
		dedupeSize:         50_000,
		failureThreshold:   5,
		openTimeout:        30 * time.Second,
		pricingConfig:      pricing.DefaultConfig(),
		caps:               scoring.DefaultCaps(),
		rankingConcurrency: 8,
		now:                time.Now,
		stopCh:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start builds the engines and starts the log pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tutormarket service...")

	resolver := rules.NewResolver(s.store,
		rules.WithFallbackPrice(s.pricingConfig.FallbackPrice),
		rules.WithLogger(s.logger.Named("rules")),
	)
	engine, err := pricing.New(s.store, resolver,
		pricing.WithConfig(s.pricingConfig),
		pricing.WithClock(s.now),
		pricing.WithLogger(s.logger.Named("pricing")),
	)
	if err != nil {
		return fmt.Errorf("build pricing engine: %w", err)
	}
	s.engine = engine
	s.ranker = scoring.NewRanker(s.store,
		scoring.WithCaps(s.caps),
		scoring.WithConcurrency(s.rankingConcurrency),
		scoring.WithLogger(s.logger.Named("ranking")),
	)

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.deduper = deduper
	// one shard per worker keeps a suggestion ahead of its acceptance
	s.logQueue = queue.NewSharded(s.workerCount, s.queueSize)
	s.sink = worker.NewBreakerSink(s.store, s.failureThreshold, s.openTimeout, s.logger.Named("sink"))
	s.pool = worker.NewShardedPool(s.logQueue, s.sink, worker.WithDropHandler(s.releaseAcceptance(deduper)))
	// workers outlive the caller's context; Stop drains them
	s.pool.Start(context.WithoutCancel(ctx))

	s.stopCh = make(chan struct{})
	go s.sampleSystem(s.stopCh)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "tutormarket service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the log queue and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tutormarket service...")

	close(s.stopCh)
	err := s.pool.Shutdown(ctx)
	s.started = false
	if err != nil {
		s.logger.Warn(ctx, "log pipeline did not drain", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "tutormarket service stopped")
	return nil
}

// components returns the engines under the read lock.
func (s *Service) components() (*pricing.Engine, *scoring.Ranker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.engine, s.ranker, nil
}

// SuggestPrice computes a suggestion and logs it. Logging is best effort:
// when the record cannot be queued the suggestion is still returned,
// without a suggestion id.
func (s *Service) SuggestPrice(ctx context.Context, profileID string, req pricing.Request) (pricing.Suggestion, error) {
	engine, _, err := s.components()
	if err != nil {
		return pricing.Suggestion{}, err
	}
	sug, err := engine.SuggestPrice(ctx, profileID, req)
	if err != nil {
		return pricing.Suggestion{}, err
	}

	rec, err := model.NewSuggestionRecord(uuid.NewString(), sug, s.now())
	if err != nil {
		s.logger.Warn(ctx, "suggestion not logged", logger.String("profile_id", profileID), logger.Error(err))
		return sug, nil
	}
	if err := s.enqueue(ctx, model.SuggestionEntry(rec)); err != nil {
		return sug, nil
	}
	sug.SuggestionID = rec.ID
	return sug, nil
}

// GetMarketComparables returns the scored comparables for profileID.
func (s *Service) GetMarketComparables(ctx context.Context, profileID string, req pricing.Request) (pricing.Comparables, error) {
	engine, _, err := s.components()
	if err != nil {
		return pricing.Comparables{}, err
	}
	return engine.GetMarketComparables(ctx, profileID, req)
}

// LogSuggestion queues a suggestion record, assigning an id and timestamp
// when missing. It returns the record id.
func (s *Service) LogSuggestion(ctx context.Context, rec model.SuggestionRecord) (string, error) {
	if _, _, err := s.components(); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := s.enqueue(ctx, model.SuggestionEntry(rec)); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// LogAcceptance queues the acceptance of suggestionID at price. Repeated
// acceptances of one suggestion are reported as duplicates and dropped.
func (s *Service) LogAcceptance(ctx context.Context, suggestionID string, price float64) (bool, error) {
	if _, _, err := s.components(); err != nil {
		return false, err
	}
	if s.deduper.SeenAndRecord(ctx, suggestionID) {
		metrics.RecordDuplicateAcceptance()
		s.logger.Debug(ctx, "duplicate acceptance", logger.String("suggestion_id", suggestionID))
		return true, nil
	}
	entry := model.AcceptanceEntry(model.AcceptanceRecord{
		SuggestionID:  suggestionID,
		AcceptedPrice: price,
		AcceptedAt:    s.now(),
	})
	if err := s.enqueue(ctx, entry); err != nil {
		// let the caller retry
		s.deduper.Unrecord(ctx, suggestionID)
		return false, err
	}
	return false, nil
}

// releaseAcceptance forgets acceptances the sink dropped so the client
// can send them again.
func (s *Service) releaseAcceptance(d dedupe.Deduper) func(context.Context, model.LogEntry, error) {
	return func(ctx context.Context, e model.LogEntry, err error) {
		if e.Kind != model.KindAcceptance || e.Acceptance == nil {
			return
		}
		d.Unrecord(ctx, e.Acceptance.SuggestionID)
		s.logger.Debug(ctx, "acceptance released for retry",
			logger.String("suggestion_id", e.Acceptance.SuggestionID), logger.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, e model.LogEntry) error {
	err := s.logQueue.Enqueue(ctx, e)
	if err == nil {
		return nil
	}
	s.dropped.Add(1)
	metrics.RecordErrorByComponent("service", "log_dropped")
	s.logger.Warn(ctx, "log entry dropped", logger.String("entry", e.Key()), logger.Error(err))
	if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	return err
}

// Suggestion returns a stored suggestion log.
func (s *Service) Suggestion(ctx context.Context, id string) (types.SuggestionLog, error) {
	row, err := s.store.Suggestion(ctx, id)
	if err != nil {
		return types.SuggestionLog{}, err
	}
	out := types.SuggestionLog{
		ID:               row.ID,
		ProfileID:        row.ProfileID,
		SuggestedPrice:   row.SuggestedPrice.InexactFloat64(),
		MarketAverage:    row.MarketAverage.InexactFloat64(),
		MinPrice:         row.MinPrice.InexactFloat64(),
		MaxPrice:         row.MaxPrice.InexactFloat64(),
		ConfidenceLevel:  row.Confidence,
		Source:           row.Source,
		TutorCount:       row.TutorCount,
		SimilarCount:     row.SimilarCount,
		TimePeriodMonths: row.TimePeriodMonths,
		CreatedAt:        row.CreatedAt,
		AcceptedAt:       row.AcceptedAt,
	}
	if row.Factors != "" {
		out.Factors = []byte(row.Factors)
	}
	if row.AcceptedPrice.Valid {
		p := row.AcceptedPrice.Decimal.InexactFloat64()
		out.AcceptedPrice = &p
	}
	return out, nil
}

// Rank scores one profile against the searcher's interests and hobbies.
func (s *Service) Rank(ctx context.Context, profileID string, interests, hobbies []string) (scoring.Result, error) {
	_, ranker, err := s.components()
	if err != nil {
		return scoring.Result{}, err
	}
	return ranker.Rank(ctx, profileID, interests, hobbies)
}

// RankCandidates scores and orders several profiles.
func (s *Service) RankCandidates(ctx context.Context, profileIDs []string, interests, hobbies []string) ([]scoring.Result, error) {
	_, ranker, err := s.components()
	if err != nil {
		return nil, err
	}
	return ranker.RankCandidates(ctx, profileIDs, interests, hobbies)
}

// Stats returns stored row counts and pipeline state.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	st := types.Stats{
		Profiles:    counts.Profiles,
		Courses:     counts.Courses,
		Enrollments: counts.Enrollments,
		Suggestions: counts.Suggestions,
		Acceptances: counts.Acceptances,
		Dropped:     s.dropped.Load(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.started {
		st.QueueDepth = s.logQueue.Len(ctx)
		st.QueueCapacity = s.logQueue.Cap()
		st.Workers = s.pool.Size()
		st.BreakerState = s.sink.State()
		st.DedupeEntries = s.deduper.Size()
		st.Uptime = s.now().Sub(s.startedAt).Round(time.Second).String()
	}
	return st, nil
}

// Health reports database reachability and the sink breaker state.
func (s *Service) Health(ctx context.Context) types.Health {
	h := types.Health{Status: "ok", Database: "ok", Breaker: "unknown"}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "database ping failed", logger.Error(err))
		h.Status = "degraded"
		h.Database = "unreachable"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		h.Status = "starting"
		return h
	}
	h.Breaker = s.sink.State()
	return h
}

// sampleSystem feeds the process gauges until stop is closed.
func (s *Service) sampleSystem(stop <-chan struct{}) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	var lastGC uint32
	for {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		metrics.UpdateSystemMemoryUsage(m.Alloc)
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		if m.NumGC != lastGC {
			metrics.RecordSystemGCPauseTime(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6)
			lastGC = m.NumGC
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
