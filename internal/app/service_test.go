package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tutormarket/internal/adapters/repository"
	service "github.com/okian/tutormarket/internal/app"
	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/internal/domain/scoring"
	"github.com/okian/tutormarket/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeStore serves a single new tutor and records sink writes.
type fakeStore struct {
	mu          sync.Mutex
	suggestions map[string]model.SuggestionRecord
	acceptances []model.AcceptanceRecord
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{suggestions: make(map[string]model.SuggestionRecord)}
}

func (f *fakeStore) SubjectProfile(_ context.Context, id string) (profile.Subject, error) {
	if id != "tutor-1" {
		return profile.Subject{}, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	}
	return profile.Subject{ProfileID: id, Rating: 2, GradeComplexity: 7, SessionFormat: "online"}, nil
}

func (f *fakeStore) ConfirmedEnrollmentCount(context.Context, string) (int, error) { return 0, nil }
func (f *fakeStore) CreationRank(context.Context, string) (int, error)             { return 1, nil }
func (f *fakeStore) CourseCategory(context.Context, []string) (string, error)      { return "", nil }

func (f *fakeStore) Observations(context.Context, profile.ObservationQuery) ([]profile.Observation, error) {
	return nil, nil
}

func (f *fakeStore) RankingInputs(_ context.Context, id string) (scoring.Inputs, error) {
	if id == "missing" {
		return scoring.Inputs{}, fmt.Errorf("%w: %s", profile.ErrNotFound, id)
	}
	served := map[string]int{"tutor-1": 75, "tutor-2": 150}[id]
	return scoring.Inputs{ProfileID: id, StudentsServed: served}, nil
}

func (f *fakeStore) BasePriceRules(context.Context) ([]rules.BasePriceRule, error) {
	return rules.Defaults(), nil
}

func (f *fakeStore) WriteSuggestion(_ context.Context, r model.SuggestionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[r.ID] = r
	return nil
}

func (f *fakeStore) WriteAcceptance(_ context.Context, r model.AcceptanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptances = append(f.acceptances, r)
	return nil
}

func (f *fakeStore) Stats(context.Context) (repository.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return repository.Stats{Profiles: 1, Suggestions: int64(len(f.suggestions)), Acceptances: int64(len(f.acceptances))}, nil
}

func (f *fakeStore) Suggestion(_ context.Context, id string) (repository.PriceSuggestionLog, error) {
	return repository.PriceSuggestionLog{}, fmt.Errorf("%w: %s", repository.ErrSuggestionNotFound, id)
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.suggestions), len(f.acceptances)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(newFakeStore(), service.WithWorkerCount(2), service.WithQueueSize(10))

		Convey("Calls before Start are refused", func() {
			_, err := svc.SuggestPrice(ctx, "tutor-1", pricing.Request{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Rank(ctx, "tutor-1", nil, nil)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Health(ctx).Status, ShouldEqual, "starting")
		})

		Convey("Start and Stop are idempotent", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			st, err := svc.Stats(ctx)
			So(err, ShouldBeNil)
			So(st.Workers, ShouldEqual, 2)
			So(st.QueueCapacity, ShouldEqual, 10)
			So(st.BreakerState, ShouldEqual, "closed")

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			_, err = svc.LogSuggestion(ctx, model.SuggestionRecord{ProfileID: "tutor-1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("An invalid pricing config fails Start", func() {
			cfg := pricing.DefaultConfig()
			cfg.RoundTo = 0
			bad := service.New(newFakeStore(), service.WithPricingConfig(cfg))
			err := bad.Start(ctx)
			So(errors.Is(err, pricing.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_SuggestPrice(t *testing.T) {
	Convey("Given a started service over a new tutor", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		svc := service.New(store, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("The suggestion comes from the base rules and is logged", func() {
			sug, err := svc.SuggestPrice(ctx, "tutor-1", pricing.Request{})
			So(err, ShouldBeNil)
			So(sug.SuggestedPrice, ShouldEqual, 100)
			So(sug.Factors.Source, ShouldEqual, pricing.SourceRules)
			So(sug.Factors.NewEntrant, ShouldBeTrue)
			So(sug.SuggestionID, ShouldNotBeEmpty)

			So(svc.Stop(ctx), ShouldBeNil)
			n, _ := store.counts()
			So(n, ShouldEqual, 1)
			So(store.suggestions[sug.SuggestionID].SuggestedPrice, ShouldEqual, 100)
		})

		Convey("Unknown profiles surface ErrNotFound", func() {
			_, err := svc.SuggestPrice(ctx, "nobody", pricing.Request{})
			So(errors.Is(err, profile.ErrNotFound), ShouldBeTrue)
		})

		Convey("An out-of-range window is rejected", func() {
			_, err := svc.SuggestPrice(ctx, "tutor-1", pricing.Request{TimePeriodMonths: 13})
			So(errors.Is(err, pricing.ErrInvalidWindow), ShouldBeTrue)
		})

		Convey("Comparables are empty for an empty market", func() {
			cmp, err := svc.GetMarketComparables(ctx, "tutor-1", pricing.Request{TimePeriodMonths: 6})
			So(err, ShouldBeNil)
			So(cmp.Comparables, ShouldBeEmpty)
			So(cmp.TimePeriodMonths, ShouldEqual, 6)
		})
	})
}

func TestService_LogAcceptance(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		svc := service.New(store, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("The first acceptance is queued and repeats are duplicates", func() {
			dup, err := svc.LogAcceptance(ctx, "s-1", 95)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
			dup, err = svc.LogAcceptance(ctx, "s-1", 100)
			So(err, ShouldBeNil)
			So(dup, ShouldBeTrue)

			So(svc.Stop(ctx), ShouldBeNil)
			_, accepted := store.counts()
			So(accepted, ShouldEqual, 1)
			So(store.acceptances[0].AcceptedPrice, ShouldEqual, 95)
		})

		Convey("Manual suggestion records get an id and timestamp", func() {
			id, err := svc.LogSuggestion(ctx, model.SuggestionRecord{ProfileID: "tutor-1", SuggestedPrice: 120})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			So(svc.Stop(ctx), ShouldBeNil)
			rec := store.suggestions[id]
			So(rec.CreatedAt.IsZero(), ShouldBeFalse)
		})

		Reset(func() { _ = svc.Stop(ctx) })
	})
}

func TestService_Rank(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(newFakeStore())
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Population served is capped", func() {
			a, err := svc.Rank(ctx, "tutor-1", nil, nil)
			So(err, ShouldBeNil)
			So(a.Breakdown.StudentsServed.Score, ShouldEqual, 75)
			b, err := svc.Rank(ctx, "tutor-2", nil, nil)
			So(err, ShouldBeNil)
			So(b.Breakdown.StudentsServed.Score, ShouldEqual, 100)
		})

		Convey("Candidates are ordered and unknown ids skipped", func() {
			res, err := svc.RankCandidates(ctx, []string{"tutor-1", "missing", "tutor-2"}, nil, nil)
			So(err, ShouldBeNil)
			So(res, ShouldHaveLength, 2)
			So(res[0].ProfileID, ShouldEqual, "tutor-2")
		})
	})
}

func TestService_Health(t *testing.T) {
	Convey("Given a service whose database is down", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.pingErr = errors.New("connection refused")
		svc := service.New(store, service.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		h := svc.Health(ctx)
		So(h.Status, ShouldEqual, "degraded")
		So(h.Database, ShouldEqual, "unreachable")
		So(h.Breaker, ShouldEqual, "closed")
	})
}
