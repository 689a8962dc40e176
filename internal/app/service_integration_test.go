package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tutormarket/internal/adapters/repository"
	service "github.com/okian/tutormarket/internal/app"
	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/rules"
)

var clock = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return clock }

func ptr[T any](v T) *T { return &v }

// openMarket builds a sqlite store holding one subject and six identical
// peers in Kenya teaching online mathematics at 100..150 per hour.
func openMarket(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(repository.DriverSqlite, ":memory:", repository.WithClock(fixedClock))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.SeedRules(ctx, rules.Defaults()); err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	db := store.DB()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	enrolled := clock.AddDate(0, -1, 0)
	ids := []string{"subject", "peer-1", "peer-2", "peer-3", "peer-4", "peer-5", "peer-6"}
	for i, id := range ids {
		price := decimal.NewFromInt(int64(100 + 10*(i-1)))
		if id == "subject" {
			price = decimal.NewFromInt(100)
		}
		rows := []any{
			&repository.TutorProfile{ID: id, Location: "Nairobi, KE", Rating: ptr(4.5), CreatedAt: created},
			&repository.TutorCredential{ProfileID: id, Title: "BSc", YearsExperience: 3},
			&repository.TutorGradeLevel{ProfileID: id, GradeLevel: "grade_10", Active: true},
			&repository.Course{ID: id + "-c", ProfileID: id, Name: "Algebra", Category: "mathematics", SessionFormat: "online", GradeLevel: "grade_10", PricePerHour: price, Active: true},
			&repository.Enrollment{ID: id + "-e", CourseID: id + "-c", ProfileID: id, StudentID: "student-" + id, Status: repository.StatusConfirmed, PricePerHour: price, CreatedAt: enrolled},
		}
		for _, r := range rows {
			if err := db.Create(r).Error; err != nil {
				t.Fatalf("seed %s: %v", id, err)
			}
		}
	}
	if err := db.Create(&repository.TutorProfile{ID: "newcomer", Location: "Accra, GH", CreatedAt: clock.AddDate(0, 0, -3)}).Error; err != nil {
		t.Fatalf("seed newcomer: %v", err)
	}
	return store
}

// eventually polls cond until it holds or a second has passed.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service over a seeded sqlite market", t, func() {
		ctx := context.Background()
		store := openMarket(t)
		cfg := pricing.DefaultConfig()
		cfg.NewEntrantRank = 0
		svc := service.New(store,
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithPricingConfig(cfg),
			service.WithClock(fixedClock),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When an established tutor asks for a price", func() {
			sug, err := svc.SuggestPrice(ctx, "subject", pricing.Request{})

			Convey("Then it is priced from six identical peers", func() {
				So(err, ShouldBeNil)
				So(sug.Factors.Source, ShouldEqual, pricing.SourceMarket)
				So(sug.TutorCount, ShouldEqual, 6)
				So(sug.SimilarTutorsCount, ShouldEqual, 6)
				So(sug.ConfidenceLevel, ShouldEqual, pricing.ConfidenceMedium)
				So(sug.SuggestedPrice, ShouldEqual, 125)
				So(sug.MarketAverage, ShouldEqual, 125)
				So(sug.PriceRange.Min, ShouldEqual, 90)
				So(sug.PriceRange.Max, ShouldEqual, 160)
			})

			Convey("Then the suggestion is logged and can be accepted once", func() {
				So(sug.SuggestionID, ShouldNotBeEmpty)
				So(eventually(func() bool {
					_, err := svc.Suggestion(ctx, sug.SuggestionID)
					return err == nil
				}), ShouldBeTrue)

				dup, err := svc.LogAcceptance(ctx, sug.SuggestionID, 120)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				dup, err = svc.LogAcceptance(ctx, sug.SuggestionID, 130)
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)

				So(eventually(func() bool {
					got, err := svc.Suggestion(ctx, sug.SuggestionID)
					return err == nil && got.AcceptedPrice != nil
				}), ShouldBeTrue)
				got, _ := svc.Suggestion(ctx, sug.SuggestionID)
				So(*got.AcceptedPrice, ShouldEqual, 120)
				So(got.SuggestedPrice, ShouldEqual, 125)
				So(got.Source, ShouldEqual, pricing.SourceMarket)
				So(string(got.Factors), ShouldContainSubstring, pricing.AlgorithmVersion)

				st, err := svc.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.Profiles, ShouldEqual, 8)
				So(st.Suggestions, ShouldEqual, 1)
				So(st.Acceptances, ShouldEqual, 1)
				So(st.DedupeEntries, ShouldEqual, 1)
			})
		})

		Convey("When a tutor with no enrollments asks for a price", func() {
			sug, err := svc.SuggestPrice(ctx, "newcomer", pricing.Request{SessionFormat: "in person"})

			Convey("Then the in-person base rule applies", func() {
				So(err, ShouldBeNil)
				So(sug.Factors.Source, ShouldEqual, pricing.SourceRules)
				So(sug.Factors.FallbackReason, ShouldEqual, pricing.ReasonNewEntrant)
				So(sug.TutorCount, ShouldEqual, 0)
				So(sug.SuggestedPrice, ShouldEqual, 110)
			})
		})

		Convey("When comparables are requested", func() {
			cmp, err := svc.GetMarketComparables(ctx, "subject", pricing.Request{TimePeriodMonths: 2})

			Convey("Then every peer is listed with full similarity", func() {
				So(err, ShouldBeNil)
				So(cmp.Comparables, ShouldHaveLength, 6)
				for _, c := range cmp.Comparables {
					So(c.Similarity, ShouldAlmostEqual, 1.0, 1e-9)
					So(c.Similar, ShouldBeTrue)
				}
				So(cmp.Subject.Country, ShouldEqual, "KE")
			})
		})

		Convey("When an unknown suggestion is accepted", func() {
			strict := service.New(store, service.WithWorkerCount(1), service.WithSinkBreaker(1, time.Minute))
			So(strict.Start(ctx), ShouldBeNil)
			defer func() { _ = strict.Stop(ctx) }()

			dup, err := strict.LogAcceptance(ctx, "no-such-suggestion", 100)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
			id, err := strict.LogSuggestion(ctx, model.SuggestionRecord{ProfileID: "subject", SuggestedPrice: 100, MinPrice: 90, MaxPrice: 110})
			So(err, ShouldBeNil)

			Convey("Then the sink rejects it without opening the breaker", func() {
				So(eventually(func() bool {
					_, err := strict.Suggestion(ctx, id)
					return err == nil
				}), ShouldBeTrue)
				st, err := strict.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.BreakerState, ShouldEqual, "closed")
				_, err = store.Suggestion(ctx, "no-such-suggestion")
				So(errors.Is(err, repository.ErrSuggestionNotFound), ShouldBeTrue)
			})
		})

		Convey("When candidates are ranked", func() {
			res, err := svc.RankCandidates(ctx, []string{"peer-2", "ghost", "peer-1", "subject"}, []string{"algebra"}, nil)

			Convey("Then known candidates come back ordered", func() {
				So(err, ShouldBeNil)
				So(res, ShouldHaveLength, 3)
				for i := 1; i < len(res); i++ {
					prev, cur := res[i-1], res[i]
					So(prev.Total > cur.Total || (prev.Total == cur.Total && prev.ProfileID < cur.ProfileID), ShouldBeTrue)
				}
				So(fmt.Sprint(res[0].ProfileID, res[1].ProfileID, res[2].ProfileID), ShouldEqual, "peer-1 peer-2 subject")
			})
		})
	})
}

func TestServiceAcceptanceOrdering(t *testing.T) {
	Convey("Given a service with eight log workers over sqlite", t, func() {
		ctx := context.Background()
		store := openMarket(t)
		cfg := pricing.DefaultConfig()
		cfg.NewEntrantRank = 0
		svc := service.New(store,
			service.WithWorkerCount(8),
			service.WithQueueSize(800),
			service.WithPricingConfig(cfg),
			service.WithClock(fixedClock),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When every suggestion is accepted the moment it is returned", func() {
			var ids []string
			for i := 0; i < 50; i++ {
				sug, err := svc.SuggestPrice(ctx, "subject", pricing.Request{})
				So(err, ShouldBeNil)
				So(sug.SuggestionID, ShouldNotBeEmpty)
				dup, err := svc.LogAcceptance(ctx, sug.SuggestionID, 120)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				ids = append(ids, sug.SuggestionID)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then every accepted price is stored", func() {
				lost := 0
				for _, id := range ids {
					row, err := store.Suggestion(ctx, id)
					if err != nil || !row.AcceptedPrice.Valid {
						lost++
					}
				}
				So(lost, ShouldEqual, 0)
			})
		})

		Convey("When a suggestion is accepted before it was logged", func() {
			dup, err := svc.LogAcceptance(ctx, "late-suggestion", 95)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			Convey("Then the rejected acceptance is released and a retry is stored", func() {
				So(eventually(func() bool {
					st, err := svc.Stats(ctx)
					return err == nil && st.DedupeEntries == 0
				}), ShouldBeTrue)

				_, err := svc.LogSuggestion(ctx, model.SuggestionRecord{ID: "late-suggestion", ProfileID: "subject", SuggestedPrice: 100, MinPrice: 90, MaxPrice: 110})
				So(err, ShouldBeNil)
				dup, err := svc.LogAcceptance(ctx, "late-suggestion", 95)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)

				So(eventually(func() bool {
					got, err := svc.Suggestion(ctx, "late-suggestion")
					return err == nil && got.AcceptedPrice != nil
				}), ShouldBeTrue)
				got, _ := svc.Suggestion(ctx, "late-suggestion")
				So(*got.AcceptedPrice, ShouldEqual, 95)
			})
		})
	})
}
