package seed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tutormarket/internal/adapters/repository"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/internal/seed"
	"github.com/okian/tutormarket/pkg/logger"
)

var now = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func testConfig(profiles int) seed.Config {
	cfg := seed.Defaults()
	cfg.Profiles = profiles
	cfg.Now = now
	cfg.BatchSize = 50
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	Convey("Given generator settings", t, func() {
		Convey("The defaults are valid", func() {
			So(seed.Defaults().Validate(), ShouldBeNil)
		})

		Convey("Non-positive sizes are rejected", func() {
			for _, mutate := range []func(*seed.Config){
				func(c *seed.Config) { c.Profiles = 0 },
				func(c *seed.Config) { c.Months = 0 },
				func(c *seed.Config) { c.Workers = -1 },
				func(c *seed.Config) { c.BatchSize = 0 },
				func(c *seed.Config) { c.Now = time.Time{} },
			} {
				cfg := testConfig(10)
				mutate(&cfg)
				So(errors.Is(cfg.Validate(), seed.ErrInvalidConfig), ShouldBeTrue)
			}
		})
	})
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seed and a reference time", t, func() {
		cfg := testConfig(60)

		Convey("The same settings give the same population", func() {
			a, err := seed.Generate(ctx, cfg)
			So(err, ShouldBeNil)
			cfg.Workers = 1
			b, err := seed.Generate(ctx, cfg)
			So(err, ShouldBeNil)
			So(a, ShouldResemble, b)
		})

		Convey("Another seed gives other profiles", func() {
			a, _ := seed.Generate(ctx, cfg)
			cfg.Seed++
			b, _ := seed.Generate(ctx, cfg)
			So(a.Profiles[0].ID, ShouldNotEqual, b.Profiles[0].ID)
		})

		Convey("Rows are consistent with each other", func() {
			pop, err := seed.Generate(ctx, cfg)
			So(err, ShouldBeNil)
			So(pop.Profiles, ShouldHaveLength, 60)
			So(pop.Profiles[3].ID, ShouldEqual, seed.ProfileID(cfg.Seed, 3))
			So(len(pop.Courses), ShouldBeGreaterThanOrEqualTo, 60)

			profiles := make(map[string]time.Time, len(pop.Profiles))
			for _, p := range pop.Profiles {
				profiles[p.ID] = p.CreatedAt
				So(p.CreatedAt.Before(now), ShouldBeTrue)
			}
			courses := make(map[string]bool, len(pop.Courses))
			for _, c := range pop.Courses {
				_, ok := profiles[c.ProfileID]
				So(ok, ShouldBeTrue)
				So(c.PricePerHour.IntPart()%5, ShouldEqual, int64(0))
				So(c.PricePerHour.IntPart(), ShouldBeBetweenOrEqual, 50, 400)
				courses[c.ID] = true
			}
			window := now.AddDate(0, -cfg.Months, 0)
			for _, e := range pop.Enrollments {
				So(courses[e.CourseID], ShouldBeTrue)
				So(e.CreatedAt.Before(window), ShouldBeFalse)
				So(e.CreatedAt.After(now), ShouldBeFalse)
				So(e.CreatedAt.Before(profiles[e.ProfileID]), ShouldBeFalse)
				if e.Status == repository.StatusConfirmed || e.Status == repository.StatusCompleted {
					So(e.ConfirmedAt, ShouldNotBeNil)
				}
			}
			for _, p := range pop.Payments {
				So(p.DueAt.After(now), ShouldBeFalse)
			}
		})

		Convey("A cancelled context stops generation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := seed.Generate(cctx, cfg)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("Invalid settings are rejected", func() {
			cfg.Profiles = 0
			_, err := seed.Generate(ctx, cfg)
			So(errors.Is(err, seed.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	_ = logger.Init()

	Convey("Given a migrated sqlite database", t, func() {
		store, err := repository.Open(repository.DriverSqlite, ":memory:", repository.WithClock(func() time.Time { return now }))
		So(err, ShouldBeNil)
		defer store.Close()
		So(store.Migrate(ctx), ShouldBeNil)
		_, err = store.SeedRules(ctx, rules.Defaults())
		So(err, ShouldBeNil)

		Convey("The written population matches the generated counts", func() {
			cfg := testConfig(40)
			stats, err := seed.Run(ctx, store.DB(), cfg)
			So(err, ShouldBeNil)

			counts, err := store.Stats(ctx)
			So(err, ShouldBeNil)
			So(counts.Profiles, ShouldEqual, int64(stats.Profiles))
			So(counts.Courses, ShouldEqual, int64(stats.Courses))
			So(counts.Enrollments, ShouldEqual, int64(stats.Enrollments))

			Convey("And the engine can price a seeded tutor", func() {
				pop, _ := seed.Generate(ctx, cfg)
				resolver := rules.NewResolver(store)
				engine, err := pricing.New(store, resolver, pricing.WithClock(func() time.Time { return now }))
				So(err, ShouldBeNil)

				sug, err := engine.SuggestPrice(ctx, pop.Profiles[0].ID, pricing.Request{TimePeriodMonths: 12})
				So(err, ShouldBeNil)
				So(sug.SuggestedPrice, ShouldBeBetweenOrEqual, 50, 500)
				So(int(sug.SuggestedPrice)%5, ShouldEqual, 0)
			})
		})

		Convey("Writing twice collides on primary keys", func() {
			cfg := testConfig(5)
			_, err := seed.Run(ctx, store.DB(), cfg)
			So(err, ShouldBeNil)
			_, err = seed.Run(ctx, store.DB(), cfg)
			So(err, ShouldNotBeNil)

			counts, _ := store.Stats(ctx)
			So(counts.Profiles, ShouldEqual, int64(5))
		})
	})
}
