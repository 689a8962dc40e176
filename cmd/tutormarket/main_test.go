package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/scoring"
	"github.com/okian/tutormarket/internal/seed"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func useTempDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("TUTORMARKET_CONFIG", "")
	t.Setenv("TUTORMARKET_DB_DRIVER", "sqlite")
	t.Setenv("TUTORMARKET_DB_DSN", filepath.Join(t.TempDir(), "tutormarket.db"))
	t.Setenv("TUTORMARKET_LOG_WORKER_COUNT", "2")
	t.Setenv("TUTORMARKET_LOG_LEVEL", "warn")
}

func TestCLI_Migrate(t *testing.T) {
	useTempDatabase(t)
	ctx := context.Background()

	convey.Convey("Given an empty sqlite database", t, func() {
		convey.Convey("When migrating twice", func() {
			first, err := run(ctx, "migrate")
			convey.So(err, convey.ShouldBeNil)
			second, err2 := run(ctx, "migrate")

			convey.Convey("Then default rules are inserted only once", func() {
				convey.So(first, convey.ShouldContainSubstring, "4 base-price rules inserted")
				convey.So(err2, convey.ShouldBeNil)
				convey.So(second, convey.ShouldContainSubstring, "0 base-price rules inserted")
			})
		})
	})
}

func TestCLI_Query(t *testing.T) {
	useTempDatabase(t)
	ctx := context.Background()

	out, err := run(ctx, "seed", "--profiles", "30", "--seed", "7", "--batch-size", "25")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	convey.Convey("Given a seeded population", t, func() {
		var stats seed.Stats
		convey.So(json.Unmarshal([]byte(out), &stats), convey.ShouldBeNil)
		convey.So(stats.Profiles, convey.ShouldEqual, 30)
		subject := seed.ProfileID(7, 0)

		convey.Convey("When suggesting a price", func() {
			out, err := run(ctx, "suggest", subject, "--months", "12")

			convey.Convey("Then a bounded suggestion is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var sug pricing.Suggestion
				convey.So(json.Unmarshal([]byte(out), &sug), convey.ShouldBeNil)
				convey.So(sug.ProfileID, convey.ShouldEqual, subject)
				convey.So(sug.SuggestedPrice, convey.ShouldBeBetweenOrEqual, 50, 500)
				convey.So(int(sug.SuggestedPrice)%5, convey.ShouldEqual, 0)
				convey.So(sug.TimePeriodMonths, convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When listing comparables", func() {
			out, err := run(ctx, "suggest", subject, "--comparables", "--months", "6", "--format", "online")

			convey.Convey("Then the scored peer set is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var cmp pricing.Comparables
				convey.So(json.Unmarshal([]byte(out), &cmp), convey.ShouldBeNil)
				convey.So(cmp.Subject.ProfileID, convey.ShouldEqual, subject)
				convey.So(cmp.TimePeriodMonths, convey.ShouldEqual, 6)
				for _, c := range cmp.Comparables {
					convey.So(c.ProfileID, convey.ShouldNotEqual, subject)
				}
			})
		})

		convey.Convey("When suggesting for an unknown profile", func() {
			_, err := run(ctx, "suggest", "nobody")

			convey.Convey("Then the not-found error is returned", func() {
				convey.So(errors.Is(err, profile.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When ranking one profile", func() {
			out, err := run(ctx, "rank", subject, "--interest", "algebra")

			convey.Convey("Then its score is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var res scoring.Result
				convey.So(json.Unmarshal([]byte(out), &res), convey.ShouldBeNil)
				convey.So(res.ProfileID, convey.ShouldEqual, subject)
			})
		})

		convey.Convey("When ranking several profiles", func() {
			out, err := run(ctx, "rank", seed.ProfileID(7, 1), seed.ProfileID(7, 2), "nobody", seed.ProfileID(7, 3))

			convey.Convey("Then known profiles are printed best first", func() {
				convey.So(err, convey.ShouldBeNil)
				var res []scoring.Result
				convey.So(json.Unmarshal([]byte(out), &res), convey.ShouldBeNil)
				convey.So(res, convey.ShouldHaveLength, 3)
				for i := 1; i < len(res); i++ {
					convey.So(res[i-1].Total, convey.ShouldBeGreaterThanOrEqualTo, res[i].Total)
				}
			})
		})
	})
}

func TestCLI_Serve(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("TUTORMARKET_ADDR", "127.0.0.1:0")

	convey.Convey("Given the serve command", t, func() {
		convey.Convey("When its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			_, err := run(ctx, "serve", "--migrate")

			convey.Convey("Then it shuts down cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestCLI_Config(t *testing.T) {
	useTempDatabase(t)
	ctx := context.Background()

	convey.Convey("Given a missing config file", t, func() {
		_, err := run(ctx, "migrate", "--config", "/nonexistent/tutormarket.yaml")

		convey.Convey("Then the command fails before touching the database", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "load config")
		})
	})

	convey.Convey("Given an unknown subcommand argument count", t, func() {
		_, err := run(ctx, "suggest")

		convey.Convey("Then cobra rejects it", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
