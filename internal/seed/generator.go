package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/tutormarket/internal/adapters/repository"
	"github.com/okian/tutormarket/internal/domain/profile"
)

// Population is every row of a generated market.
type Population struct {
	Profiles      []repository.TutorProfile
	Credentials   []repository.TutorCredential
	GradeLevels   []repository.TutorGradeLevel
	Courses       []repository.Course
	Enrollments   []repository.Enrollment
	Payments      []repository.Payment
	Conversations []repository.Conversation
	Requests      []repository.ConnectionRequest
}

// Stats counts the rows of p.
func (p *Population) Stats() Stats {
	return Stats{
		Profiles:      len(p.Profiles),
		Credentials:   len(p.Credentials),
		Courses:       len(p.Courses),
		Enrollments:   len(p.Enrollments),
		Payments:      len(p.Payments),
		Conversations: len(p.Conversations),
		Requests:      len(p.Requests),
	}
}

// Generation ranges.
const (
	maxTenureDays     = 1100
	recentShare       = 0.1
	unratedShare      = 0.15
	maxCredentials    = 3
	maxCourses        = 3
	maxEnrollments    = 12
	inactiveShare     = 0.1
	studentPool       = 3000
	minPrice          = 50
	maxPrice          = 400
	priceStep         = 5
	maxConversations  = 6
	unansweredShare   = 0.1
	maxRequests       = 4
	unacceptedShare   = 0.2
	minPaymentAmount  = 15
	paymentAmountSpan = 45
)

var (
	firstNames = []string{"Amina", "Kofi", "Lerato", "Tendai", "Chidi", "Zanele", "Yaw", "Wanjiru", "Tariq", "Nia", "Musa", "Esi"}
	lastNames  = []string{"Okafor", "Mensah", "Dlamini", "Mwangi", "Abebe", "Banda", "Osei", "Ndlovu", "Kamau", "Diallo"}
	locations  = []string{"Nairobi, KE", "Mombasa, KE", "Accra, GH", "Kumasi, GH", "Lagos, NG", "Abuja, NG", "Addis Ababa, ET", "Kampala, UG", "Kigali, RW", "Johannesburg, ZA"}
	hobbies    = []string{"chess", "football", "music", "reading", "hiking", "photography", "cooking", "coding", "drawing", "dance"}
	grades     = []string{"grade_1", "grade_3", "grade_5", "grade_7", "grade_8", "grade_9", "grade_10", "grade_11", "grade_12", "university", "certification"}
	formats    = []string{profile.FormatOnline, profile.FormatInPerson}
	titles     = []string{"BSc", "BEd", "MSc", "PGCE", "TEFL", "PhD"}
)

// category describes one subject area and its typical hourly price.
type category struct {
	name  string
	mean  float64
	sigma float64
	tags  []string
}

var categories = []category{
	{"mathematics", 130, 30, []string{"algebra", "calculus", "geometry", "statistics"}},
	{"physics", 125, 28, []string{"mechanics", "electricity", "optics"}},
	{"chemistry", 120, 25, []string{"organic", "stoichiometry", "lab"}},
	{"biology", 105, 22, []string{"genetics", "ecology", "anatomy"}},
	{"english", 95, 20, []string{"essay", "grammar", "literature", "ielts"}},
	{"programming", 150, 35, []string{"python", "javascript", "algorithms"}},
}

// id derives a stable identifier from the seed, a row kind and its indexes.
func id(seed uint64, kind string, indexes ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tutormarket-seed/%d/%s", seed, kind)
	for _, i := range indexes {
		fmt.Fprintf(&b, "/%d", i)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.String())).String()
}

// ProfileID returns the id Generate assigns to the index-th profile.
func ProfileID(seed uint64, index int) string {
	return id(seed, "profile", index)
}

// tutor is everything generated for one profile.
type tutor struct {
	profile       repository.TutorProfile
	credentials   []repository.TutorCredential
	gradeLevels   []repository.TutorGradeLevel
	courses       []repository.Course
	enrollments   []repository.Enrollment
	payments      []repository.Payment
	conversations []repository.Conversation
	requests      []repository.ConnectionRequest
}

// Generate builds the population described by cfg. Each profile draws
// from its own source keyed by seed and index, so the result does not
// depend on worker scheduling.
func Generate(ctx context.Context, cfg Config) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tutors := make([]tutor, cfg.Profiles)
	workers := min(cfg.Workers, cfg.Profiles)
	perWorker := cfg.Profiles / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workers-1 {
			end = cfg.Profiles
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("generation cancelled at profile %d: %w", i, err)
				}
				tutors[i] = generateTutor(cfg, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pop := &Population{Profiles: make([]repository.TutorProfile, 0, cfg.Profiles)}
	for _, t := range tutors {
		pop.Profiles = append(pop.Profiles, t.profile)
		pop.Credentials = append(pop.Credentials, t.credentials...)
		pop.GradeLevels = append(pop.GradeLevels, t.gradeLevels...)
		pop.Courses = append(pop.Courses, t.courses...)
		pop.Enrollments = append(pop.Enrollments, t.enrollments...)
		pop.Payments = append(pop.Payments, t.payments...)
		pop.Conversations = append(pop.Conversations, t.conversations...)
		pop.Requests = append(pop.Requests, t.requests...)
	}
	return pop, nil
}

func generateTutor(cfg Config, index int) tutor {
	src := rand.NewPCG(cfg.Seed, uint64(index))
	rng := rand.New(src)
	now := cfg.Now
	window := now.AddDate(0, -cfg.Months, 0)

	pid := ProfileID(cfg.Seed, index)
	tenure := 30 + rng.IntN(maxTenureDays)
	if rng.Float64() < recentShare {
		tenure = 1 + rng.IntN(30)
	}
	created := now.AddDate(0, 0, -tenure)

	t := tutor{profile: repository.TutorProfile{
		ID:          pid,
		DisplayName: pick(rng, firstNames) + " " + pick(rng, lastNames),
		Location:    pick(rng, locations),
		Hobbies:     sample(rng, hobbies, rng.IntN(4)),
		CreatedAt:   created,
	}}
	if rng.Float64() >= unratedShare {
		r := math.Round((3+rng.Float64()*2)*10) / 10
		t.profile.Rating = &r
	}

	nCreds := rng.IntN(maxCredentials + 1)
	for c := 0; c < nCreds; c++ {
		t.credentials = append(t.credentials, repository.TutorCredential{
			ProfileID:       pid,
			Title:           pick(rng, titles),
			YearsExperience: rng.IntN(13),
		})
	}
	taught := sample(rng, grades, 1+rng.IntN(3))
	for _, gl := range taught {
		t.gradeLevels = append(t.gradeLevels, repository.TutorGradeLevel{ProfileID: pid, GradeLevel: gl, Active: true})
	}

	// experienced and well rated tutors sit higher in their category's distribution
	premium := float64(len(t.credentials)) * 5
	if t.profile.Rating != nil {
		premium += (*t.profile.Rating - 4) * 10
	}

	nCourses := 1 + rng.IntN(maxCourses)
	for c := 0; c < nCourses; c++ {
		cat := categories[rng.IntN(len(categories))]
		dist := distuv.Normal{Mu: cat.mean + premium, Sigma: cat.sigma, Src: src}
		price := roundPrice(dist.Rand())
		course := repository.Course{
			ID:            id(cfg.Seed, "course", index, c),
			ProfileID:     pid,
			Name:          strings.ToUpper(cat.name[:1]) + cat.name[1:] + " " + pick(rng, cat.tags),
			Category:      cat.name,
			Tags:          sample(rng, cat.tags, 1+rng.IntN(2)),
			SessionFormat: pick(rng, formats),
			GradeLevel:    pick(rng, taught),
			PricePerHour:  decimal.NewFromInt(price),
			Active:        rng.Float64() >= inactiveShare,
		}
		t.courses = append(t.courses, course)
		t.enrollments = append(t.enrollments, enrollments(rng, cfg.Seed, index, c, course, maxTime(created, window), now)...)
	}

	t.payments = payments(rng, pid, created, window, now)
	t.conversations = conversations(rng, pid, maxTime(created, window), now)
	t.requests = requests(rng, pid, maxTime(created, window), now)
	return t
}

func enrollments(rng *rand.Rand, seed uint64, index, course int, c repository.Course, from, to time.Time) []repository.Enrollment {
	n := rng.IntN(maxEnrollments + 1)
	out := make([]repository.Enrollment, 0, n)
	for e := 0; e < n; e++ {
		created := between(rng, from, to)
		status := enrollmentStatus(rng)
		jitter := int64(rng.IntN(3)-1) * priceStep
		en := repository.Enrollment{
			ID:           id(seed, "enrollment", index, course, e),
			CourseID:     c.ID,
			ProfileID:    c.ProfileID,
			StudentID:    fmt.Sprintf("student-%04d", rng.IntN(studentPool)),
			Status:       status,
			PricePerHour: c.PricePerHour.Add(decimal.NewFromInt(jitter)),
			CreatedAt:    created,
		}
		if status == repository.StatusConfirmed || status == repository.StatusCompleted {
			at := created.Add(time.Duration(1+rng.IntN(48)) * time.Hour)
			en.ConfirmedAt = &at
		}
		out = append(out, en)
	}
	return out
}

func enrollmentStatus(rng *rand.Rand) string {
	switch p := rng.Float64(); {
	case p < 0.45:
		return repository.StatusConfirmed
	case p < 0.75:
		return repository.StatusCompleted
	case p < 0.85:
		return repository.StatusPending
	default:
		return repository.StatusCancelled
	}
}

// payments creates one monthly obligation per month of tenure inside the window.
func payments(rng *rand.Rand, pid string, created, window, now time.Time) []repository.Payment {
	var out []repository.Payment
	for due := maxTime(created, window).AddDate(0, 1, 0); !due.After(now); due = due.AddDate(0, 1, 0) {
		p := repository.Payment{
			ProfileID: pid,
			Amount:    decimal.NewFromInt(int64(minPaymentAmount + rng.IntN(paymentAmountSpan))),
			DueAt:     due,
		}
		switch x := rng.Float64(); {
		case x < 0.80:
			p.Status = repository.PaymentPaid
			at := due.Add(-time.Duration(rng.IntN(72)) * time.Hour)
			p.PaidAt = &at
		case x < 0.88:
			p.Status = repository.PaymentLate
			at := due.AddDate(0, 0, 1+rng.IntN(20))
			p.PaidAt = &at
		case x < 0.94:
			p.Status = repository.PaymentMissed
		default:
			p.Status = repository.PaymentOutstanding
		}
		out = append(out, p)
	}
	return out
}

func conversations(rng *rand.Rand, pid string, from, to time.Time) []repository.Conversation {
	n := rng.IntN(maxConversations + 1)
	out := make([]repository.Conversation, 0, n)
	for i := 0; i < n; i++ {
		c := repository.Conversation{ProfileID: pid, FirstStudentMessageAt: between(rng, from, to)}
		if rng.Float64() >= unansweredShare {
			at := c.FirstStudentMessageAt.Add(time.Duration(10+rng.IntN(48*60)) * time.Minute)
			c.FirstTutorReplyAt = &at
		}
		out = append(out, c)
	}
	return out
}

func requests(rng *rand.Rand, pid string, from, to time.Time) []repository.ConnectionRequest {
	n := rng.IntN(maxRequests + 1)
	out := make([]repository.ConnectionRequest, 0, n)
	for i := 0; i < n; i++ {
		r := repository.ConnectionRequest{ProfileID: pid, RequestedAt: between(rng, from, to)}
		if rng.Float64() >= unacceptedShare {
			at := r.RequestedAt.Add(time.Duration(1+rng.IntN(120)) * time.Hour)
			r.AcceptedAt = &at
		}
		out = append(out, r)
	}
	return out
}

func roundPrice(v float64) int64 {
	v = math.Max(minPrice, math.Min(maxPrice, v))
	return int64(math.Round(v/priceStep) * priceStep)
}

// between returns a time in [from, to), or from when the range is empty.
func between(rng *rand.Rand, from, to time.Time) time.Time {
	span := to.Sub(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(rng.Int64N(int64(span)))).Truncate(time.Second)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

// sample returns n distinct elements of xs in a random order.
func sample[T any](rng *rand.Rand, xs []T, n int) []T {
	n = min(n, len(xs))
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for _, i := range rng.Perm(len(xs))[:n] {
		out = append(out, xs[i])
	}
	return out
}
