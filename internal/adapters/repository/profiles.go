package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/rules"
)

// marketStatuses are the enrollment states that count as a transacted price.
var marketStatuses = []string{StatusConfirmed, StatusCompleted}

// closedStatuses form the completion-rate denominator.
var closedStatuses = []string{StatusConfirmed, StatusCompleted, StatusCancelled}

// SubjectProfile derives the attribute snapshot of one profile.
func (s *Store) SubjectProfile(ctx context.Context, profileID string) (profile.Subject, error) {
	subjects, err := s.subjects(ctx, []string{profileID})
	if err != nil {
		return profile.Subject{}, err
	}
	sub, ok := subjects[profileID]
	if !ok {
		return profile.Subject{}, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	return sub, nil
}

// ConfirmedEnrollmentCount counts confirmed and completed enrollments.
func (s *Store) ConfirmedEnrollmentCount(ctx context.Context, profileID string) (int, error) {
	if err := s.mustExist(ctx, profileID); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&Enrollment{}).
		Where("profile_id = ? AND status IN ?", profileID, marketStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return int(n), nil
}

// CreationRank returns the 1-based position of the profile by creation
// time, ties broken by id.
func (s *Store) CreationRank(ctx context.Context, profileID string) (int, error) {
	var p TutorProfile
	err := s.db.WithContext(ctx).Select("id", "created_at").Take(&p, "id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	if err != nil {
		return 0, fmt.Errorf("load profile: %w", err)
	}
	var earlier int64
	err = s.db.WithContext(ctx).Model(&TutorProfile{}).
		Where("created_at < ? OR (created_at = ? AND id < ?)", p.CreatedAt, p.CreatedAt, p.ID).
		Count(&earlier).Error
	if err != nil {
		return 0, fmt.Errorf("count earlier profiles: %w", err)
	}
	return int(earlier) + 1, nil
}

// CourseCategory returns the most common category among courseIDs, ties
// broken alphabetically. No ids yields ""; ids matching no course yield
// rules.Any.
func (s *Store) CourseCategory(ctx context.Context, courseIDs []string) (string, error) {
	if len(courseIDs) == 0 {
		return "", nil
	}
	var cats []string
	err := s.db.WithContext(ctx).Model(&Course{}).
		Where("id IN ?", courseIDs).
		Pluck("category", &cats).Error
	if err != nil {
		return "", fmt.Errorf("load course categories: %w", err)
	}
	return mostCommon(cats, rules.Any), nil
}

type observationRow struct {
	ProfileID       string
	CourseID        string
	CoursePrice     decimal.Decimal
	EnrollmentPrice decimal.Decimal
	SessionFormat   string
	GradeLevel      string
}

// Observations returns one observation per (peer, active course) with at
// least one confirmed or completed enrollment inside the window. The
// observed price is the mean transacted price, or the listed price when no
// enrollment carries one.
func (s *Store) Observations(ctx context.Context, q profile.ObservationQuery) ([]profile.Observation, error) {
	tx := s.db.WithContext(ctx).Table("enrollments AS e").
		Select("c.profile_id AS profile_id, c.id AS course_id, c.price_per_hour AS course_price, "+
			"e.price_per_hour AS enrollment_price, c.session_format AS session_format, c.grade_level AS grade_level").
		Joins("JOIN courses AS c ON c.id = e.course_id").
		Where("c.active = ?", true).
		Where("e.status IN ?", marketStatuses)
	if !q.Since.IsZero() {
		tx = tx.Where("e.created_at >= ?", q.Since)
	}
	if q.ExcludeProfileID != "" {
		tx = tx.Where("c.profile_id <> ?", q.ExcludeProfileID)
	}
	if c := strings.ToLower(q.Category); c != "" && c != rules.Any {
		tx = tx.Where("c.category = ?", c)
	}
	if f := profile.NormalizeFormat(q.SessionFormat); f != "" {
		tx = tx.Where("c.session_format = ?", f)
	}

	var rows []observationRow
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}

	grades := gradeSet(q.GradeLevels)
	type key struct{ profile, course string }
	type agg struct {
		row   observationRow
		sum   decimal.Decimal
		count int64
	}
	groups := make(map[key]*agg)
	var order []key
	for _, r := range rows {
		if grades != nil {
			o, ok := profile.GradeOrdinal(r.GradeLevel)
			if !ok || !grades[o] {
				continue
			}
		}
		k := key{r.ProfileID, r.CourseID}
		g, ok := groups[k]
		if !ok {
			g = &agg{row: r}
			groups[k] = g
			order = append(order, k)
		}
		if r.EnrollmentPrice.IsPositive() {
			g.sum = g.sum.Add(r.EnrollmentPrice)
			g.count++
		}
	}
	if len(order) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(order))
	seen := make(map[string]bool)
	for _, k := range order {
		if !seen[k.profile] {
			seen[k.profile] = true
			ids = append(ids, k.profile)
		}
	}
	peers, err := s.subjects(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]profile.Observation, 0, len(order))
	for _, k := range order {
		g := groups[k]
		peer, ok := peers[k.profile]
		if !ok {
			continue
		}
		price := g.row.CoursePrice
		if g.count > 0 {
			price = g.sum.Div(decimal.NewFromInt(g.count))
		}
		if !price.IsPositive() {
			continue
		}
		peer.SessionFormat = g.row.SessionFormat
		out = append(out, profile.Observation{
			Subject:       peer,
			CourseID:      k.course,
			ObservedPrice: price.InexactFloat64(),
		})
	}
	return out, nil
}

type statusCount struct {
	ProfileID string
	Status    string
	N         int
}

// subjects batch-loads and derives the snapshots of ids. Unknown ids are
// absent from the result.
func (s *Store) subjects(ctx context.Context, ids []string) (map[string]profile.Subject, error) {
	db := s.db.WithContext(ctx)

	var profiles []TutorProfile
	if err := db.Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return map[string]profile.Subject{}, nil
	}

	var creds []TutorCredential
	if err := db.Where("profile_id IN ?", ids).Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	var grades []TutorGradeLevel
	if err := db.Where("profile_id IN ? AND active = ?", ids, true).Find(&grades).Error; err != nil {
		return nil, fmt.Errorf("load grade levels: %w", err)
	}
	var counts []statusCount
	err := db.Model(&Enrollment{}).
		Select("profile_id, status, COUNT(*) AS n").
		Where("profile_id IN ?", ids).
		Group("profile_id, status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	var courses []Course
	if err := db.Select("profile_id", "session_format").Where("profile_id IN ? AND active = ?", ids, true).Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("load course formats: %w", err)
	}

	raws := make(map[string]*profile.Raw, len(profiles))
	formats := make(map[string][]string)
	for _, p := range profiles {
		raws[p.ID] = &profile.Raw{
			ProfileID: p.ID,
			Rating:    p.Rating,
			CreatedAt: p.CreatedAt,
			Location:  p.Location,
		}
	}
	for _, c := range creds {
		if r, ok := raws[c.ProfileID]; ok {
			r.CredentialYears = append(r.CredentialYears, c.YearsExperience)
		}
	}
	for _, g := range grades {
		if r, ok := raws[g.ProfileID]; ok {
			r.GradeLevels = append(r.GradeLevels, g.GradeLevel)
		}
	}
	for _, c := range counts {
		r, ok := raws[c.ProfileID]
		if !ok {
			continue
		}
		switch c.Status {
		case StatusConfirmed:
			r.ActiveEnrollments += c.N
			r.ClosedEnrollments += c.N
		case StatusCompleted:
			r.CompletedEnrollments += c.N
			r.ClosedEnrollments += c.N
		case StatusCancelled:
			r.ClosedEnrollments += c.N
		}
	}
	for _, c := range courses {
		formats[c.ProfileID] = append(formats[c.ProfileID], c.SessionFormat)
	}

	now := s.now()
	out := make(map[string]profile.Subject, len(raws))
	for id, r := range raws {
		r.SessionFormat = mostCommon(formats[id], "")
		out[id] = profile.Derive(*r, now)
	}
	return out, nil
}

func (s *Store) mustExist(ctx context.Context, profileID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&TutorProfile{}).Where("id = ?", profileID).Count(&n).Error; err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	return nil
}

// mostCommon returns the most frequent non-empty value, ties broken
// alphabetically, or def when there is none.
func mostCommon(values []string, def string) string {
	freq := make(map[string]int)
	for _, v := range values {
		if v != "" {
			freq[v]++
		}
	}
	if len(freq) == 0 {
		return def
	}
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys[0]
}

func gradeSet(levels []string) map[int]bool {
	if len(levels) == 0 {
		return nil
	}
	set := make(map[int]bool, len(levels))
	for _, l := range levels {
		if o, ok := profile.GradeOrdinal(l); ok {
			set[o] = true
		}
	}
	return set
}
