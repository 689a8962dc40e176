package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/scoring"
)

// RankingInputs loads everything the ranking scorer needs for one profile.
// The independent reads run concurrently.
func (s *Store) RankingInputs(ctx context.Context, profileID string) (scoring.Inputs, error) {
	var p TutorProfile
	err := s.db.WithContext(ctx).Take(&p, "id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return scoring.Inputs{}, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	if err != nil {
		return scoring.Inputs{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now()
	in := scoring.Inputs{
		ProfileID:      p.ID,
		Hobbies:        p.Hobbies,
		AccountAgeDays: profile.AccountAgeDays(p.CreatedAt, now),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Offerings, err = s.offerings(gctx, profileID)
		return err
	})
	g.Go(func() error {
		var err error
		in.StudentsServed, in.CompletedEnrollments, in.TotalEnrollments, err = s.enrollmentStats(gctx, profileID)
		return err
	})
	g.Go(func() error {
		var err error
		in.MessageLatency, err = s.messageLatency(gctx, profileID)
		return err
	})
	g.Go(func() error {
		var err error
		in.RequestLatency, err = s.requestLatency(gctx, profileID)
		return err
	})
	g.Go(func() error {
		var n int64
		if err := s.db.WithContext(gctx).Model(&TutorCredential{}).Where("profile_id = ?", profileID).Count(&n).Error; err != nil {
			return fmt.Errorf("count credentials: %w", err)
		}
		in.CredentialCount = int(n)
		return nil
	})
	g.Go(func() error {
		var err error
		in.Penalty, err = s.penaltyState(gctx, profileID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return scoring.Inputs{}, err
	}
	return in, nil
}

func (s *Store) offerings(ctx context.Context, profileID string) ([]scoring.Offering, error) {
	var courses []Course
	err := s.db.WithContext(ctx).
		Where("profile_id = ? AND active = ?", profileID, true).
		Order("id").
		Find(&courses).Error
	if err != nil {
		return nil, fmt.Errorf("load offerings: %w", err)
	}
	out := make([]scoring.Offering, 0, len(courses))
	for _, c := range courses {
		out = append(out, scoring.Offering{CourseID: c.ID, Name: c.Name, Category: c.Category, Tags: c.Tags})
	}
	return out, nil
}

func (s *Store) enrollmentStats(ctx context.Context, profileID string) (served, completed, total int, err error) {
	db := s.db.WithContext(ctx)
	var distinct int64
	err = db.Model(&Enrollment{}).
		Where("profile_id = ? AND status IN ?", profileID, marketStatuses).
		Distinct("student_id").
		Count(&distinct).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count students: %w", err)
	}
	var counts []statusCount
	err = db.Model(&Enrollment{}).
		Select("profile_id, status, COUNT(*) AS n").
		Where("profile_id = ? AND status IN ?", profileID, closedStatuses).
		Group("profile_id, status").
		Scan(&counts).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count enrollments: %w", err)
	}
	for _, c := range counts {
		total += c.N
		if c.Status == StatusCompleted {
			completed += c.N
		}
	}
	return int(distinct), completed, total, nil
}

func (s *Store) messageLatency(ctx context.Context, profileID string) (scoring.LatencySample, error) {
	var rows []Conversation
	err := s.db.WithContext(ctx).
		Where("profile_id = ? AND first_tutor_reply_at IS NOT NULL", profileID).
		Find(&rows).Error
	if err != nil {
		return scoring.LatencySample{}, fmt.Errorf("load conversations: %w", err)
	}
	pairs := make([][2]time.Time, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, [2]time.Time{r.FirstStudentMessageAt, *r.FirstTutorReplyAt})
	}
	return latency(pairs), nil
}

func (s *Store) requestLatency(ctx context.Context, profileID string) (scoring.LatencySample, error) {
	var rows []ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("profile_id = ? AND accepted_at IS NOT NULL", profileID).
		Find(&rows).Error
	if err != nil {
		return scoring.LatencySample{}, fmt.Errorf("load connection requests: %w", err)
	}
	pairs := make([][2]time.Time, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, [2]time.Time{r.RequestedAt, *r.AcceptedAt})
	}
	return latency(pairs), nil
}

// latency averages the minutes between each start and end, ignoring
// pairs that end before they start.
func latency(pairs [][2]time.Time) scoring.LatencySample {
	var sum float64
	var n int
	for _, p := range pairs {
		d := p[1].Sub(p[0])
		if d < 0 {
			continue
		}
		sum += d.Minutes()
		n++
	}
	if n == 0 {
		return scoring.LatencySample{}
	}
	return scoring.LatencySample{AvgMinutes: sum / float64(n), Count: n}
}

func (s *Store) penaltyState(ctx context.Context, profileID string, now time.Time) (scoring.PenaltyState, error) {
	var payments []Payment
	if err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).Find(&payments).Error; err != nil {
		return scoring.PenaltyState{}, fmt.Errorf("load payments: %w", err)
	}
	st := scoring.PenaltyState{OutstandingDebt: decimal.Zero}
	for _, p := range payments {
		switch p.Status {
		case PaymentLate:
			st.LatePayments++
		case PaymentMissed:
			st.MissedPayments++
		}
		if p.PaidAt != nil || p.Status == PaymentPaid || p.Status == PaymentLate {
			continue
		}
		st.OutstandingDebt = st.OutstandingDebt.Add(p.Amount)
		if days := int(now.Sub(p.DueAt).Hours() / 24); days > st.MaxDaysOverdue {
			st.MaxDaysOverdue = days
		}
	}
	return st, nil
}
