package repository

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/okian/tutormarket/internal/domain/profile"
)

// Enrollment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPaid        = "paid"
	PaymentLate        = "late"
	PaymentMissed      = "missed"
	PaymentOutstanding = "outstanding"
)

// TutorProfile is the stored tutor row.
type TutorProfile struct {
	ID          string    `gorm:"primaryKey;size:64"           json:"id"`
	DisplayName string    `gorm:"size:160;not null;default:''" json:"displayName"`
	Location    string    `gorm:"size:255;not null;default:''" json:"location"`
	Rating      *float64  `gorm:"column:rating"                json:"rating,omitempty"`
	Hobbies     []string  `gorm:"serializer:json;type:text"    json:"hobbies,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index"               json:"createdAt"`
}

func (TutorProfile) TableName() string { return "tutor_profiles" }

// TutorCredential is one declared qualification.
type TutorCredential struct {
	ID              uint   `gorm:"primaryKey"`
	ProfileID       string `gorm:"size:64;not null;index"`
	Title           string `gorm:"size:160;not null;default:''"`
	YearsExperience int    `gorm:"not null;default:0"`
}

func (TutorCredential) TableName() string { return "tutor_credentials" }

// TutorGradeLevel is a grade level a tutor teaches.
type TutorGradeLevel struct {
	ID         uint   `gorm:"primaryKey"`
	ProfileID  string `gorm:"size:64;not null;index"`
	GradeLevel string `gorm:"size:32;not null"`
	Active     bool   `gorm:"not null"`
}

func (TutorGradeLevel) TableName() string { return "tutor_grade_levels" }

// Course is an offering published by a tutor.
type Course struct {
	ID            string          `gorm:"primaryKey;size:64"`
	ProfileID     string          `gorm:"size:64;not null;index"`
	Name          string          `gorm:"size:255;not null"`
	Category      string          `gorm:"size:64;not null;default:'';index"`
	Tags          []string        `gorm:"serializer:json;type:text"`
	SessionFormat string          `gorm:"size:32;not null;default:''"`
	GradeLevel    string          `gorm:"size:32;not null;default:''"`
	PricePerHour  decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Active        bool            `gorm:"not null"`
}

func (Course) TableName() string { return "courses" }

// BeforeSave stores category lower-cased and the format in canonical form.
func (c *Course) BeforeSave(*gorm.DB) error {
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	c.SessionFormat = profile.NormalizeFormat(c.SessionFormat)
	return nil
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID           string          `gorm:"primaryKey;size:64"`
	CourseID     string          `gorm:"size:64;not null;index"`
	ProfileID    string          `gorm:"size:64;not null;index:idx_enrollments_profile_status"`
	StudentID    string          `gorm:"size:64;not null"`
	Status       string          `gorm:"size:16;not null;index:idx_enrollments_profile_status"`
	PricePerHour decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt    time.Time       `gorm:"not null;index"`
	ConfirmedAt  *time.Time
}

func (Enrollment) TableName() string { return "enrollments" }

// Payment is one obligation owed by a tutor to the platform.
type Payment struct {
	ID        uint            `gorm:"primaryKey"`
	ProfileID string          `gorm:"size:64;not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DueAt     time.Time       `gorm:"not null"`
	Status    string          `gorm:"size:16;not null"`
	PaidAt    *time.Time
}

func (Payment) TableName() string { return "payments" }

// Conversation records the first exchange of a student thread.
type Conversation struct {
	ID                    uint      `gorm:"primaryKey"`
	ProfileID             string    `gorm:"size:64;not null;index"`
	FirstStudentMessageAt time.Time `gorm:"not null"`
	FirstTutorReplyAt     *time.Time
}

func (Conversation) TableName() string { return "conversations" }

// ConnectionRequest is a student's request to work with a tutor.
type ConnectionRequest struct {
	ID          uint      `gorm:"primaryKey"`
	ProfileID   string    `gorm:"size:64;not null;index"`
	RequestedAt time.Time `gorm:"not null"`
	AcceptedAt  *time.Time
}

func (ConnectionRequest) TableName() string { return "connection_requests" }

// BasePriceRule is the stored form of rules.BasePriceRule.
type BasePriceRule struct {
	ID                     string          `gorm:"primaryKey;size:64"`
	SubjectCategory        string          `gorm:"size:64;not null;uniqueIndex:idx_base_price_rules_key"`
	SessionFormat          string          `gorm:"size:32;not null;uniqueIndex:idx_base_price_rules_key"`
	BasePricePerHour       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CredentialBonus        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	ExperienceBonusPerYear decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Priority               int             `gorm:"not null;default:100"`
}

func (BasePriceRule) TableName() string { return "base_price_rules" }

// PriceSuggestionLog is one emitted suggestion and, once known, its acceptance.
type PriceSuggestionLog struct {
	ID               string              `gorm:"primaryKey;size:64"`
	ProfileID        string              `gorm:"size:64;not null;index"`
	SuggestedPrice   decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	MarketAverage    decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	MinPrice         decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	MaxPrice         decimal.Decimal     `gorm:"type:numeric(10,2);not null"`
	Confidence       string              `gorm:"size:16;not null;default:''"`
	Source           string              `gorm:"size:16;not null;default:''"`
	TutorCount       int                 `gorm:"not null;default:0"`
	SimilarCount     int                 `gorm:"not null;default:0"`
	TimePeriodMonths int                 `gorm:"not null;default:0"`
	Factors          string              `gorm:"type:text"`
	CreatedAt        time.Time           `gorm:"not null;index"`
	AcceptedPrice    decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	AcceptedAt       *time.Time
}

func (PriceSuggestionLog) TableName() string { return "price_suggestion_logs" }

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&TutorProfile{},
		&TutorCredential{},
		&TutorGradeLevel{},
		&Course{},
		&Enrollment{},
		&Payment{},
		&Conversation{},
		&ConnectionRequest{},
		&BasePriceRule{},
		&PriceSuggestionLog{},
	}
}
