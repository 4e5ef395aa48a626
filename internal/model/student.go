package model

import "time"

// Risk tiers derived by the risk scorer. Stored on the student row and
// matched exactly by audience filters.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

type Student struct {
	ID               string     `db:"id" json:"id"`
	UniversityID     string     `db:"university_id" json:"university_id"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            string     `db:"email" json:"email"`
	Faculty          string     `db:"faculty" json:"faculty"`
	Program          string     `db:"program" json:"program"`
	EnrollmentStatus string     `db:"enrollment_status" json:"enrollment_status"`
	CurrentTerm      int        `db:"current_term" json:"current_term"`
	AverageGrade     float64    `db:"average_grade" json:"average_grade"` // 0-5 scale
	ApprovedCredits  int        `db:"approved_credits" json:"approved_credits"`
	TotalCredits     int        `db:"total_credits" json:"total_credits"`
	LastActivityAt   *time.Time `db:"last_activity_at" json:"last_activity_at,omitempty"`
	RiskTier         string     `db:"risk_tier" json:"risk_tier"`
	RiskFactors      []string   `db:"risk_factors" json:"risk_factors"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
