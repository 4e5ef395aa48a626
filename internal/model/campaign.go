package model

import "time"

// Campaign lifecycle states. Draft and scheduled campaigns can be sent;
// sent and cancelled are terminal.
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignSent      = "sent"
	CampaignCancelled = "cancelled"
)

// AudienceFilter is the recipient filter specification stored on a
// campaign. Zero values mean "no constraint on this dimension".
type AudienceFilter struct {
	Faculty          string   `json:"faculty,omitempty"`
	Program          string   `json:"program,omitempty"`
	EnrollmentStatus string   `json:"enrollment_status,omitempty"`
	RiskTier         string   `json:"risk_tier,omitempty"`
	CurrentTerm      *int     `json:"current_term,omitempty"`
	MinGrade         *float64 `json:"min_grade,omitempty"`
	MaxGrade         *float64 `json:"max_grade,omitempty"`
	InactiveDays     *int     `json:"inactive_days,omitempty"`
}

// IsZero reports whether no dimension is constrained.
func (f AudienceFilter) IsZero() bool {
	return f.Faculty == "" && f.Program == "" && f.EnrollmentStatus == "" &&
		f.RiskTier == "" && f.CurrentTerm == nil && f.MinGrade == nil &&
		f.MaxGrade == nil && f.InactiveDays == nil
}

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	UniversityID    string         `db:"university_id" json:"university_id"`
	Name            string         `db:"name" json:"name"`
	Status          string         `db:"status" json:"status"`
	Subject         string         `db:"subject" json:"subject"`
	BodyTemplate    string         `db:"body_template" json:"body_template"`
	Filter          AudienceFilter `db:"filter" json:"filter"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	CreatedBy       string         `db:"created_by" json:"created_by"`
	ScheduledAt     *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
