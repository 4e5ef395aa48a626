package service

import (
	"time"

	"github.com/edusignal/retention-backend/internal/model"
)

// Factor labels are part of the audit trail: tracking and reporting key
// off the exact strings, so they must never be reworded.
const (
	FactorGradeCritical  = "average grade critically low"
	FactorGradeLow       = "average grade low"
	FactorProgressVSlow  = "academic progress very slow"
	FactorProgressSlow   = "academic progress slow"
	FactorInactive30     = "inactive >30 days"
	FactorInactive15     = "inactive >15 days"
	FactorAdvancedBehind = "advanced term, low progress"
)

// AcademicSnapshot carries the five academic signals the scorer reads.
type AcademicSnapshot struct {
	AverageGrade    float64    `json:"average_grade"` // 0-5 scale
	ApprovedCredits int        `json:"approved_credits"`
	TotalCredits    int        `json:"total_credits"`
	CurrentTerm     int        `json:"current_term"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
}

// RiskScorer derives a dropout-risk tier from an academic snapshot. Pure
// and deterministic; the clock is injectable so the inactivity window can
// be pinned in tests.
type RiskScorer struct {
	Clock func() time.Time
}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{Clock: time.Now}
}

// Score accumulates points per signal and maps the total to a tier.
// Brackets are closed on their lower bound (a total of exactly 70 is
// critical). Factors keep the evaluation order: grade, progress,
// inactivity, advanced-term.
func (rs *RiskScorer) Score(snap AcademicSnapshot) (string, []string) {
	score := 0
	factors := []string{}

	if snap.AverageGrade < 2.0 {
		score += 30
		factors = append(factors, FactorGradeCritical)
	} else if snap.AverageGrade < 3.0 {
		score += 20
		factors = append(factors, FactorGradeLow)
	}

	total := snap.TotalCredits
	if total < 1 {
		total = 1
	}
	ratio := float64(snap.ApprovedCredits) / float64(total)
	if ratio < 0.3 {
		score += 25
		factors = append(factors, FactorProgressVSlow)
	} else if ratio < 0.5 {
		score += 15
		factors = append(factors, FactorProgressSlow)
	}

	// A missing activity timestamp is unknown, not safe: it adds no
	// points either way.
	if snap.LastActivityAt != nil {
		days := int(rs.Clock().Sub(*snap.LastActivityAt).Hours() / 24)
		if days > 30 {
			score += 20
			factors = append(factors, FactorInactive30)
		} else if days > 15 {
			score += 10
			factors = append(factors, FactorInactive15)
		}
	}

	if snap.CurrentTerm > 6 && ratio < 0.6 {
		score += 15
		factors = append(factors, FactorAdvancedBehind)
	}

	switch {
	case score >= 70:
		return model.RiskCritical, factors
	case score >= 50:
		return model.RiskHigh, factors
	case score >= 25:
		return model.RiskMedium, factors
	default:
		return model.RiskLow, factors
	}
}

// SnapshotOf extracts the scorer's inputs from a full student record.
func SnapshotOf(s *model.Student) AcademicSnapshot {
	return AcademicSnapshot{
		AverageGrade:    s.AverageGrade,
		ApprovedCredits: s.ApprovedCredits,
		TotalCredits:    s.TotalCredits,
		CurrentTerm:     s.CurrentTerm,
		LastActivityAt:  s.LastActivityAt,
	}
}
