package service

import (
	"time"

	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/repository"
)

// DefaultAudienceCap bounds the rows a single Select may return. Callers
// needing a bigger audience must paginate at the store layer.
const DefaultAudienceCap = 1000

// AudienceSelector resolves a campaign's filter specification into the
// concrete recipient list. One indexed lookup against the student store,
// everything else evaluated in memory.
type AudienceSelector struct {
	StudentRepo repository.StudentRepositoryInterface
	Cap         int
	Clock       func() time.Time
}

func NewAudienceSelector(repo repository.StudentRepositoryInterface) *AudienceSelector {
	return &AudienceSelector{StudentRepo: repo, Cap: DefaultAudienceCap, Clock: time.Now}
}

// Select returns the students of one university matching the filter, up
// to the cap. An empty result is not an error; the caller decides whether
// an empty audience is a failure.
func (a *AudienceSelector) Select(universityID string, f model.AudienceFilter) ([]model.Student, error) {
	limit := a.Cap
	if limit <= 0 {
		limit = DefaultAudienceCap
	}

	students, err := a.StudentRepo.FindByUniversity(universityID, primaryIndex(f), limit, 0)
	if err != nil {
		return nil, err
	}

	now := a.Clock()
	matched := []model.Student{}
	for _, s := range students {
		if a.matches(s, f, now) {
			matched = append(matched, s)
		}
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// primaryIndex picks the single most selective indexed dimension. The
// store keeps one efficient index per dimension, so only one constraint
// is pushed down; the rest are residual filters.
func primaryIndex(f model.AudienceFilter) *repository.IndexedQuery {
	switch {
	case f.Faculty != "":
		return &repository.IndexedQuery{Dimension: "faculty", Value: f.Faculty}
	case f.Program != "":
		return &repository.IndexedQuery{Dimension: "program", Value: f.Program}
	case f.EnrollmentStatus != "":
		return &repository.IndexedQuery{Dimension: "enrollment_status", Value: f.EnrollmentStatus}
	case f.RiskTier != "":
		return &repository.IndexedQuery{Dimension: "risk_tier", Value: f.RiskTier}
	default:
		return nil
	}
}

func (a *AudienceSelector) matches(s model.Student, f model.AudienceFilter, now time.Time) bool {
	if f.Faculty != "" && s.Faculty != f.Faculty {
		return false
	}
	if f.Program != "" && s.Program != f.Program {
		return false
	}
	if f.EnrollmentStatus != "" && s.EnrollmentStatus != f.EnrollmentStatus {
		return false
	}
	// Matched against the stored tier, not a recomputation.
	if f.RiskTier != "" && s.RiskTier != f.RiskTier {
		return false
	}
	if f.CurrentTerm != nil && s.CurrentTerm != *f.CurrentTerm {
		return false
	}
	if f.MinGrade != nil && s.AverageGrade < *f.MinGrade {
		return false
	}
	if f.MaxGrade != nil && s.AverageGrade > *f.MaxGrade {
		return false
	}
	if f.InactiveDays != nil && s.LastActivityAt != nil {
		// A student with no activity timestamp passes: insufficient
		// data, include by default.
		days := int(now.Sub(*s.LastActivityAt).Hours() / 24)
		if days < *f.InactiveDays {
			return false
		}
	}
	return true
}
