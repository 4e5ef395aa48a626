// internal/service/campaign_service.go
package service

import (
	"context"
	"log"
	"strings"
	"time"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/repository"
)

// CampaignService drives a campaign through its lifecycle: it validates
// state, resolves the audience, snapshots tracking rows, dispatches and
// commits the final state, rolling back to draft on total failure.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	StudentRepo  repository.StudentRepositoryInterface
	Selector     *AudienceSelector
	Ledger       *TrackingLedger
	Dispatcher   *BatchDispatcher
	Scorer       *RiskScorer
}

// SendResult summarizes one completed send.
type SendResult struct {
	CampaignID      int         `json:"campaign_id"`
	Status          string      `json:"status"`
	TotalRecipients int         `json:"total_recipients"`
	SentCount       int         `json:"sent_count"`
	Errors          []SendError `json:"errors,omitempty"`
}

var sendableStates = []string{model.CampaignDraft, model.CampaignScheduled}

// Send executes the full send pipeline for a campaign.
//
// The sending transition is persisted first as the audit point that a
// send was attempted, and tracking rows are created before any dispatch
// so a crash mid-dispatch still leaves the intended audience on record.
// Partial per-recipient failures complete the campaign as sent; only a
// send-path-wide failure rolls back to draft.
func (s *CampaignService) Send(ctx context.Context, campaignID int) (*SendResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != model.CampaignDraft && campaign.Status != model.CampaignScheduled {
		return nil, appErrors.NewInvalidState(campaignID, campaign.Status)
	}

	// Conditional update: of two concurrent sends, exactly one wins.
	ok, err := s.CampaignRepo.TransitionStatus(campaignID, sendableStates, model.CampaignSending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.NewInvalidState(campaignID, model.CampaignSending)
	}

	audience, err := s.Selector.Select(campaign.UniversityID, campaign.Filter)
	if err != nil {
		s.rollback(campaignID)
		return nil, err
	}
	if len(audience) == 0 {
		s.rollback(campaignID)
		return nil, appErrors.NewEmptyAudience(campaignID)
	}

	if err := s.CampaignRepo.UpdateTotalRecipients(campaignID, len(audience)); err != nil {
		s.rollback(campaignID)
		return nil, err
	}

	// Audience snapshot before the first send attempt.
	if err := s.Ledger.CreateBatch(campaignID, campaign.UniversityID, audience); err != nil {
		s.rollback(campaignID)
		return nil, err
	}

	recipients := make([]Recipient, len(audience))
	for i, st := range audience {
		recipients[i] = RecipientOf(st)
	}

	outcome, err := s.Dispatcher.Dispatch(ctx, recipients, campaign.Subject, campaign.BodyTemplate)
	if err != nil {
		// Tracking rows stay all-false as evidence of the attempt.
		s.rollback(campaignID)
		return nil, appErrors.NewDispatchFailed(campaignID, err)
	}

	for _, res := range outcome.Results {
		if res.Err != nil {
			continue
		}
		if err := s.Ledger.RecordSent(campaignID, res.StudentID); err != nil {
			log.Println("failed to record sent outcome for student", res.StudentID, ":", err)
		}
	}

	if err := s.CampaignRepo.UpdateSentCount(campaignID, outcome.Sent); err != nil {
		log.Println("failed to persist sent count for campaign", campaignID, ":", err)
	}
	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignSent); err != nil {
		return nil, err
	}

	return &SendResult{
		CampaignID:      campaignID,
		Status:          model.CampaignSent,
		TotalRecipients: len(audience),
		SentCount:       outcome.Sent,
		Errors:          outcome.Errors(),
	}, nil
}

// rollback reverts a campaign stuck in sending back to draft. Mandatory
// on every total-failure path so callers never observe an ambiguous
// intermediate state.
func (s *CampaignService) rollback(campaignID int) {
	if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignDraft); err != nil {
		log.Println("failed to roll back campaign", campaignID, "to draft:", err)
	}
}

// GetTrackingStats aggregates the campaign's tracking rows.
func (s *CampaignService) GetTrackingStats(campaignID int) (*model.TrackingStats, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.Ledger.Aggregate(campaignID)
}

// RecordEngagement flips one engagement flag on a tracking row, fed by
// gateway callbacks.
func (s *CampaignService) RecordEngagement(campaignID int, studentID, event string) error {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return err
	}
	return s.Ledger.RecordEvent(campaignID, studentID, event)
}

// ScoreStudent exposes the risk scorer unchanged.
func (s *CampaignService) ScoreStudent(snap AcademicSnapshot) (string, []string) {
	return s.Scorer.Score(snap)
}

// RescoreStudent recomputes and persists a student's risk profile.
func (s *CampaignService) RescoreStudent(universityID, studentID string) (string, []string, error) {
	student, err := s.StudentRepo.GetByID(universityID, studentID)
	if err != nil {
		return "", nil, err
	}
	tier, factors := s.Scorer.Score(SnapshotOf(student))
	if err := s.StudentRepo.UpdateRiskProfile(universityID, studentID, tier, factors); err != nil {
		return "", nil, err
	}
	return tier, factors, nil
}

// CreateCampaign validates and stores a new draft campaign.
func (s *CampaignService) CreateCampaign(universityID, name, subject, bodyTemplate, createdBy string, filter model.AudienceFilter, scheduledAt *string) (*model.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidation("campaign name cannot be empty")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, appErrors.NewValidation("subject cannot be empty")
	}
	if strings.TrimSpace(bodyTemplate) == "" {
		return nil, appErrors.NewValidation("body template cannot be empty")
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		UniversityID: universityID,
		Name:         name,
		Subject:      subject,
		BodyTemplate: bodyTemplate,
		Filter:       filter,
		Status:       model.CampaignDraft,
		CreatedBy:    createdBy,
	}

	if scheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *scheduledAt)
		if err != nil {
			return nil, appErrors.NewValidation("scheduled_at must be RFC3339")
		}
		c.ScheduledAt = &t
		c.Status = model.CampaignScheduled
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	return c, nil
}

func validateFilter(f model.AudienceFilter) error {
	switch f.RiskTier {
	case "", model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskCritical:
	default:
		return appErrors.NewValidation("unknown risk tier: " + f.RiskTier)
	}
	if f.MinGrade != nil && (*f.MinGrade < 0 || *f.MinGrade > 5) {
		return appErrors.NewValidation("min_grade must be within the 0-5 scale")
	}
	if f.MaxGrade != nil && (*f.MaxGrade < 0 || *f.MaxGrade > 5) {
		return appErrors.NewValidation("max_grade must be within the 0-5 scale")
	}
	if f.MinGrade != nil && f.MaxGrade != nil && *f.MinGrade > *f.MaxGrade {
		return appErrors.NewValidation("min_grade cannot exceed max_grade")
	}
	if f.InactiveDays != nil && *f.InactiveDays < 0 {
		return appErrors.NewValidation("inactive_days cannot be negative")
	}
	if f.CurrentTerm != nil && *f.CurrentTerm < 1 {
		return appErrors.NewValidation("current_term must be at least 1")
	}
	return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(universityID string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(universityID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// CampaignDetails is a campaign plus its aggregated tracking stats.
type CampaignDetails struct {
	Campaign *model.Campaign      `json:"campaign"`
	Stats    *model.TrackingStats `json:"stats"`
}

// GetCampaignDetails fetches a campaign together with tracking stats.
func (s *CampaignService) GetCampaignDetails(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Ledger.Aggregate(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// RenderPreview renders a campaign's template against one student.
func (s *CampaignService) RenderPreview(campaignID int, studentID string, overrideTemplate *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	student, err := s.StudentRepo.GetByID(campaign.UniversityID, studentID)
	if err != nil {
		return "", err
	}

	template := campaign.BodyTemplate
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", appErrors.NewValidation("template cannot be empty")
	}

	return RenderTemplate(template, StudentVars(*student)), nil
}
