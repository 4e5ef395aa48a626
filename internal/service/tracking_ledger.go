package service

import (
	"time"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/repository"
)

// TrackingLedger owns the per-recipient delivery records of a campaign.
type TrackingLedger struct {
	TrackingRepo repository.TrackingRepositoryInterface
	Clock        func() time.Time
}

func NewTrackingLedger(repo repository.TrackingRepositoryInterface) *TrackingLedger {
	return &TrackingLedger{TrackingRepo: repo, Clock: time.Now}
}

// CreateBatch writes one all-false tracking row per recipient. Called
// before any send attempt so every attempted send has a durable record,
// even if the process dies mid-dispatch.
func (l *TrackingLedger) CreateBatch(campaignID int, universityID string, recipients []model.Student) error {
	now := l.Clock()
	records := make([]model.TrackingRecord, len(recipients))
	for i, s := range recipients {
		records[i] = model.TrackingRecord{
			CampaignID:   campaignID,
			StudentID:    s.ID,
			UniversityID: universityID,
			CreatedAt:    now,
		}
	}
	return l.TrackingRepo.BulkInsert(records)
}

// RecordSent flips the sent flag on one tracking row. Failed sends leave
// the row untouched; the failure reason travels back to the caller in
// the dispatch result instead of being persisted here.
func (l *TrackingLedger) RecordSent(campaignID int, studentID string) error {
	return l.TrackingRepo.MarkSent(campaignID, studentID, l.Clock())
}

// RecordEvent flips one engagement flag (delivered, opened, clicked,
// bounced, unsubscribed), typically from a gateway callback.
func (l *TrackingLedger) RecordEvent(campaignID int, studentID, event string) error {
	switch event {
	case model.EventDelivered, model.EventOpened, model.EventClicked,
		model.EventBounced, model.EventUnsubscribed:
	default:
		return appErrors.NewValidation("unknown tracking event: " + event)
	}
	return l.TrackingRepo.MarkEvent(campaignID, studentID, event, l.Clock())
}

// Aggregate counts every flag across the campaign's tracking rows.
func (l *TrackingLedger) Aggregate(campaignID int) (*model.TrackingStats, error) {
	return l.TrackingRepo.Aggregate(campaignID)
}
