package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/edusignal/retention-backend/internal/model"
)

type TrackingRepositoryInterface interface {
	BulkInsert(records []model.TrackingRecord) error
	MarkSent(campaignID int, studentID string, at time.Time) error
	MarkEvent(campaignID int, studentID, event string, at time.Time) error
	Aggregate(campaignID int) (*model.TrackingStats, error)
	CountByCampaign(campaignID int) (int, error)
}

type TrackingRepository struct {
	DB *sql.DB
}

// event name -> flag column; the timestamp column is <flag>_at.
var eventColumns = map[string]string{
	model.EventDelivered:    "delivered",
	model.EventOpened:       "opened",
	model.EventClicked:      "clicked",
	model.EventBounced:      "bounced",
	model.EventUnsubscribed: "unsubscribed",
}

// BulkInsert writes one all-false tracking row per record in a single
// statement. Existing (campaign, student) rows are left untouched so a
// re-run never resets an audit trail.
func (r *TrackingRepository) BulkInsert(records []model.TrackingRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*4)
	argPos := 1
	for _, rec := range records {
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", argPos, argPos+1, argPos+2, argPos+3))
		args = append(args, rec.CampaignID, rec.StudentID, rec.UniversityID, rec.CreatedAt)
		argPos += 4
	}

	query := `
        INSERT INTO campaign_tracking (campaign_id, student_id, university_id, created_at)
        VALUES ` + strings.Join(values, ", ") + `
        ON CONFLICT (campaign_id, student_id) DO NOTHING
    `
	_, err := r.DB.Exec(query, args...)
	return err
}

// MarkSent flips the sent flag and timestamp on one tracking row.
func (r *TrackingRepository) MarkSent(campaignID int, studentID string, at time.Time) error {
	query := `UPDATE campaign_tracking SET sent=TRUE, sent_at=$1
              WHERE campaign_id=$2 AND student_id=$3`
	_, err := r.DB.Exec(query, at, campaignID, studentID)
	return err
}

// MarkEvent flips one engagement flag. The event name must be one of the
// model.Event* constants.
func (r *TrackingRepository) MarkEvent(campaignID int, studentID, event string, at time.Time) error {
	col, ok := eventColumns[event]
	if !ok {
		return fmt.Errorf("unknown tracking event: %s", event)
	}
	query := fmt.Sprintf(`UPDATE campaign_tracking SET %s=TRUE, %s_at=$1
              WHERE campaign_id=$2 AND student_id=$3`, col, col)
	_, err := r.DB.Exec(query, at, campaignID, studentID)
	return err
}

// Aggregate scans all tracking rows of a campaign and counts each flag.
// O(n) per call; campaign sizes are capped upstream.
func (r *TrackingRepository) Aggregate(campaignID int) (*model.TrackingStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE sent),
               COUNT(*) FILTER (WHERE delivered),
               COUNT(*) FILTER (WHERE opened),
               COUNT(*) FILTER (WHERE clicked),
               COUNT(*) FILTER (WHERE bounced),
               COUNT(*) FILTER (WHERE unsubscribed)
        FROM campaign_tracking WHERE campaign_id=$1
    `
	var stats model.TrackingStats
	err := r.DB.QueryRow(query, campaignID).Scan(&stats.Total, &stats.Sent,
		&stats.Delivered, &stats.Opened, &stats.Clicked, &stats.Bounced, &stats.Unsubscribed)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *TrackingRepository) CountByCampaign(campaignID int) (int, error) {
	var count int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaign_tracking WHERE campaign_id=$1`, campaignID).Scan(&count)
	return count, err
}

var _ TrackingRepositoryInterface = (*TrackingRepository)(nil)
