package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(universityID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	Update(c *model.Campaign) error
	UpdateStatus(campaignID int, status string) error
	TransitionStatus(campaignID int, from []string, to string) (bool, error)
	UpdateTotalRecipients(campaignID, total int) error
	UpdateSentCount(campaignID, sent int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	filter, err := json.Marshal(c.Filter)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (university_id, name, status, subject, body_template, filter,
            total_recipients, sent_count, created_by, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.UniversityID, c.Name, c.Status, c.Subject, c.BodyTemplate,
		filter, c.CreatedBy, c.ScheduledAt, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, university_id, name, status, subject, body_template, filter,
               total_recipients, sent_count, created_by, scheduled_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	var filter []byte
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.UniversityID, &c.Name, &c.Status,
		&c.Subject, &c.BodyTemplate, &filter, &c.TotalRecipients, &c.SentCount,
		&c.CreatedBy, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	if err := json.Unmarshal(filter, &c.Filter); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(universityID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, university_id, name, status, subject, body_template, filter,
                     total_recipients, sent_count, created_by, scheduled_at, created_at, updated_at
              FROM campaigns WHERE university_id=$1`
	args := []interface{}{universityID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		var filter []byte
		if err := rows.Scan(&c.ID, &c.UniversityID, &c.Name, &c.Status, &c.Subject,
			&c.BodyTemplate, &filter, &c.TotalRecipients, &c.SentCount, &c.CreatedBy,
			&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(filter, &c.Filter); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE university_id=$1`
	argsCount := []interface{}{universityID}
	if status != "" {
		countQuery += " AND status=$2"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	filter, err := json.Marshal(c.Filter)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, subject=$2, body_template=$3, filter=$4, status=$5, updated_at=NOW()
        WHERE id=$6
    `
	_, err = r.DB.Exec(query, c.Name, c.Subject, c.BodyTemplate, filter, c.Status, c.ID)
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), campaignID)
	return err
}

// TransitionStatus moves a campaign from one of the given states to the
// target state in a single conditional update. It reports false when the
// campaign was not in any of the expected states, which is how two
// concurrent send attempts on the same campaign are serialized: only one
// of them wins the draft/scheduled -> sending transition.
func (r *CampaignRepository) TransitionStatus(campaignID int, from []string, to string) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=ANY($3)`
	res, err := r.DB.Exec(query, to, campaignID, pq.Array(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) UpdateTotalRecipients(campaignID, total int) error {
	query := `UPDATE campaigns SET total_recipients=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, total, campaignID)
	return err
}

func (r *CampaignRepository) UpdateSentCount(campaignID, sent int) error {
	query := `UPDATE campaigns SET sent_count=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, sent, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
