package model

import "time"

// Engagement events that can be recorded on a tracking row after the
// initial send.
const (
	EventDelivered    = "delivered"
	EventOpened       = "opened"
	EventClicked      = "clicked"
	EventBounced      = "bounced"
	EventUnsubscribed = "unsubscribed"
)

// TrackingRecord is one durable delivery record per (campaign, student)
// pair. Rows are created all-false before any send attempt and are never
// deleted; the set of rows for a campaign is the audience-of-record.
type TrackingRecord struct {
	CampaignID     int        `db:"campaign_id" json:"campaign_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	UniversityID   string     `db:"university_id" json:"university_id"`
	Sent           bool       `db:"sent" json:"sent"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Delivered      bool       `db:"delivered" json:"delivered"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	Opened         bool       `db:"opened" json:"opened"`
	OpenedAt       *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	Clicked        bool       `db:"clicked" json:"clicked"`
	ClickedAt      *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	Bounced        bool       `db:"bounced" json:"bounced"`
	BouncedAt      *time.Time `db:"bounced_at" json:"bounced_at,omitempty"`
	Unsubscribed   bool       `db:"unsubscribed" json:"unsubscribed"`
	UnsubscribedAt *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// TrackingStats aggregates the flags of every tracking row of a campaign.
type TrackingStats struct {
	Total        int `json:"total"`
	Sent         int `json:"sent"`
	Delivered    int `json:"delivered"`
	Opened       int `json:"opened"`
	Clicked      int `json:"clicked"`
	Bounced      int `json:"bounced"`
	Unsubscribed int `json:"unsubscribed"`
}
