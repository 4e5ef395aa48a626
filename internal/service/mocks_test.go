package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edusignal/retention-backend/internal/email"
	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/repository"
)

// Fixed clock shared by the service tests.
var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysAgo(d int) *time.Time {
	t := testNow.AddDate(0, 0, -d)
	return &t
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// ---------------- student repository ----------------

type stubStudentRepo struct {
	students []model.Student

	lastQuery *repository.IndexedQuery
	lastLimit int

	riskUpdates map[string]string
}

func (r *stubStudentRepo) FindByUniversity(universityID string, q *repository.IndexedQuery, limit, offset int) ([]model.Student, error) {
	r.lastQuery = q
	r.lastLimit = limit

	out := []model.Student{}
	for _, s := range r.students {
		if s.UniversityID != universityID {
			continue
		}
		if q != nil && !matchesDimension(s, q) {
			continue
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesDimension(s model.Student, q *repository.IndexedQuery) bool {
	switch q.Dimension {
	case "faculty":
		return s.Faculty == q.Value
	case "program":
		return s.Program == q.Value
	case "enrollment_status":
		return s.EnrollmentStatus == q.Value
	case "risk_tier":
		return s.RiskTier == q.Value
	default:
		return false
	}
}

func (r *stubStudentRepo) GetByID(universityID, id string) (*model.Student, error) {
	for i := range r.students {
		if r.students[i].UniversityID == universityID && r.students[i].ID == id {
			return &r.students[i], nil
		}
	}
	return nil, appErrors.NewStudentNotFound(id)
}

func (r *stubStudentRepo) UpdateRiskProfile(universityID, id, tier string, factors []string) error {
	if r.riskUpdates == nil {
		r.riskUpdates = map[string]string{}
	}
	r.riskUpdates[id] = tier
	return nil
}

func (r *stubStudentRepo) Create(s *model.Student) error {
	r.students = append(r.students, *s)
	return nil
}

// ---------------- campaign repository ----------------

type mockCampaignRepo struct {
	campaign       *model.Campaign
	statusLog      []string
	totalRecorded  int
	sentRecorded   int
	forceTransFail bool
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	c.ID = 1
	c.CreatedAt = testNow
	m.campaign = c
	return nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if m.campaign == nil || m.campaign.ID != id {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	c := *m.campaign
	return &c, nil
}

func (m *mockCampaignRepo) ListCampaigns(universityID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	if m.campaign == nil {
		return []*model.Campaign{}, 0, nil
	}
	return []*model.Campaign{m.campaign}, 1, nil
}

func (m *mockCampaignRepo) Update(c *model.Campaign) error { return nil }

func (m *mockCampaignRepo) UpdateStatus(campaignID int, status string) error {
	m.campaign.Status = status
	m.statusLog = append(m.statusLog, status)
	return nil
}

func (m *mockCampaignRepo) TransitionStatus(campaignID int, from []string, to string) (bool, error) {
	if m.forceTransFail {
		return false, nil
	}
	for _, s := range from {
		if m.campaign.Status == s {
			m.campaign.Status = to
			m.statusLog = append(m.statusLog, to)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCampaignRepo) UpdateTotalRecipients(campaignID, total int) error {
	m.totalRecorded = total
	m.campaign.TotalRecipients = total
	return nil
}

func (m *mockCampaignRepo) UpdateSentCount(campaignID, sent int) error {
	m.sentRecorded = sent
	m.campaign.SentCount = sent
	return nil
}

// ---------------- tracking repository ----------------

type memTrackingRepo struct {
	mu   sync.Mutex
	rows map[string]*model.TrackingRecord
}

func newMemTrackingRepo() *memTrackingRepo {
	return &memTrackingRepo{rows: map[string]*model.TrackingRecord{}}
}

func trackingKey(campaignID int, studentID string) string {
	return fmt.Sprintf("%d/%s", campaignID, studentID)
}

func (r *memTrackingRepo) BulkInsert(records []model.TrackingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		key := trackingKey(rec.CampaignID, rec.StudentID)
		if _, ok := r.rows[key]; ok {
			continue
		}
		copied := rec
		r.rows[key] = &copied
	}
	return nil
}

func (r *memTrackingRepo) MarkSent(campaignID int, studentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[trackingKey(campaignID, studentID)]; ok {
		row.Sent = true
		row.SentAt = &at
	}
	return nil
}

func (r *memTrackingRepo) MarkEvent(campaignID int, studentID, event string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[trackingKey(campaignID, studentID)]
	if !ok {
		return nil
	}
	switch event {
	case model.EventDelivered:
		row.Delivered, row.DeliveredAt = true, &at
	case model.EventOpened:
		row.Opened, row.OpenedAt = true, &at
	case model.EventClicked:
		row.Clicked, row.ClickedAt = true, &at
	case model.EventBounced:
		row.Bounced, row.BouncedAt = true, &at
	case model.EventUnsubscribed:
		row.Unsubscribed, row.UnsubscribedAt = true, &at
	default:
		return fmt.Errorf("unknown tracking event: %s", event)
	}
	return nil
}

func (r *memTrackingRepo) Aggregate(campaignID int) (*model.TrackingStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.TrackingStats{}
	for _, row := range r.rows {
		if row.CampaignID != campaignID {
			continue
		}
		stats.Total++
		if row.Sent {
			stats.Sent++
		}
		if row.Delivered {
			stats.Delivered++
		}
		if row.Opened {
			stats.Opened++
		}
		if row.Clicked {
			stats.Clicked++
		}
		if row.Bounced {
			stats.Bounced++
		}
		if row.Unsubscribed {
			stats.Unsubscribed++
		}
	}
	return stats, nil
}

func (r *memTrackingRepo) CountByCampaign(campaignID int) (int, error) {
	stats, _ := r.Aggregate(campaignID)
	return stats.Total, nil
}

func (r *memTrackingRepo) row(campaignID int, studentID string) *model.TrackingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[trackingKey(campaignID, studentID)]
}

// ---------------- notification gateway ----------------

type fakeGateway struct {
	mu   sync.Mutex
	sent []email.Message

	// fail, when set, decides per message whether the send errors.
	fail func(msg email.Message) error
	// block, when set, runs before the send is recorded.
	block func(msg email.Message)
}

func (g *fakeGateway) SendTemplated(_ context.Context, msg email.Message) (string, error) {
	if g.block != nil {
		g.block(msg)
	}
	g.mu.Lock()
	g.sent = append(g.sent, msg)
	n := len(g.sent)
	g.mu.Unlock()

	if g.fail != nil {
		if err := g.fail(msg); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("msg-%d", n), nil
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *fakeGateway) sentMessages() []email.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]email.Message, len(g.sent))
	copy(out, g.sent)
	return out
}
