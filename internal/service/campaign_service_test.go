package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusignal/retention-backend/internal/email"
	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/service"
)

type sendFixture struct {
	svc          *service.CampaignService
	campaignRepo *mockCampaignRepo
	studentRepo  *stubStudentRepo
	trackingRepo *memTrackingRepo
	gateway      *fakeGateway
}

func newSendFixture(campaign *model.Campaign, students []model.Student, gateway *fakeGateway) *sendFixture {
	campaignRepo := &mockCampaignRepo{campaign: campaign}
	studentRepo := &stubStudentRepo{students: students}
	trackingRepo := newMemTrackingRepo()

	selector := service.NewAudienceSelector(studentRepo)
	selector.Clock = fixedClock

	ledger := service.NewTrackingLedger(trackingRepo)
	ledger.Clock = fixedClock

	dispatcher := service.NewBatchDispatcher(gateway)
	dispatcher.Sleep = func(d time.Duration) {}

	return &sendFixture{
		svc: &service.CampaignService{
			CampaignRepo: campaignRepo,
			StudentRepo:  studentRepo,
			Selector:     selector,
			Ledger:       ledger,
			Dispatcher:   dispatcher,
			Scorer:       &service.RiskScorer{Clock: fixedClock},
		},
		campaignRepo: campaignRepo,
		studentRepo:  studentRepo,
		trackingRepo: trackingRepo,
		gateway:      gateway,
	}
}

func draftCampaign() *model.Campaign {
	return &model.Campaign{
		ID:           1,
		UniversityID: "u1",
		Name:         "Critical outreach",
		Status:       model.CampaignDraft,
		Subject:      "Hi {{first_name}}",
		BodyTemplate: "We noticed: {{risk_factors}}",
		Filter:       model.AudienceFilter{RiskTier: model.RiskCritical},
	}
}

func criticalStudents(n, malformed int) []model.Student {
	students := make([]model.Student, n)
	for i := range students {
		address := fmt.Sprintf("student%d@demo.edu", i)
		if i < malformed {
			address = fmt.Sprintf("bad-address-%d", i)
		}
		students[i] = model.Student{
			ID:           fmt.Sprintf("s%d", i),
			UniversityID: "u1",
			FirstName:    fmt.Sprintf("Student%d", i),
			Email:        address,
			RiskTier:     model.RiskCritical,
			RiskFactors:  []string{service.FactorGradeCritical},
		}
	}
	return students
}

func TestSendRejectsNonSendableState(t *testing.T) {
	campaign := draftCampaign()
	campaign.Status = model.CampaignSent
	f := newSendFixture(campaign, criticalStudents(3, 0), &fakeGateway{})

	_, err := f.svc.Send(context.Background(), 1)

	var invalid *appErrors.ErrInvalidState
	require.ErrorAs(t, err, &invalid)
	// no side effects: no transition attempted, no tracking rows
	assert.Empty(t, f.campaignRepo.statusLog)
	count, _ := f.trackingRepo.CountByCampaign(1)
	assert.Zero(t, count)
}

func TestSendUnknownCampaign(t *testing.T) {
	f := newSendFixture(draftCampaign(), nil, &fakeGateway{})

	_, err := f.svc.Send(context.Background(), 99)

	var notFound *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestSendConcurrentLoserGetsInvalidState(t *testing.T) {
	f := newSendFixture(draftCampaign(), criticalStudents(3, 0), &fakeGateway{})
	f.campaignRepo.forceTransFail = true

	_, err := f.svc.Send(context.Background(), 1)

	var invalid *appErrors.ErrInvalidState
	require.ErrorAs(t, err, &invalid)
}

func TestSendEmptyAudienceRollsBack(t *testing.T) {
	f := newSendFixture(draftCampaign(), nil, &fakeGateway{})

	_, err := f.svc.Send(context.Background(), 1)

	var empty *appErrors.ErrEmptyAudience
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, model.CampaignDraft, f.campaignRepo.campaign.Status)
	assert.Equal(t, []string{model.CampaignSending, model.CampaignDraft}, f.campaignRepo.statusLog)
	count, _ := f.trackingRepo.CountByCampaign(1)
	assert.Zero(t, count, "no tracking rows for an empty audience")
	assert.Zero(t, f.gateway.sentCount())
}

func TestSendDispatchFailureRollsBackAndKeepsRows(t *testing.T) {
	gateway := &fakeGateway{fail: func(email.Message) error {
		return fmt.Errorf("%w: connection refused", email.ErrGatewayUnavailable)
	}}
	f := newSendFixture(draftCampaign(), criticalStudents(5, 0), gateway)

	_, err := f.svc.Send(context.Background(), 1)

	var dispatch *appErrors.ErrDispatchFailed
	require.ErrorAs(t, err, &dispatch)
	assert.True(t, errors.Is(err, email.ErrGatewayUnavailable))
	assert.Equal(t, model.CampaignDraft, f.campaignRepo.campaign.Status)

	// the all-false rows remain as evidence of the attempt
	count, _ := f.trackingRepo.CountByCampaign(1)
	assert.Equal(t, 5, count)
	stats, _ := f.trackingRepo.Aggregate(1)
	assert.Zero(t, stats.Sent)
}

func TestSendEndToEndWithPartialFailures(t *testing.T) {
	gateway := &fakeGateway{fail: func(msg email.Message) error {
		if strings.HasPrefix(msg.To, "bad-address") {
			return errors.New("malformed address")
		}
		return nil
	}}
	f := newSendFixture(draftCampaign(), criticalStudents(23, 2), gateway)

	result, err := f.svc.Send(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, model.CampaignSent, result.Status)
	assert.Equal(t, 23, result.TotalRecipients)
	assert.Equal(t, 21, result.SentCount)
	assert.Len(t, result.Errors, 2)

	assert.Equal(t, model.CampaignSent, f.campaignRepo.campaign.Status)
	assert.Equal(t, 23, f.campaignRepo.totalRecorded)
	assert.Equal(t, 21, f.campaignRepo.sentRecorded)

	stats, err := f.svc.GetTrackingStats(1)
	require.NoError(t, err)
	assert.Equal(t, 23, stats.Total)
	assert.Equal(t, 21, stats.Sent)

	// failed recipients keep an all-false row
	row := f.trackingRepo.row(1, "s0")
	require.NotNil(t, row)
	assert.False(t, row.Sent)
}

func TestRecordEngagementFeedsAggregate(t *testing.T) {
	gateway := &fakeGateway{}
	f := newSendFixture(draftCampaign(), criticalStudents(3, 0), gateway)

	_, err := f.svc.Send(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordEngagement(1, "s1", model.EventOpened))
	require.NoError(t, f.svc.RecordEngagement(1, "s1", model.EventClicked))

	stats, err := f.svc.GetTrackingStats(1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Opened)
	assert.Equal(t, 1, stats.Clicked)

	err = f.svc.RecordEngagement(1, "s1", "forwarded")
	var validation *appErrors.ErrValidation
	require.ErrorAs(t, err, &validation)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newSendFixture(nil, nil, &fakeGateway{})

	cases := []struct {
		name    string
		subject string
		body    string
		filter  model.AudienceFilter
	}{
		{"empty subject", "", "body", model.AudienceFilter{}},
		{"empty body", "subject", "  ", model.AudienceFilter{}},
		{"unknown tier", "subject", "body", model.AudienceFilter{RiskTier: "severe"}},
		{"inverted grade range", "subject", "body", model.AudienceFilter{MinGrade: floatPtr(4), MaxGrade: floatPtr(2)}},
		{"negative inactivity", "subject", "body", model.AudienceFilter{InactiveDays: intPtr(-1)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCampaign("u1", "name", tc.subject, tc.body, "advisor", tc.filter, nil)
			var validation *appErrors.ErrValidation
			require.ErrorAs(t, err, &validation)
		})
	}
}

func TestCreateCampaignScheduled(t *testing.T) {
	f := newSendFixture(nil, nil, &fakeGateway{})

	at := "2025-04-01T09:00:00Z"
	campaign, err := f.svc.CreateCampaign("u1", "Spring outreach", "subject", "body",
		"advisor", model.AudienceFilter{Faculty: "engineering"}, &at)

	require.NoError(t, err)
	assert.Equal(t, model.CampaignScheduled, campaign.Status)
	require.NotNil(t, campaign.ScheduledAt)
}

func TestRescoreStudentPersistsProfile(t *testing.T) {
	students := []model.Student{{
		ID: "s1", UniversityID: "u1",
		AverageGrade: 1.2, ApprovedCredits: 5, TotalCredits: 100,
		CurrentTerm: 8, LastActivityAt: daysAgo(60),
	}}
	f := newSendFixture(draftCampaign(), students, &fakeGateway{})

	tier, factors, err := f.svc.RescoreStudent("u1", "s1")

	require.NoError(t, err)
	assert.Equal(t, model.RiskCritical, tier)
	assert.NotEmpty(t, factors)
	assert.Equal(t, model.RiskCritical, f.studentRepo.riskUpdates["s1"])
}

func TestRenderPreview(t *testing.T) {
	students := []model.Student{{
		ID: "s1", UniversityID: "u1", FirstName: "Ana", Program: "cs",
		RiskTier: model.RiskCritical,
	}}
	f := newSendFixture(draftCampaign(), students, &fakeGateway{})

	rendered, err := f.svc.RenderPreview(1, "s1", nil)
	require.NoError(t, err)
	assert.Contains(t, rendered, "We noticed:")

	override := "Hello {{first_name}} of {{program}}"
	rendered, err = f.svc.RenderPreview(1, "s1", &override)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ana of cs", rendered)
}
