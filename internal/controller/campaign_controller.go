// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/queue"
	"github.com/edusignal/retention-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Queue           queue.Publisher
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the typed error taxonomy to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound     *appErrors.ErrCampaignNotFound
		stNotFound   *appErrors.ErrStudentNotFound
		validation   *appErrors.ErrValidation
		invalidState *appErrors.ErrInvalidState
		empty        *appErrors.ErrEmptyAudience
		dispatch     *appErrors.ErrDispatchFailed
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound), errors.As(err, &stNotFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &invalidState):
		status = http.StatusConflict
	case errors.As(err, &empty):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &dispatch):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UniversityID string               `json:"university_id"`
		Name         string               `json:"name"`
		Subject      string               `json:"subject"`
		BodyTemplate string               `json:"body_template"`
		Filter       model.AudienceFilter `json:"filter"`
		CreatedBy    string               `json:"created_by"`
		ScheduledAt  *string              `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid body"))
		return
	}
	if body.UniversityID == "" {
		writeError(w, appErrors.NewValidation("university_id is required"))
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(body.UniversityID, body.Name,
		body.Subject, body.BodyTemplate, body.CreatedBy, body.Filter, body.ScheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	universityID := r.URL.Query().Get("university_id")
	status := r.URL.Query().Get("status")

	if universityID == "" {
		writeError(w, appErrors.NewValidation("university_id is required"))
		return
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(universityID, page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("invalid campaign id"))
		return
	}

	details, err := c.CampaignService.GetCampaignDetails(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// SendCampaign runs the send pipeline. With {"async": true} the job is
// queued for the worker instead of running inside the request.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("invalid campaign id"))
		return
	}

	var body struct {
		Async bool `json:"async"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, appErrors.NewValidation("invalid body"))
			return
		}
	}

	if body.Async {
		if c.Queue == nil {
			writeError(w, appErrors.NewValidation("async send is not configured"))
			return
		}
		if err := c.Queue.PublishSend(queue.SendJob{CampaignID: id}); err != nil {
			log.Println("failed to enqueue send for campaign", id, ":", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue send"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"campaign_id": id,
			"status":      "queued",
		})
		return
	}

	result, err := c.CampaignService.Send(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) GetTrackingStats(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("invalid campaign id"))
		return
	}

	stats, err := c.CampaignService.GetTrackingStats(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// RecordEvent ingests gateway engagement callbacks (delivered, opened,
// clicked, bounced, unsubscribed).
func (c *CampaignController) RecordEvent(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("invalid campaign id"))
		return
	}

	var body struct {
		StudentID string `json:"student_id"`
		Event     string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid body"))
		return
	}
	if body.StudentID == "" {
		writeError(w, appErrors.NewValidation("student_id is required"))
		return
	}

	if err := c.CampaignService.RecordEngagement(id, body.StudentID, body.Event); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, appErrors.NewValidation("invalid campaign id"))
		return
	}

	var body struct {
		StudentID        string  `json:"student_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("invalid body"))
		return
	}

	rendered, err := c.CampaignService.RenderPreview(id, body.StudentID, body.OverrideTemplate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"student_id":       body.StudentID,
	})
}

// ScoreSnapshot scores an academic snapshot without touching any store.
func (c *CampaignController) ScoreSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap service.AcademicSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, appErrors.NewValidation("invalid body"))
		return
	}

	tier, factors := c.CampaignService.ScoreStudent(snap)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"risk_tier":    tier,
		"risk_factors": factors,
	})
}

// RescoreStudent recomputes and persists one student's risk profile.
func (c *CampaignController) RescoreStudent(w http.ResponseWriter, r *http.Request) {
	universityID := chi.URLParam(r, "universityID")
	studentID := chi.URLParam(r, "studentID")

	tier, factors, err := c.CampaignService.RescoreStudent(universityID, studentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id":   studentID,
		"risk_tier":    tier,
		"risk_factors": factors,
	})
}

// Routes mounts every campaign endpoint on a chi router.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Get("/campaigns", c.ListCampaigns)
	r.Get("/campaigns/{id}", c.GetCampaignDetails)
	r.Post("/campaigns/{id}/send", c.SendCampaign)
	r.Get("/campaigns/{id}/tracking", c.GetTrackingStats)
	r.Post("/campaigns/{id}/events", c.RecordEvent)
	r.Post("/campaigns/{id}/personalized-preview", c.PersonalizedPreview)
	r.Post("/risk/score", c.ScoreSnapshot)
	r.Post("/universities/{universityID}/students/{studentID}/rescore", c.RescoreStudent)
}
