package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/joho/godotenv"

	"github.com/edusignal/retention-backend/internal/config"
	"github.com/edusignal/retention-backend/internal/db"
	"github.com/edusignal/retention-backend/internal/email"
	consolemail "github.com/edusignal/retention-backend/internal/email/console"
	sendgridmail "github.com/edusignal/retention-backend/internal/email/sendgrid"
	appErrors "github.com/edusignal/retention-backend/internal/errors"
	"github.com/edusignal/retention-backend/internal/queue"
	"github.com/edusignal/retention-backend/internal/repository"
	"github.com/edusignal/retention-backend/internal/service"
)

const maxRetries = 3

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	conn, err := db.Connect(cfg.DB.URL)
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer conn.Close()

	studentRepo := &repository.StudentRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	trackingRepo := &repository.TrackingRepository{DB: conn}

	var gateway email.Gateway
	if cfg.SendGrid.Key != "" {
		gateway = sendgridmail.NewService(cfg.SendGrid.Key, cfg.SendGrid.FromName, cfg.SendGrid.FromEmail)
	} else {
		log.Println("SENDGRID_KEY not set, using console email gateway")
		gateway = consolemail.NewService()
	}

	selector := service.NewAudienceSelector(studentRepo)
	selector.Cap = cfg.Dispatch.AudienceCap

	dispatcher := service.NewBatchDispatcher(gateway)
	dispatcher.Rate = service.RateConfig{
		BatchSize:   cfg.Dispatch.BatchSize,
		BatchDelay:  cfg.Dispatch.BatchDelay,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		StudentRepo:  studentRepo,
		Selector:     selector,
		Ledger:       service.NewTrackingLedger(trackingRepo),
		Dispatcher:   dispatcher,
		Scorer:       service.NewRiskScorer(),
	}

	q, err := queue.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	msgs, err := q.Consume()
	if err != nil {
		log.Fatal("failed to register consumer:", err)
	}

	log.Println("worker running, waiting for send jobs...")

	for d := range msgs {
		var job queue.SendJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Println("invalid job:", err)
			d.Ack(false)
			continue
		}

		result, err := campaignService.Send(context.Background(), job.CampaignID)
		if err != nil {
			if isPermanent(err) {
				// Retrying cannot help; the campaign is already in a
				// well-defined state.
				log.Println("send job for campaign", job.CampaignID, "failed permanently:", err)
				d.Ack(false)
				continue
			}

			log.Println("send job for campaign", job.CampaignID, "failed:", err)
			if job.RetryCount < maxRetries {
				job.RetryCount++
				if err := q.PublishSend(job); err != nil {
					log.Println("failed to requeue send job:", err)
				}
			} else {
				log.Println("send job for campaign", job.CampaignID, "dropped after", maxRetries, "retries")
			}
			d.Ack(false)
			continue
		}

		log.Printf("campaign %d sent: %d/%d recipients, %d failures",
			result.CampaignID, result.SentCount, result.TotalRecipients, len(result.Errors))
		d.Ack(false)
	}
}

// isPermanent reports whether retrying a send job is pointless.
func isPermanent(err error) bool {
	var (
		notFound     *appErrors.ErrCampaignNotFound
		validation   *appErrors.ErrValidation
		invalidState *appErrors.ErrInvalidState
		empty        *appErrors.ErrEmptyAudience
	)
	return errors.As(err, &notFound) || errors.As(err, &validation) ||
		errors.As(err, &invalidState) || errors.As(err, &empty)
}
