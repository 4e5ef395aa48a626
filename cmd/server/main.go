// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/edusignal/retention-backend/internal/config"
	"github.com/edusignal/retention-backend/internal/controller"
	"github.com/edusignal/retention-backend/internal/db"
	"github.com/edusignal/retention-backend/internal/email"
	consolemail "github.com/edusignal/retention-backend/internal/email/console"
	sendgridmail "github.com/edusignal/retention-backend/internal/email/sendgrid"
	"github.com/edusignal/retention-backend/internal/queue"
	"github.com/edusignal/retention-backend/internal/repository"
	"github.com/edusignal/retention-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	if cfg.DB.Migrate {
		if err := db.Migrate(cfg.DB.URL); err != nil {
			log.Fatal("failed to run migrations:", err)
		}
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

	var publisher queue.Publisher
	if cfg.AMQP.URL != "" {
		q, err := queue.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Println("failed to connect to RabbitMQ, async sends disabled:", err)
		} else {
			defer q.Close()
			publisher = q
		}
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Queue:           publisher,
	}

	r := chi.NewRouter()
	campaignController.Routes(r)

	log.Println("server running on", cfg.HTTP.Addr)
	log.Fatal(http.ListenAndServe(cfg.HTTP.Addr, r))
}
