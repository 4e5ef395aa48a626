// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/edusignal/retention-backend/internal/config"
	"github.com/edusignal/retention-backend/internal/db"
	"github.com/edusignal/retention-backend/internal/model"
	"github.com/edusignal/retention-backend/internal/repository"
	"github.com/edusignal/retention-backend/internal/service"
)

const (
	universityID = "u-demo"
	studentCount = 200
)

var faculties = map[string][]string{
	"engineering": {"computer-science", "civil", "mechatronics"},
	"economics":   {"accounting", "business-administration"},
	"health":      {"nursing", "medicine"},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	if err := db.Migrate(cfg.DB.URL); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	conn, err := db.Connect(cfg.DB.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	studentRepo := &repository.StudentRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	scorer := service.NewRiskScorer()

	for i := 0; i < studentCount; i++ {
		s := randomStudent(i)
		s.RiskTier, s.RiskFactors = scorer.Score(service.SnapshotOf(s))
		if err := studentRepo.Create(s); err != nil {
			log.Fatalf("failed to seed student %s: %v", s.ID, err)
		}
	}
	fmt.Printf("Seeded %d students\n", studentCount)

	campaign := &model.Campaign{
		UniversityID: universityID,
		Name:         "Critical-risk outreach",
		Subject:      "{{first_name}}, we can help you stay on track",
		BodyTemplate: "Hi {{first_name}},\n\nwe noticed: {{risk_factors}}.\nYour advisor for {{program}} would like to talk.\n",
		Filter:       model.AudienceFilter{RiskTier: model.RiskCritical},
		CreatedBy:    "seeder",
	}
	if err := campaignRepo.Create(campaign); err != nil {
		log.Fatal("failed to seed campaign:", err)
	}
	fmt.Printf("Seeded campaign %d\n", campaign.ID)

	fmt.Println("Database seeding completed successfully!")
}

func randomStudent(i int) *model.Student {
	fac := []string{"engineering", "economics", "health"}[rand.Intn(3)]
	programs := faculties[fac]
	total := 40 + rand.Intn(160)
	approved := rand.Intn(total + 1)

	var lastActivity *time.Time
	if rand.Float64() < 0.85 {
		t := time.Now().AddDate(0, 0, -rand.Intn(60))
		lastActivity = &t
	}

	return &model.Student{
		ID:               uuid.NewString(),
		UniversityID:     universityID,
		FirstName:        fmt.Sprintf("Student%d", i),
		LastName:         "Demo",
		Email:            fmt.Sprintf("student%d@demo.edu", i),
		Faculty:          fac,
		Program:          programs[rand.Intn(len(programs))],
		EnrollmentStatus: "active",
		CurrentTerm:      1 + rand.Intn(10),
		AverageGrade:     float64(rand.Intn(500)) / 100,
		ApprovedCredits:  approved,
		TotalCredits:     total,
		LastActivityAt:   lastActivity,
	}
}
