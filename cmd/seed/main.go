// seed loads sample referrals from seed.yaml into the configured database
// and prints a development JWT for the seed referrer.
// Run: go run ./cmd/seed
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ErlanBelekov/referral-tracker/config"
	"github.com/ErlanBelekov/referral-tracker/internal/app"
	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/email"
	"github.com/ErlanBelekov/referral-tracker/internal/events"
	"github.com/ErlanBelekov/referral-tracker/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedFile []byte

type fixture struct {
	Referrer struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	} `yaml:"referrer"`
	Candidates []struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Phone    string `yaml:"phone"`
		JobTitle string `yaml:"job_title"`
		Status   string `yaml:"status"`
		Notes    string `yaml:"notes"`
	} `yaml:"candidates"`
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(cfg.Env, cfg.SlogLevel())

	var fx fixture
	if err := yaml.Unmarshal(seedFile, &fx); err != nil {
		log.Fatalf("parse seed.yaml: %v", err)
	}

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer deps.Close()

	referrer := domain.Identity{UserID: fx.Referrer.ID, Email: fx.Referrer.Email, Name: fx.Referrer.Name}
	if err := deps.Users.Upsert(ctx, referrer); err != nil {
		log.Fatalf("upsert referrer: %v", err)
	}

	// Notifications go to the log so seeding never emails anyone.
	uc := usecase.NewCandidateUsecase(
		deps.Candidates, deps.Users, deps.Attachments,
		events.NopPublisher{}, email.NewLogSender(logger), logger,
	)

	var created, skipped int
	for _, c := range fx.Candidates {
		cand, err := uc.Create(ctx, usecase.CreateCandidateInput{
			Name:     c.Name,
			Email:    c.Email,
			Phone:    c.Phone,
			JobTitle: c.JobTitle,
			Notes:    c.Notes,
		}, &referrer, nil)
		if errors.Is(err, domain.ErrDuplicateEmail) {
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("create %s: %v", c.Email, err)
		}
		if c.Status != "" && c.Status != string(domain.StatusPending) {
			if _, err := uc.SetStatus(ctx, cand.ID, c.Status); err != nil {
				log.Fatalf("set status %s: %v", c.Email, err)
			}
		}
		created++
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   referrer.UserID,
		"email": referrer.Email,
		"name":  referrer.Name,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Referrer:   %s (%s)\n", referrer.Email, referrer.UserID)
	fmt.Printf("  Candidates: %d created, %d already present\n", created, skipped)
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Println()
	fmt.Printf("  export JWT=%s\n", token)
	fmt.Printf("  curl -s http://localhost:%s/api/candidates/stats\n", cfg.Port)
	fmt.Printf("  curl -s -X POST http://localhost:%s/api/candidates \\\n", cfg.Port)
	fmt.Println("    -H \"Authorization: Bearer $JWT\" \\")
	fmt.Println("    -F name='Ada Lovelace' -F email=ada@example.com -F phone=555-0199 \\")
	fmt.Println("    -F job_title='Analyst' -F resume=@cv.pdf")
}
