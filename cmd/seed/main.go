package main

import (
	"context"
	"log"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/logger"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/seed"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	// no Redis here: match notifications are skipped while seeding
	appCtx := app.New(database, nil, logger.L(), app.WithConfig(cfg))

	sum, err := seed.Demo(context.Background(), appCtx, match.NewService(appCtx))
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Printf("Seeding completed: %d profiles, %d actions, %d matches.", sum.Profiles, sum.Actions, sum.Matches)
}
