package main

import (
	"context"
	"fmt"
	"os"

	"folio/internal/database"
	"folio/internal/ledger"
	"folio/internal/reports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Regenerates historical daily reports from the transaction log. Pass user
// ids as arguments, or none to backfill every profile.
func main() {
	logger := logrus.New()
	godotenv.Load()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		logger.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	engine := ledger.NewEngine(repo, logger)
	gen := reports.NewGenerator(engine, repo, logger)

	ctx := context.Background()
	users := os.Args[1:]
	if len(users) == 0 {
		users, err = repo.ListUserIDs(ctx)
		if err != nil {
			logger.Fatalf("list users failed: %v", err)
		}
	}

	for _, id := range users {
		n, err := gen.Backfill(ctx, id)
		if err != nil {
			logger.Errorf("backfill failed for %s: %v", id, err)
			continue
		}
		fmt.Printf("backfilled %d days for %s\n", n, id)
	}
}
