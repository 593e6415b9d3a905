// Command sweep runs the periodic cleanup pass: it disables accounts whose
// email verification deadline lapsed and deletes expired widget sessions.
// Intended to be invoked from cron or a scheduler; it does one pass and exits.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/willowchat/willow/internal/embed"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/user"
)

func main() {
	logger := logging.New("info", "text")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	now := time.Now()

	disabled, err := user.NewPostgresStore(db).DeactivateExpired(ctx, now)
	if err != nil {
		logger.Error("failed to deactivate expired accounts", "error", err)
		os.Exit(1)
	}

	deleted, err := embed.NewPostgresStore(db).DeleteExpiredSessions(ctx, now)
	if err != nil {
		logger.Error("failed to delete expired sessions", "error", err)
		os.Exit(1)
	}

	logger.Info("sweep complete",
		"accounts_disabled", disabled,
		"sessions_deleted", deleted,
	)
}
