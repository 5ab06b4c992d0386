// Command createuser bootstraps an admin account. Registration has no API
// surface; this CLI is the only way to create or reset users.
//
//	createuser <username> <password>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository/postgres"
	"github.com/martijnd/featherlog/pkg/config"
	"github.com/martijnd/featherlog/pkg/crypto"
	"github.com/martijnd/featherlog/pkg/logger"
)

func main() {
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: createuser <username> <password>")
		os.Exit(1)
	}
	username, password := flag.Arg(0), flag.Arg(1)

	_ = godotenv.Load()
	cfg := config.LoadAPIConfig()
	log := logger.New("createuser", slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	hash, err := crypto.HashPassword(password)
	if err != nil {
		log.Error("failed to hash password", "error", err)
		os.Exit(1)
	}

	user := &domain.User{Username: username, PasswordHash: hash}
	if err := postgres.New(pool).UpsertUser(ctx, user); err != nil {
		log.Error("failed to create user", "error", err)
		os.Exit(1)
	}
	log.Info("user created/updated", "user_id", user.ID, "username", user.Username)
}
