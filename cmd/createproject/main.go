// Command createproject bootstraps a project without going through the API.
//
//	createproject <project-id> <project-name> <origins-json>
//
// Example:
//
//	createproject my-project "My Project" '["https://example.com"]'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository/postgres"
	"github.com/martijnd/featherlog/internal/service/project"
	"github.com/martijnd/featherlog/pkg/config"
	"github.com/martijnd/featherlog/pkg/logger"
)

func main() {
	flag.Parse()
	if flag.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "Usage: createproject <project-id> <project-name> <origins-json>")
		fmt.Fprintln(os.Stderr, `Example: createproject my-project "My Project" '["https://example.com"]'`)
		os.Exit(1)
	}
	id, name := flag.Arg(0), flag.Arg(1)

	var origins []string
	if err := json.Unmarshal([]byte(flag.Arg(2)), &origins); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing origins JSON: %v\n", err)
		fmt.Fprintln(os.Stderr, `Origins should be a JSON array, e.g. ["https://example.com"]`)
		os.Exit(1)
	}
	cleaned, err := project.ValidateOrigins(origins)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := config.LoadAPIConfig()
	log := logger.New("createproject", slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.New(pool)
	proj := &domain.Project{ID: id, Name: name, Origins: cleaned}
	if err := repo.CreateProject(ctx, proj); err != nil {
		// Bootstrap semantics match the original script: re-running with an
		// existing id updates name and origins instead of failing.
		if updateErr := repo.UpdateProject(ctx, proj); updateErr != nil {
			log.Error("failed to create project", "error", err)
			os.Exit(1)
		}
	}
	log.Info("project created/updated", "project_id", proj.ID, "name", proj.Name, "origins", proj.Origins)
}
