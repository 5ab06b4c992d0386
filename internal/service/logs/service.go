// Package logs implements the log event pipeline: origin-validated
// ingestion, filtered retrieval, bulk deletion and live stream payloads.
package logs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/martijnd/featherlog/internal/broadcast"
	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/origin"
	"github.com/martijnd/featherlog/internal/repository"
)

const (
	// DefaultQueryLimit applies when a query omits limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit bounds a single result page.
	MaxQueryLimit = 1000
)

var (
	// ErrInvalidInput marks malformed ingestion payloads or filters.
	ErrInvalidInput = errors.New("invalid log input")
	// ErrUnknownProject is returned for ingestion against a project id that
	// does not resolve. The message deliberately does not confirm whether
	// the id exists.
	ErrUnknownProject = errors.New("project not authorized")
	// ErrOriginDenied is returned when the declared origin matches none of
	// the project's allowed-origin patterns.
	ErrOriginDenied = errors.New("origin not allowed")
)

// Service handles log persistence, retrieval and stream fan-out.
type Service struct {
	logs     repository.LogRepository
	projects repository.ProjectRepository
	hub      *broadcast.Broadcaster
	logger   *slog.Logger
}

// New constructs a log service.
func New(logs repository.LogRepository, projects repository.ProjectRepository, hub *broadcast.Broadcaster, logger *slog.Logger) Service {
	return Service{logs: logs, projects: projects, hub: hub, logger: logger}
}

// Hub exposes the broadcaster for stream transports.
func (s Service) Hub() *broadcast.Broadcaster {
	return s.hub
}

// Ingest runs the full ingestion pipeline for one event: resolve the
// project, check the declared origin against its allowed patterns, persist,
// then publish to live subscribers. Publication happens strictly after the
// insert committed and is best-effort: it can never fail the ingestion.
func (s Service) Ingest(ctx context.Context, input IngestInput) (*domain.LogEvent, error) {
	if input.ProjectID == "" || input.Level == "" || input.Message == "" {
		return nil, fmt.Errorf("%w: missing required fields: project-id, level, message", ErrInvalidInput)
	}
	if !domain.ValidLevel(input.Level) {
		return nil, fmt.Errorf("%w: level must be one of error, warn, info", ErrInvalidInput)
	}

	proj, err := s.projects.GetProjectByID(ctx, input.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownProject
		}
		return nil, err
	}
	if !origin.IsAllowed(input.Origin, proj.Origins) {
		s.logger.Warn("log rejected: origin not allowed",
			"project_id", proj.ID, "origin", origin.Normalize(input.Origin))
		return nil, ErrOriginDenied
	}

	event := &domain.LogEvent{
		ProjectID: proj.ID,
		Level:     input.Level,
		Message:   input.Message,
		Metadata:  input.Metadata,
	}
	if input.Timestamp != nil {
		event.Timestamp = input.Timestamp.UTC()
	} else {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.logs.InsertLog(ctx, event); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Publish(*event)
	}
	return event, nil
}

// Query returns one page of events plus the total match count, newest first.
// Limit defaults to DefaultQueryLimit and is capped at MaxQueryLimit; an
// offset past the end of the result yields an empty page, not an error.
func (s Service) Query(ctx context.Context, filter repository.LogFilter, limit, offset int) ([]domain.LogEvent, int, error) {
	if filter.Level != "" && !domain.ValidLevel(filter.Level) {
		return nil, 0, fmt.Errorf("%w: level must be one of error, warn, info", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.logs.QueryLogs(ctx, filter, limit, offset)
}

// ClearProjectLogs bulk-deletes all events for a project. Fails with
// repository.ErrNotFound when the project does not exist.
func (s Service) ClearProjectLogs(ctx context.Context, projectID string) (int64, error) {
	if _, err := s.projects.GetProjectByID(ctx, projectID); err != nil {
		return 0, err
	}
	deleted, err := s.logs.DeleteLogsByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("project logs cleared", "project_id", projectID, "deleted", deleted)
	return deleted, nil
}
