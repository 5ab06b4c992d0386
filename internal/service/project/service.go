// Package project implements the project registry: tenant identity and the
// allowed-origin lists that gate public log ingestion.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository"
)

// ErrInvalidInput marks validation failures; specific causes wrap it.
var ErrInvalidInput = errors.New("invalid project input")

// Service orchestrates project registry operations.
type Service struct {
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{projects: projects, logger: logger}
}

// ValidateOrigins checks the registry invariant on an origin list: at least
// one entry, no blank entries, and not the single-element list ["*"] (which
// would leave a project open to the world). Entries are returned trimmed.
func ValidateOrigins(origins []string) ([]string, error) {
	if len(origins) == 0 {
		return nil, fmt.Errorf("%w: at least one origin is required", ErrInvalidInput)
	}
	cleaned := make([]string, 0, len(origins))
	for _, entry := range origins {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("%w: origins must not contain blank entries", ErrInvalidInput)
		}
		cleaned = append(cleaned, entry)
	}
	if len(cleaned) == 1 && cleaned[0] == "*" {
		return nil, fmt.Errorf("%w: cannot use \"*\" as the only origin", ErrInvalidInput)
	}
	return cleaned, nil
}

// Create registers a new project. Fails with repository.ErrConflict when the
// id is already taken.
func (s Service) Create(ctx context.Context, id, name string, origins []string) (*domain.Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	cleaned, err := ValidateOrigins(origins)
	if err != nil {
		return nil, err
	}
	project := &domain.Project{ID: id, Name: name, Origins: cleaned}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID, "origins", len(project.Origins))
	return project, nil
}

// Get returns a project by identifier.
func (s Service) Get(ctx context.Context, id string) (*domain.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	return s.projects.GetProjectByID(ctx, id)
}

// UpdateOrigins replaces a project's allowed-origin list, and optionally its
// display name when name is non-empty. The origin-list invariant from Create
// applies unchanged.
func (s Service) UpdateOrigins(ctx context.Context, id, name string, origins []string) (*domain.Project, error) {
	cleaned, err := ValidateOrigins(origins)
	if err != nil {
		return nil, err
	}
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Origins = cleaned
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		project.Name = trimmed
	}
	if err := s.projects.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project updated", "project_id", project.ID, "origins", len(project.Origins))
	return project, nil
}

// Delete removes a project; storage cascades the deletion to all of its log
// events. Fails with repository.ErrNotFound when the project is absent.
func (s Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if err := s.projects.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// List returns all projects ordered by display name.
func (s Service) List(ctx context.Context) ([]domain.Project, error) {
	return s.projects.ListProjects(ctx)
}
