package repository

import (
	"context"
	"time"

	"github.com/martijnd/featherlog/internal/domain"
)

// LogFilter narrows a log query. Zero values mean "no constraint"; all set
// fields are AND-combined.
type LogFilter struct {
	ProjectID string
	Level     string
	From      *time.Time
	To        *time.Time
}

// UserRepository persists administrative accounts.
type UserRepository interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// ProjectRepository persists project identity and allowed-origin lists.
// DeleteProject cascades to the project's log events at the storage layer.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

// LogRepository persists log events. InsertLog assigns ID and CreatedAt on
// the passed event. QueryLogs returns one page plus the total match count,
// both computed from a single storage snapshot.
type LogRepository interface {
	InsertLog(ctx context.Context, event *domain.LogEvent) error
	QueryLogs(ctx context.Context, filter LogFilter, limit, offset int) ([]domain.LogEvent, int, error)
	DeleteLogsByProject(ctx context.Context, projectID string) (int64, error)
}
