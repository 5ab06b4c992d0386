// Package postgres implements the repository interfaces on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ProjectRepository = (*Repository)(nil)
	_ repository.LogRepository     = (*Repository)(nil)
)

// translateError maps PostgreSQL error codes onto repository sentinels.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrForeignKey
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

// UpsertUser creates an admin user, or resets the password hash when the
// username already exists (CLI bootstrap semantics).
func (r *Repository) UpsertUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING id, created_at`
	row := r.pool.QueryRow(ctx, query, user.Username, user.PasswordHash)
	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

// GetUserByUsername fetches a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT id, username, password_hash, created_at FROM users WHERE username = $1`
	row := r.pool.QueryRow(ctx, query, username)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, username, password_hash, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	origins, err := json.Marshal(project.Origins)
	if err != nil {
		return fmt.Errorf("marshal origins: %w", err)
	}
	const query = `INSERT INTO projects (id, name, origins)
		VALUES ($1, $2, $3)
		RETURNING created_at`
	row := r.pool.QueryRow(ctx, query, project.ID, project.Name, origins)
	if err := row.Scan(&project.CreatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, name, origins, created_at FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	return scanProject(row)
}

// UpdateProject persists mutable project fields (name and origins).
func (r *Repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	origins, err := json.Marshal(project.Origins)
	if err != nil {
		return fmt.Errorf("marshal origins: %w", err)
	}
	const query = `UPDATE projects SET name = $2, origins = $3 WHERE id = $1
		RETURNING created_at`
	row := r.pool.QueryRow(ctx, query, project.ID, project.Name, origins)
	if err := row.Scan(&project.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return translateError(err)
	}
	return nil
}

// DeleteProject removes a project. Its log events go with it via the
// ON DELETE CASCADE foreign key on logs.project_id.
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	const query = `DELETE FROM projects WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, projectID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListProjects returns all projects ordered by display name.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	const query = `SELECT id, name, origins, created_at FROM projects ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

// InsertLog stores a log event and fills in its assigned id and ingestion time.
func (r *Repository) InsertLog(ctx context.Context, event *domain.LogEvent) error {
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	const query = `INSERT INTO logs (project_id, level, message, "timestamp", metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	row := r.pool.QueryRow(ctx, query, event.ProjectID, event.Level, event.Message, event.Timestamp, metadata)
	if err := row.Scan(&event.ID, &event.CreatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

// QueryLogs returns one page of matching events plus the total match count.
// Page and count run inside a repeatable-read transaction so both reflect the
// same snapshot even under concurrent inserts.
func (r *Repository) QueryLogs(ctx context.Context, filter repository.LogFilter, limit, offset int) ([]domain.LogEvent, int, error) {
	where, args := buildLogFilter(filter)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	pageQuery := `SELECT id, project_id, level, message, "timestamp", metadata, created_at FROM logs` +
		where +
		` ORDER BY "timestamp" DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := tx.Query(ctx, pageQuery, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	events := make([]domain.LogEvent, 0, limit)
	for rows.Next() {
		var ev domain.LogEvent
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.Level, &ev.Message, &ev.Timestamp, &ev.Metadata, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM logs` + where
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// DeleteLogsByProject bulk-deletes a project's log events.
func (r *Repository) DeleteLogsByProject(ctx context.Context, projectID string) (int64, error) {
	const query = `DELETE FROM logs WHERE project_id = $1`
	tag, err := r.pool.Exec(ctx, query, projectID)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

// buildLogFilter renders the AND-combined WHERE clause for a log filter.
func buildLogFilter(filter repository.LogFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.Level != "" {
		add("level = $%d", filter.Level)
	}
	if filter.From != nil {
		add(`"timestamp" >= $%d`, *filter.From)
	}
	if filter.To != nil {
		add(`"timestamp" <= $%d`, *filter.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		project domain.Project
		origins []byte
	)
	if err := row.Scan(&project.ID, &project.Name, &origins, &project.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(origins, &project.Origins); err != nil {
		return nil, fmt.Errorf("decode origins: %w", err)
	}
	return &project, nil
}

// Ping verifies database connectivity, used by the health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}
