package logs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/martijnd/featherlog/internal/broadcast"
	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository"
)

type stubLogRepository struct {
	inserted  []domain.LogEvent
	nextID    int64
	insertErr error
	queried   []repository.LogFilter
	queryResp []domain.LogEvent
	total     int
	deleted   int64
}

func (s *stubLogRepository) InsertLog(ctx context.Context, event *domain.LogEvent) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	event.ID = s.nextID
	event.CreatedAt = time.Now().UTC()
	s.inserted = append(s.inserted, *event)
	return nil
}

func (s *stubLogRepository) QueryLogs(ctx context.Context, filter repository.LogFilter, limit, offset int) ([]domain.LogEvent, int, error) {
	s.queried = append(s.queried, filter)
	if offset >= len(s.queryResp) {
		return []domain.LogEvent{}, s.total, nil
	}
	end := offset + limit
	if end > len(s.queryResp) {
		end = len(s.queryResp)
	}
	return s.queryResp[offset:end], s.total, nil
}

func (s *stubLogRepository) DeleteLogsByProject(ctx context.Context, projectID string) (int64, error) {
	return s.deleted, nil
}

type stubProjectRepository struct {
	projects map[string]domain.Project
}

func (s *stubProjectRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	return nil
}

func (s *stubProjectRepository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	if project, ok := s.projects[projectID]; ok {
		return &project, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubProjectRepository) UpdateProject(ctx context.Context, project *domain.Project) error {
	return nil
}

func (s *stubProjectRepository) DeleteProject(ctx context.Context, projectID string) error {
	return nil
}

func (s *stubProjectRepository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func demoProjects() *stubProjectRepository {
	return &stubProjectRepository{projects: map[string]domain.Project{
		"demo": {ID: "demo", Name: "Demo", Origins: []string{"https://demo.app"}},
	}}
}

func TestIngestPersistsThenBroadcasts(t *testing.T) {
	repo := &stubLogRepository{}
	hub := broadcast.New(4, testLogger())
	svc := New(repo, demoProjects(), hub, testLogger())

	sub := hub.Subscribe()
	defer sub.Cancel()

	event, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "demo",
		Level:     "error",
		Message:   "boom",
		Metadata:  []byte(`{"userId":7}`),
		Origin:    "https://demo.app",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if event.ID != 1 {
		t.Fatalf("expected store-assigned id 1, got %d", event.ID)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected server-assigned timestamp")
	}

	select {
	case got := <-sub.Events():
		if got.ID != event.ID || got.Message != "boom" {
			t.Fatalf("broadcast event mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not broadcast")
	}
}

func TestIngestClientTimestampPreserved(t *testing.T) {
	repo := &stubLogRepository{}
	svc := New(repo, demoProjects(), broadcast.New(4, testLogger()), testLogger())

	ts := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	event, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "demo",
		Level:     "info",
		Message:   "hi",
		Timestamp: &ts,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !event.Timestamp.Equal(ts) {
		t.Fatalf("expected client timestamp %v, got %v", ts, event.Timestamp)
	}
}

func TestIngestUnknownProject(t *testing.T) {
	svc := New(&stubLogRepository{}, demoProjects(), broadcast.New(4, testLogger()), testLogger())

	_, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "ghost",
		Level:     "info",
		Message:   "hi",
	})
	if !errors.Is(err, ErrUnknownProject) {
		t.Fatalf("expected ErrUnknownProject, got %v", err)
	}
}

func TestIngestOriginDenied(t *testing.T) {
	repo := &stubLogRepository{}
	svc := New(repo, demoProjects(), broadcast.New(4, testLogger()), testLogger())

	_, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "demo",
		Level:     "error",
		Message:   "boom",
		Origin:    "https://evil.com",
	})
	if !errors.Is(err, ErrOriginDenied) {
		t.Fatalf("expected ErrOriginDenied, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("denied event must not be persisted")
	}
}

func TestIngestAbsentOriginAllowed(t *testing.T) {
	repo := &stubLogRepository{}
	svc := New(repo, demoProjects(), broadcast.New(4, testLogger()), testLogger())

	if _, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "demo",
		Level:     "warn",
		Message:   "server-side",
	}); err != nil {
		t.Fatalf("absent origin should be allowed: %v", err)
	}
}

func TestIngestValidation(t *testing.T) {
	svc := New(&stubLogRepository{}, demoProjects(), broadcast.New(4, testLogger()), testLogger())

	cases := []IngestInput{
		{Level: "info", Message: "hi"},
		{ProjectID: "demo", Message: "hi"},
		{ProjectID: "demo", Level: "info"},
		{ProjectID: "demo", Level: "fatal", Message: "hi"},
	}
	for _, input := range cases {
		if _, err := svc.Ingest(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", input, err)
		}
	}
}

func TestIngestInsertFailurePropagates(t *testing.T) {
	repo := &stubLogRepository{insertErr: errors.New("db down")}
	hub := broadcast.New(4, testLogger())
	sub := hub.Subscribe()
	defer sub.Cancel()
	svc := New(repo, demoProjects(), hub, testLogger())

	if _, err := svc.Ingest(context.Background(), IngestInput{
		ProjectID: "demo", Level: "info", Message: "hi",
	}); err == nil {
		t.Fatal("expected insert failure to propagate")
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("nothing may be broadcast before persistence succeeds, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueryClampsLimitAndOffset(t *testing.T) {
	repo := &stubLogRepository{total: 3}
	svc := New(repo, demoProjects(), nil, testLogger())

	if _, _, err := svc.Query(context.Background(), repository.LogFilter{}, 0, -5); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, _, err := svc.Query(context.Background(), repository.LogFilter{}, MaxQueryLimit+1, 0); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, _, err := svc.Query(context.Background(), repository.LogFilter{Level: "fatal"}, 10, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad level, got %v", err)
	}
}

func TestQueryOffsetPastEndReturnsEmptyPage(t *testing.T) {
	repo := &stubLogRepository{
		queryResp: []domain.LogEvent{{ID: 2}, {ID: 1}},
		total:     2,
	}
	svc := New(repo, demoProjects(), nil, testLogger())

	events, total, err := svc.Query(context.Background(), repository.LogFilter{}, 10, 99)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty page, got %d events", len(events))
	}
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
}

func TestClearProjectLogsUnknownProject(t *testing.T) {
	svc := New(&stubLogRepository{deleted: 5}, demoProjects(), nil, testLogger())

	if _, err := svc.ClearProjectLogs(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	deleted, err := svc.ClearProjectLogs(context.Background(), "demo")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("expected deletedCount 5, got %d", deleted)
	}
}

func TestEventPayloadShape(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	payload := EventPayload(domain.LogEvent{
		ID:        42,
		ProjectID: "demo",
		Level:     "error",
		Message:   "boom",
		Timestamp: ts,
		Metadata:  []byte(`{"userId":7}`),
	})

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["project-id"] != "demo" {
		t.Fatalf("unexpected project-id: %v", decoded["project-id"])
	}
	meta, ok := decoded["metadata"].(map[string]any)
	if !ok || meta["userId"] != float64(7) {
		t.Fatalf("unexpected metadata: %v", decoded["metadata"])
	}
	if decoded["timestamp"] != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", decoded["timestamp"])
	}
}

func TestMarshalStreamFrame(t *testing.T) {
	frame, err := MarshalStreamFrame(domain.LogEvent{ID: 1, ProjectID: "demo", Level: "info", Message: "hi", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	var decoded struct {
		Type string         `json:"type"`
		Log  map[string]any `json:"log"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if decoded.Type != "log" {
		t.Fatalf("unexpected frame type %q", decoded.Type)
	}
	if decoded.Log["message"] != "hi" {
		t.Fatalf("unexpected frame log: %v", decoded.Log)
	}
}
