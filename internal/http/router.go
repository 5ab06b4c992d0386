// Package httpx exposes the HTTP surface of the log service: public
// ingestion, authenticated query/stream endpoints and project management.
package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository"
	"github.com/martijnd/featherlog/internal/service/auth"
	"github.com/martijnd/featherlog/internal/service/logs"
	"github.com/martijnd/featherlog/internal/service/project"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	auth           auth.Service
	projects       project.Service
	logs           logs.Service
	upgrader       websocket.Upgrader
	limiter        RateLimiter
	heartbeatEvery time.Duration
	dbHealth       func(context.Context) error

	metricsOnce       sync.Once
	requestTotal      *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	rateLimitHits     *prometheus.CounterVec
	streamSubscribers prometheus.Gauge
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitLogin     = 12
	rateLimitIngest    = 600
	rateLimitRead      = 120
	rateLimitWrite     = 60
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
	maxIngestBodyBytes = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, projectSvc project.Service, logSvc logs.Service, limiter RateLimiter, heartbeatEvery time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		projects: projectSvc,
		logs:     logSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        limiter,
		heartbeatEvery: heartbeatEvery,
		dbHealth:       dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeatEvery <= 0 {
		r.heartbeatEvery = 30 * time.Second
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/health", r.audit("/health", r.handleHealth))
	r.mux.HandleFunc("/api/auth/login", r.audit("/api/auth/login",
		r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/logs", r.audit("/api/logs", r.handleLogsCollection))
	r.mux.HandleFunc("/api/logs/stream", r.audit("/api/logs/stream",
		r.handlerAuthRate("/api/logs/stream", rateLimitStream, rateWindowRealtime, r.handleLogStreamSSE)))
	r.mux.HandleFunc("/api/logs/stream/ws", r.audit("/api/logs/stream/ws",
		r.handlerAuthRate("/api/logs/stream/ws", rateLimitStream, rateWindowRealtime, r.handleLogStreamWS)))
	r.mux.HandleFunc("/api/logs/projects", r.audit("/api/logs/projects",
		r.handlerAuthRate("/api/logs/projects", rateLimitWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/api/logs/projects/", r.audit("/api/logs/projects/{id}",
		r.handlerAuthRate("/api/logs/projects/{id}", rateLimitWrite, rateWindowDefault, r.handleProjectSubroutes)))
}

// handleLogsCollection splits /api/logs by method: POST is the public,
// origin-checked ingestion path; GET is the authenticated query path.
func (r *Router) handleLogsCollection(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.handleIngest(w, req)
	case http.MethodGet:
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		req = req.WithContext(ctx)
		r.withRateLimit("/api/logs", rateLimitRead, rateWindowDefault, r.rateLimitKeyUser, r.handleQueryLogs)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxIngestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	input, err := logs.DecodePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := "ingest:" + input.ProjectID
	decision := r.limiter.Allow(key, rateLimitIngest, rateWindowDefault)
	r.applyRateHeaders(w, rateLimitIngest, decision)
	if !decision.allowed {
		r.recordRateLimitHit("/api/logs", "ingest")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	input.Origin = declaredOrigin(req)
	if _, err := r.logs.Ingest(req.Context(), input); err != nil {
		switch {
		case errors.Is(err, logs.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, logs.ErrUnknownProject):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, logs.ErrOriginDenied):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			r.internalError(w, req, "log ingestion failed", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (r *Router) handleQueryLogs(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	filter := repository.LogFilter{
		ProjectID: strings.TrimSpace(query.Get("project-id")),
		Level:     strings.TrimSpace(query.Get("level")),
	}
	if raw := strings.TrimSpace(query.Get("startDate")); raw != "" {
		from, err := logs.ParseTimestamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("endDate")); raw != "" {
		to, err := logs.ParseTimestamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.To = &to
	}
	limit, ok := intParam(w, query.Get("limit"), logs.DefaultQueryLimit)
	if !ok {
		return
	}
	offset, ok := intParam(w, query.Get("offset"), 0)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = logs.DefaultQueryLimit
	}
	if limit > logs.MaxQueryLimit {
		limit = logs.MaxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, total, err := r.logs.Query(req.Context(), filter, limit, offset)
	if err != nil {
		if errors.Is(err, logs.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.internalError(w, req, "log query failed", err)
		return
	}
	payloads := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		payloads = append(payloads, logs.EventPayload(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   payloads,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		r.internalError(w, req, "login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		projects, err := r.projects.List(req.Context())
		if err != nil {
			r.internalError(w, req, "project list failed", err)
			return
		}
		payloads := make([]map[string]any, 0, len(projects))
		for _, proj := range projects {
			payloads = append(payloads, projectPayload(proj))
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": payloads})
	case http.MethodPost:
		var payload struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Origins []string `json:"origins"`
		}
		if err := decodeJSONBody(req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		proj, err := r.projects.Create(req.Context(), payload.ID, payload.Name, payload.Origins)
		if err != nil {
			switch {
			case errors.Is(err, project.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, repository.ErrConflict):
				writeError(w, http.StatusConflict, "Project ID already exists")
			case errors.Is(err, repository.ErrInvalidArgument):
				writeError(w, http.StatusBadRequest, "invalid project attributes")
			default:
				r.internalError(w, req, "project creation failed", err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"project": projectPayload(*proj)})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/logs/projects/")
	parts := strings.Split(trimmed, "/")
	projectID := parts[0]
	if projectID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleProject(w, req, projectID)
	case len(parts) == 2 && parts[1] == "logs":
		r.handleProjectLogs(w, req, projectID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, projectID string) {
	switch req.Method {
	case http.MethodPut:
		var payload struct {
			Name    string   `json:"name"`
			Origins []string `json:"origins"`
		}
		if err := decodeJSONBody(req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		proj, err := r.projects.UpdateOrigins(req.Context(), projectID, payload.Name, payload.Origins)
		if err != nil {
			switch {
			case errors.Is(err, project.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, repository.ErrNotFound):
				writeError(w, http.StatusNotFound, "Project not found")
			case errors.Is(err, repository.ErrInvalidArgument):
				writeError(w, http.StatusBadRequest, "invalid project attributes")
			default:
				r.internalError(w, req, "project update failed", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": projectPayload(*proj)})
	case http.MethodDelete:
		if err := r.projects.Delete(req.Context(), projectID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Project not found")
				return
			}
			r.internalError(w, req, "project deletion failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Project and all its logs deleted",
		})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectLogs(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	deleted, err := r.logs.ClearProjectLogs(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found")
			return
		}
		r.internalError(w, req, "project log deletion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Logs deleted",
		"deletedCount": deleted,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// declaredOrigin returns the caller's declared origin: the Origin header,
// or the Referer as a fallback. Empty for non-browser callers.
func declaredOrigin(req *http.Request) string {
	if o := strings.TrimSpace(req.Header.Get("Origin")); o != "" {
		return o
	}
	return strings.TrimSpace(req.Header.Get("Referer"))
}

func projectPayload(proj domain.Project) map[string]any {
	return map[string]any{
		"id":         proj.ID,
		"name":       proj.Name,
		"origins":    proj.Origins,
		"created_at": proj.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func intParam(w http.ResponseWriter, raw string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit and offset must be integers")
		return 0, false
	}
	return value, true
}

// internalError logs the cause and replies with an opaque 500. Storage
// failures are never silently dropped and never retried here.
func (r *Router) internalError(w http.ResponseWriter, req *http.Request, msg string, err error) {
	if errors.Is(err, repository.ErrForeignKey) {
		r.logger.Error("referential integrity violation", "path", req.URL.Path, "error", err)
	} else {
		r.logger.Error(msg, "path", req.URL.Path, "error", err)
	}
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
