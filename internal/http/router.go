package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskflow/taskflow/internal/service/auth"
	"github.com/taskflow/taskflow/internal/service/project"
	"github.com/taskflow/taskflow/internal/service/task"
	"github.com/taskflow/taskflow/internal/service/team"
	"github.com/taskflow/taskflow/internal/service/user"
	"github.com/taskflow/taskflow/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	users    user.Service
	teams    team.Service
	projects project.Service
	tasks    task.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	wsSendBuffer int
	sseHeartbeat time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	eventSubscribers   *prometheus.GaugeVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
)

// Options carries the tunables the router does not derive itself.
type Options struct {
	Limiter      RateLimiter
	DBHealth     func(context.Context) error
	WSSendBuffer int
	SSEHeartbeat time.Duration
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, teamSvc team.Service, projectSvc project.Service, taskSvc task.Service, hub *ws.Hub, opts Options) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		users:    userSvc,
		teams:    teamSvc,
		projects: projectSvc,
		tasks:    taskSvc,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      opts.Limiter,
		dbHealth:     opts.DBHealth,
		wsSendBuffer: opts.WSSendBuffer,
		sseHeartbeat: opts.SSEHeartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.sseHeartbeat <= 0 {
		r.sseHeartbeat = 25 * time.Second
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
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
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/me", r.audit("/auth/me", r.handlerAuthRate("/auth/me", rateLimitUserRead, rateWindowDefault, r.handleMe)))
	r.mux.HandleFunc("/projects", r.audit("/projects", r.handlerAuthRate("/projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit("/projects/", r.handlerAuthRate("/projects/", rateLimitUserWrite, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/tasks", r.audit("/tasks", r.handlerAuthRate("/tasks", rateLimitUserWrite, rateWindowDefault, r.handleTasks)))
	r.mux.HandleFunc("/tasks/", r.audit("/tasks/", r.handlerAuthRate("/tasks/", rateLimitUserWrite, rateWindowDefault, r.handleTaskSubroutes)))
	r.mux.HandleFunc("/teams", r.audit("/teams", r.handlerAuthRate("/teams", rateLimitUserWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/teams/", r.audit("/teams/", r.handlerAuthRate("/teams/", rateLimitUserWrite, rateWindowDefault, r.handleTeamSubroutes)))
	r.mux.HandleFunc("/users", r.audit("/users", r.handlerAuthRate("/users", rateLimitUserRead, rateWindowDefault, r.handleUsers)))
	r.mux.HandleFunc("/users/", r.audit("/users/", r.handlerAuthRate("/users/", rateLimitUserRead, rateWindowDefault, r.handleUserByID)))
	r.mux.HandleFunc("/ws", r.withRateLimit("/ws", rateLimitRealtime, rateWindowRealtime, rateLimitKeyIP, r.handleWS))
	r.mux.HandleFunc("/events", r.audit("/events", r.handlerAuthRate("/events", rateLimitRealtime, rateWindowRealtime, r.handleEvents)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, tokens, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   u.Ref(),
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   u.Ref(),
		"tokens": tokens,
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	ref, err := r.users.Get(req.Context(), info.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		views, err := r.projects.List(req.Context(), info.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var payload project.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.projects.Create(req.Context(), info.UserID, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	id, rest := splitResourcePath(req.URL.Path, "/projects/")
	if id == "" {
		r.notFound(w)
		return
	}
	switch rest {
	case "":
		r.handleProjectByID(w, req, info.UserID, id)
	case "members":
		r.handleProjectMembers(w, req, info.UserID, id)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjectByID(w http.ResponseWriter, req *http.Request, actorID, id string) {
	switch req.Method {
	case http.MethodGet:
		view, err := r.projects.Get(req.Context(), actorID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut, http.MethodPatch:
		var payload project.UpdateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.projects.Update(req.Context(), actorID, id, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := r.projects.Delete(req.Context(), actorID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectMembers(w http.ResponseWriter, req *http.Request, actorID, id string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, err := r.projects.AddMember(req.Context(), actorID, id, payload.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		filter := task.ListFilter{
			ProjectID:  req.URL.Query().Get("project"),
			Status:     req.URL.Query().Get("status"),
			AssignedTo: req.URL.Query().Get("assignedTo"),
		}
		views, err := r.tasks.List(req.Context(), info.UserID, filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var payload task.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.tasks.Create(req.Context(), info.UserID, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	id, rest := splitResourcePath(req.URL.Path, "/tasks/")
	if id == "" {
		r.notFound(w)
		return
	}
	switch rest {
	case "":
		r.handleTaskByID(w, req, info.UserID, id)
	case "comments":
		r.handleTaskComments(w, req, info.UserID, id)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTaskByID(w http.ResponseWriter, req *http.Request, actorID, id string) {
	switch req.Method {
	case http.MethodGet:
		view, err := r.tasks.Get(req.Context(), actorID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut, http.MethodPatch:
		var payload task.UpdateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.tasks.Update(req.Context(), actorID, id, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := r.tasks.Delete(req.Context(), actorID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskComments(w http.ResponseWriter, req *http.Request, actorID, id string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, err := r.tasks.AddComment(req.Context(), actorID, id, payload.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		views, err := r.teams.List(req.Context(), info.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var payload team.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.teams.Create(req.Context(), info.UserID, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	id, rest := splitResourcePath(req.URL.Path, "/teams/")
	if id == "" {
		r.notFound(w)
		return
	}
	switch rest {
	case "":
		r.handleTeamByID(w, req, info.UserID, id)
	case "members":
		r.handleTeamMembers(w, req, info.UserID, id)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTeamByID(w http.ResponseWriter, req *http.Request, actorID, id string) {
	switch req.Method {
	case http.MethodGet:
		view, err := r.teams.Get(req.Context(), actorID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut, http.MethodPatch:
		var payload team.UpdateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := r.teams.Update(req.Context(), actorID, id, payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := r.teams.Delete(req.Context(), actorID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamMembers(w http.ResponseWriter, req *http.Request, actorID, id string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload team.AddMemberInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, err := r.teams.AddMember(req.Context(), actorID, id, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	refs, err := r.users.List(req.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (r *Router) handleUserByID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	id, rest := splitResourcePath(req.URL.Path, "/users/")
	if id == "" || rest != "" {
		r.notFound(w)
		return
	}
	ref, err := r.users.Get(req.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// handleWS upgrades the connection and hands it to a realtime session. The
// token rides in the query string because browser websocket clients cannot
// set an Authorization header.
func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	token := strings.TrimSpace(req.URL.Query().Get("token"))
	if token == "" {
		if header, err := bearerToken(req.Header.Get("Authorization")); err == nil {
			token = header
		}
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	session := ws.NewSession(uuid.NewString(), r.hub, conn, r.logger, r.wsSendBuffer)
	if err := session.Authenticate(req.Context(), token, r.auth); err != nil {
		r.logger.Warn("websocket auth refused", "error", err)
		return
	}
	r.trackSubscriber("websocket", 1)
	defer r.trackSubscriber("websocket", -1)
	session.Run()
}

// handleEvents streams a single project's events over SSE for clients that
// cannot hold a websocket.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	projectID := req.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	if _, err := r.projects.Get(req.Context(), info.UserID, projectID); err != nil {
		writeDomainError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Join(projectID, client)
	r.trackSubscriber("sse", 1)
	defer func() {
		r.hub.Leave(projectID, client)
		client.Close()
		r.trackSubscriber("sse", -1)
	}()

	heartbeat := time.NewTicker(r.sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
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

// splitResourcePath peels "/{id}" and an optional single trailing segment
// off a prefixed path.
func splitResourcePath(path, prefix string) (id, rest string) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.TrimSuffix(trimmed, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return id, rest
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) missingAuthContext(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
