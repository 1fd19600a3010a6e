package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavecall/api/internal/service/auth"
	"github.com/wavecall/api/internal/service/media"
	"github.com/wavecall/api/internal/service/team"
	"github.com/wavecall/api/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	auth        auth.Service
	team        team.Service
	media       media.Service
	hub         *ws.Hub
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	dbHealth    func(context.Context) error
	cacheHealth func(context.Context) error
	metrics     *routerMetrics
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitWebhook   = 120
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, teamSvc team.Service, mediaSvc media.Service, hub *ws.Hub, limiter RateLimiter, dbHealth, cacheHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		team:   teamSvc,
		media:  mediaSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		dbHealth:    dbHealth,
		cacheHealth: cacheHealth,
		metrics:     newRouterMetrics(),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
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
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/auth/webhook", r.audit("/api/auth/webhook", r.withRateLimit("/api/auth/webhook", rateLimitWebhook, rateWindowDefault, rateLimitKeyIP, r.handleIdentityWebhook)))
	r.mux.HandleFunc("/api/auth/check-email", r.audit("/api/auth/check-email", r.withRateLimit("/api/auth/check-email", rateLimitUserRead, rateWindowDefault, rateLimitKeyIP, r.handleCheckEmail)))
	r.mux.HandleFunc("/api/auth/update-profile", r.audit("/api/auth/update-profile", r.handlerAuthRate("/api/auth/update-profile", rateLimitUserWrite, rateWindowDefault, r.handleUpdateProfile)))
	r.mux.HandleFunc("/api/teams", r.audit("/api/teams", r.handlerAuthRate("/api/teams", rateLimitUserRead, rateWindowDefault, r.handleListTeams)))
	r.mux.HandleFunc("/api/teams/", r.audit("/api/teams/", r.handlerAuthRate("/api/teams/", rateLimitUserWrite, rateWindowDefault, r.handleTeamSubroutes)))
	r.mux.HandleFunc("/livekit/token", r.audit("/livekit/token", r.handlerAuthRate("/livekit/token", rateLimitUserWrite, rateWindowDefault, r.handleRoomToken)))
	r.mux.HandleFunc("/livekit/webhook", r.audit("/livekit/webhook", r.withRateLimit("/livekit/webhook", rateLimitWebhook, rateWindowDefault, rateLimitKeyIP, r.handleRoomWebhook)))
	r.mux.HandleFunc("/ws/rooms", r.audit("/ws/rooms", r.handlerAuthRate("/ws/rooms", rateLimitWebsocket, rateWindowRealtime, r.handlePresenceWS)))
}

func (r *Router) handleIdentityWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Could not read body")
		return
	}
	if err := r.auth.HandleProviderWebhook(req.Context(), payload, req.Header); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeMessage(w, http.StatusUnauthorized, "Invalid webhook signature")
			return
		}
		r.logger.Error("identity webhook failed", "error", err)
		writeMessage(w, http.StatusBadRequest, "Webhook processing failed")
		return
	}
	writeMessage(w, http.StatusOK, "Webhook processed")
}

func (r *Router) handleCheckEmail(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	exists, err := r.auth.EmailExists(req.Context(), payload.Email)
	if err != nil {
		writeServiceError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile update", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := r.auth.UpdateProfile(req.Context(), identity, payload.Name); err != nil {
		writeServiceError(w, err, http.StatusNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Profile updated successfully")
}

func (r *Router) handleListTeams(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for team list", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	teams, err := r.team.List(req.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/teams/")
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1 && parts[0] == "create":
		r.handleCreateTeam(w, req)
	case len(parts) == 2 && parts[0] != "" && parts[1] == "leave":
		r.handleLeaveTeam(w, req, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "add-members":
		r.handleAddMembers(w, req, parts[0])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleCreateTeam(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for team creation", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var payload struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := r.team.Create(req.Context(), identity, payload.Name, payload.Members); err != nil {
		// Unresolved member emails are a client error, not a missing resource.
		writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	writeMessage(w, http.StatusOK, "Team created successfully")
}

func (r *Router) handleLeaveTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for team leave", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := r.team.Leave(req.Context(), teamID, identity.ID); err != nil {
		writeServiceError(w, err, http.StatusNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Left team successfully")
}

func (r *Router) handleAddMembers(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for member add", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var payload struct {
		Emails []string `json:"emails"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := r.team.AddMembers(req.Context(), teamID, identity.ID, payload.Emails); err != nil {
		writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	writeMessage(w, http.StatusOK, "Members added successfully")
}

func (r *Router) handleRoomToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for room token", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var payload struct {
		RoomName string `json:"roomName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	grant, err := r.media.MintToken(identity, payload.RoomName)
	if err != nil {
		writeServiceError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (r *Router) handleRoomWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.media.HandleRoomWebhook(req); err != nil {
		if errors.Is(err, media.ErrBadSignature) {
			writeMessage(w, http.StatusUnauthorized, "Invalid webhook signature")
			return
		}
		r.logger.Error("room webhook failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeMessage(w, http.StatusOK, "Webhook processed")
}

func (r *Router) handlePresenceWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := identityFromContext(req.Context()); !ok {
		r.logger.Error("auth context missing for presence websocket", "path", req.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	roomID := req.URL.Query().Get("room")
	if roomID == "" {
		writeMessage(w, http.StatusBadRequest, "room query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(roomID, client)
	r.metrics.wsOpened()
	go func() {
		defer func() {
			r.hub.Unregister(roomID, client)
			client.Close()
			r.metrics.wsClosed()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", r.dbHealth},
		{"cache", r.cacheHealth},
	}
	for _, check := range checks {
		if check.fn == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := check.fn(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[check.name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components[check.name] = map[string]any{"status": "up"}
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
		r.metrics.observeRequest(req.Method, route, status, duration)

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
		if identity, ok := identityFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", identity.ID)
		} else if strings.HasSuffix(req.URL.Path, "/webhook") {
			actor = "provider"
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

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeMessage(w, http.StatusNotFound, "Not found")
}
