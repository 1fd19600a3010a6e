package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/wavecall/api/internal/cache"
	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/repository"
	"github.com/wavecall/api/internal/service/auth"
	"github.com/wavecall/api/internal/service/media"
	"github.com/wavecall/api/internal/service/team"
	"github.com/wavecall/api/internal/ws"
	"github.com/wavecall/api/pkg/config"
	jwtpkg "github.com/wavecall/api/pkg/jwt"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	teams   map[string]domain.Team
	members map[string]map[string]time.Time
	order   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]domain.User),
		teams:   make(map[string]domain.Team),
		members: make(map[string]map[string]time.Time),
	}
}

func (f *fakeStore) addUser(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeStore) CreateUser(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) UpdateUserByProviderID(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.ProviderID == user.ProviderID {
			u.Name = user.Name
			u.Email = user.Email
			u.EmailVerified = user.EmailVerified
			u.ImageURL = user.ImageURL
			u.UpdatedAt = user.UpdatedAt
			f.users[id] = u
			return nil
		}
	}
	return repository.ErrNotFound
}

// DeleteUserByProviderID mirrors the schema's referential actions: team
// creator references are nulled and membership rows are removed with the
// user.
func (f *fakeStore) DeleteUserByProviderID(ctx context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.ProviderID != providerID {
			continue
		}
		delete(f.users, id)
		for teamID, team := range f.teams {
			if team.CreatorID == id {
				team.CreatorID = ""
				f.teams[teamID] = team
			}
		}
		for _, roster := range f.members {
			delete(roster, id)
		}
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetUserByProviderID(ctx context.Context, providerID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ProviderID == providerID {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for _, email := range emails {
		for _, u := range f.users {
			if strings.EqualFold(u.Email, email) {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUserName(ctx context.Context, id, name string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = updatedAt
	f.users[id] = u
	return nil
}

func (f *fakeStore) CreateTeamWithMembers(ctx context.Context, t *domain.Team, memberIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams[t.ID] = *t
	f.order = append(f.order, t.ID)
	roster := make(map[string]time.Time, len(memberIDs))
	for _, id := range memberIDs {
		roster[id] = t.CreatedAt
	}
	f.members[t.ID] = roster
	return nil
}

func (f *fakeStore) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roster, ok := f.members[teamID]; ok {
		if at, ok := roster[userID]; ok {
			return &domain.TeamMember{TeamID: teamID, UserID: userID, CreatedAt: at}, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for teamID, roster := range f.members {
		if _, ok := roster[userID]; ok {
			ids = append(ids, teamID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) GetTeamsByIDs(ctx context.Context, teamIDs []string) ([]domain.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Team, 0, len(teamIDs))
	for _, id := range teamIDs {
		if t, ok := f.teams[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMemberDetails(ctx context.Context, teamIDs []string) ([]domain.TeamMemberDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TeamMemberDetail
	for _, teamID := range teamIDs {
		for userID := range f.members[teamID] {
			u := f.users[userID]
			out = append(out, domain.TeamMemberDetail{TeamID: teamID, UserID: userID, Name: u.Name, Email: u.Email})
		}
	}
	return out, nil
}

func (f *fakeStore) ListMemberIDs(ctx context.Context, teamID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for userID := range f.members[teamID] {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) AddMembers(ctx context.Context, teamID string, userIDs []string, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.members[teamID]
	if !ok {
		roster = make(map[string]time.Time)
		f.members[teamID] = roster
	}
	for _, id := range userIDs {
		if _, exists := roster[id]; !exists {
			roster[id] = createdAt
		}
	}
	return nil
}

func (f *fakeStore) DeleteMembership(ctx context.Context, teamID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster, ok := f.members[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := roster[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(roster, userID)
	return nil
}

var _ repository.UserRepository = (*fakeStore)(nil)
var _ repository.TeamRepository = (*fakeStore)(nil)

type routerFixture struct {
	router *Router
	store  *fakeStore
	cfg    config.APIConfig
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:             "test-secret",
		SessionTokenTTL:       time.Hour,
		TeamCacheTTL:          time.Minute,
		LiveKitURL:            "ws://localhost:7880",
		LiveKitAPIKey:         "devkey",
		LiveKitAPISecret:      "devsecretdevsecretdevsecret12345",
		LiveKitTokenTTL:       time.Hour,
		IdentityWebhookSecret: "whsec_dGVzdC1zaWduaW5nLXNlY3JldC0xMjM0NQ==",
	}
	store := newFakeStore()
	teamCache := cache.NewMemoryCache(cfg.TeamCacheTTL)
	hub := ws.NewHub(8)

	authSvc := auth.New(store, teamCache, logger, cfg)
	teamSvc := team.New(store, store, teamCache, logger)
	mediaSvc := media.New(hub, logger, cfg)

	router := NewRouter(logger, authSvc, teamSvc, mediaSvc, hub, NewMemoryRateLimiter(), nil, teamCache.Ping)
	t.Cleanup(router.Close)
	return &routerFixture{router: router, store: store, cfg: cfg}
}

func (fx *routerFixture) seedUser(t *testing.T, id, name, email string) string {
	t.Helper()
	fx.store.addUser(domain.User{ID: id, ProviderID: "prov-" + id, Name: name, Email: email})
	token, err := jwtpkg.GenerateToken(id, fx.cfg.JWTSecret, fx.cfg.SessionTokenTTL)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (fx *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:51234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

// signWebhook produces the Svix headers the identity provider would send
// for the given payload.
func (fx *routerFixture) signWebhook(t *testing.T, payload []byte) http.Header {
	t.Helper()
	wh, err := svix.NewWebhook(fx.cfg.IdentityWebhookSecret)
	if err != nil {
		t.Fatalf("webhook signer: %v", err)
	}
	now := time.Now()
	signature, err := wh.Sign("msg_test", now, payload)
	if err != nil {
		t.Fatalf("sign webhook: %v", err)
	}
	headers := http.Header{}
	headers.Set("svix-id", "msg_test")
	headers.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	headers.Set("svix-signature", signature)
	return headers
}

func (fx *routerFixture) postWebhook(t *testing.T, payload []byte, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/webhook", bytes.NewReader(payload))
	req.RemoteAddr = "192.0.2.10:51234"
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode message body %q: %v", rec.Body.String(), err)
	}
	return payload.Message
}

func TestListTeamsRequiresAuth(t *testing.T) {
	fx := newTestRouter(t)
	rec := fx.do(t, http.MethodGet, "/api/teams", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/api/teams", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestCreateAndListTeams(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")
	fx.seedUser(t, "u-bob", "Bob", "bob@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{
		"name":    "Video Crew",
		"members": []string{"bob@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/api/teams", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var payload struct {
		Teams []domain.TeamWithMembers `json:"teams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if len(payload.Teams) != 1 {
		t.Fatalf("expected 1 team, got %d", len(payload.Teams))
	}
	got := payload.Teams[0]
	if got.Name != "Video Crew" || got.CreatorID != "u-alice" {
		t.Fatalf("unexpected team %+v", got)
	}
	if len(got.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(got.Members))
	}
	if limit := rec.Header().Get("X-RateLimit-Limit"); limit == "" {
		t.Fatal("expected rate limit headers on authenticated route")
	}
}

func TestCreateTeamUnresolvedEmail(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", token, map[string]any{
		"name":    "Ghost Crew",
		"members": []string{"alice@example.com", "ghost@example.com"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	msg := decodeMessage(t, rec)
	if !strings.Contains(msg, "ghost@example.com") {
		t.Fatalf("expected unresolved email in message, got %q", msg)
	}
	if strings.Contains(msg, "alice@example.com") {
		t.Fatalf("resolved email must not appear in message, got %q", msg)
	}
}

func TestCreateTeamEmptyName(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", token, map[string]any{"name": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLeaveTeamNonMember(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")
	strangerToken := fx.seedUser(t, "u-eve", "Eve", "eve@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{"name": "Solo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rec.Code)
	}
	teamID := fx.onlyTeamID(t)

	rec = fx.do(t, http.MethodPost, "/api/teams/"+teamID+"/leave", strangerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec); msg != "You are not a member of this team" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestLeaveTeam(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{"name": "Temp"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rec.Code)
	}
	teamID := fx.onlyTeamID(t)

	rec = fx.do(t, http.MethodPost, "/api/teams/"+teamID+"/leave", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/api/teams", aliceToken, nil)
	var payload struct {
		Teams []domain.TeamWithMembers `json:"teams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if len(payload.Teams) != 0 {
		t.Fatalf("expected no teams after leave, got %d", len(payload.Teams))
	}
}

func TestAddMembersConflict(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")
	fx.seedUser(t, "u-bob", "Bob", "bob@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{
		"name":    "Crew",
		"members": []string{"bob@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rec.Code)
	}
	teamID := fx.onlyTeamID(t)

	rec = fx.do(t, http.MethodPost, "/api/teams/"+teamID+"/add-members", aliceToken, map[string]any{
		"emails": []string{"bob@example.com"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 conflict, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec); msg != "All users are already members of this team" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAddMembersByNonMember(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")
	eveToken := fx.seedUser(t, "u-eve", "Eve", "eve@example.com")
	fx.seedUser(t, "u-bob", "Bob", "bob@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{"name": "Private"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rec.Code)
	}
	teamID := fx.onlyTeamID(t)

	rec = fx.do(t, http.MethodPost, "/api/teams/"+teamID+"/add-members", eveToken, map[string]any{
		"emails": []string{"bob@example.com"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProviderDeleteOfTeamCreator(t *testing.T) {
	fx := newTestRouter(t)
	aliceToken := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")
	bobToken := fx.seedUser(t, "u-bob", "Bob", "bob@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/create", aliceToken, map[string]any{
		"name":    "Crew",
		"members": []string{"bob@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	payload := []byte(`{"type":"user.deleted","data":{"id":"prov-u-alice"}}`)
	rec = fx.postWebhook(t, payload, fx.signWebhook(t, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected creator deletion to apply, got %d: %s", rec.Code, rec.Body.String())
	}

	// The team outlives its creator; the roster shrinks and the creator
	// reference is cleared.
	rec = fx.do(t, http.MethodGet, "/api/teams", bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Teams []domain.TeamWithMembers `json:"teams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if len(listed.Teams) != 1 {
		t.Fatalf("expected team to survive creator deletion, got %d teams", len(listed.Teams))
	}
	got := listed.Teams[0]
	if got.CreatorID != "" {
		t.Fatalf("expected creator reference cleared, got %q", got.CreatorID)
	}
	if len(got.Members) != 1 || got.Members[0].UserID != "u-bob" {
		t.Fatalf("expected bob as sole remaining member, got %+v", got.Members)
	}
}

func TestProviderWebhookRejectsBadSignature(t *testing.T) {
	fx := newTestRouter(t)
	payload := []byte(`{"type":"user.created","data":{"id":"prov-x"}}`)
	headers := http.Header{}
	headers.Set("svix-id", "msg_test")
	headers.Set("svix-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	headers.Set("svix-signature", "v1,bm90LXZhbGlk")

	rec := fx.postWebhook(t, payload, headers)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged signature, got %d", rec.Code)
	}
}

func TestRoomToken(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/livekit/token", token, map[string]any{"roomName": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty room, got %d", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/livekit/token", token, map[string]any{"roomName": "standup"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var grant struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.Token == "" || grant.URL != fx.cfg.LiveKitURL {
		t.Fatalf("unexpected grant %+v", grant)
	}

	rec = fx.do(t, http.MethodPost, "/livekit/token", "", map[string]any{"roomName": "standup"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 unauthenticated, got %d", rec.Code)
	}
}

func TestCheckEmail(t *testing.T) {
	fx := newTestRouter(t)
	fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/api/auth/check-email", "", map[string]any{"email": "alice@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !payload.Exists {
		t.Fatal("expected exists=true for registered email")
	}

	rec = fx.do(t, http.MethodPost, "/api/auth/check-email", "", map[string]any{"email": "nobody@example.com"})
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Exists {
		t.Fatal("expected exists=false for unknown email")
	}
}

func TestUpdateProfile(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPatch, "/api/auth/update-profile", token, map[string]any{"name": "Alice B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	user, err := fx.store.GetUserByID(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	if user.Name != "Alice B" {
		t.Fatalf("expected renamed user, got %q", user.Name)
	}

	rec = fx.do(t, http.MethodPatch, "/api/auth/update-profile", token, map[string]any{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	fx := newTestRouter(t)
	rec := fx.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodGet, "/api/teams/create", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestUnknownTeamSubroute(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	rec := fx.do(t, http.MethodPost, "/api/teams/abc/promote", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func (fx *routerFixture) onlyTeamID(t *testing.T) string {
	t.Helper()
	fx.store.mu.Lock()
	defer fx.store.mu.Unlock()
	if len(fx.store.order) != 1 {
		t.Fatalf("expected exactly one team, got %d", len(fx.store.order))
	}
	return fx.store.order[0]
}

func TestRateLimitExceeded(t *testing.T) {
	fx := newTestRouter(t)
	token := fx.seedUser(t, "u-alice", "Alice", "alice@example.com")

	var limited bool
	for i := 0; i < rateLimitUserRead+5; i++ {
		rec := fx.do(t, http.MethodGet, "/api/teams", token, nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			if msg := decodeMessage(t, rec); msg != "Rate limit exceeded" {
				t.Fatalf("unexpected message %q", msg)
			}
			break
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if !limited {
		t.Fatalf("no 429 after %d requests", rateLimitUserRead+5)
	}
}
