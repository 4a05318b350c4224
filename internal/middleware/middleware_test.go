package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"testquest-backend/internal/models"
	"testquest-backend/internal/session"
)

type noIdentities struct{}

func (noIdentities) FindByCredentials(ctx context.Context, email, password string) (*models.User, error) {
	return nil, session.ErrInvalidCredentials
}

func (noIdentities) Create(ctx context.Context, identity session.NewIdentity) (*models.User, error) {
	return nil, session.ErrInvalidCredentials
}

func (noIdentities) Update(ctx context.Context, user *models.User) error { return nil }

type memSlots struct {
	mu    sync.Mutex
	users map[string]*models.User
}

type memSlot struct {
	store *memSlots
	sid   string
}

func (s memSlot) Save(ctx context.Context, user *models.User) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.users[s.sid] = user.Clone()
	return nil
}

func (s memSlot) Load(ctx context.Context) (*models.User, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.users[s.sid].Clone(), nil
}

func (s memSlot) Clear(ctx context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.users, s.sid)
	return nil
}

func (s memSlot) Replace(ctx context.Context, user *models.User) (bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.users[s.sid]; !ok {
		return false, nil
	}
	s.store.users[s.sid] = user.Clone()
	return true, nil
}

func newTestAccess(t *testing.T) (*Access, *JWTAuth, *memSlots) {
	t.Helper()
	slots := &memSlots{users: make(map[string]*models.User)}
	manager, err := session.NewManager(noIdentities{}, func(sid string) session.Slot {
		return memSlot{store: slots, sid: sid}
	}, session.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jwtAuth := NewJWTAuth("test-secret", time.Hour)
	return NewAccess(jwtAuth, manager, nil), jwtAuth, slots
}

func signIn(t *testing.T, jwtAuth *JWTAuth, slots *memSlots, role models.Role) string {
	t.Helper()
	user := &models.User{ID: uuid.New(), Email: string(role) + "@test.com", Role: role}
	sid := uuid.NewString()
	slots.users[sid] = user
	token, err := jwtAuth.GenerateAccessToken(sid, user.ID, role)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestJWTAuth_RoundTrip(t *testing.T) {
	j := NewJWTAuth("secret", time.Hour)
	userID := uuid.New()

	token, err := j.GenerateAccessToken("sid-1", userID, models.RoleMentor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := j.Parse(token)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if claims.SessionID != "sid-1" || claims.UserID != userID || claims.Role != models.RoleMentor {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	j := NewJWTAuth("secret", time.Hour)
	other := NewJWTAuth("other-secret", time.Hour)
	token, _ := other.GenerateAccessToken("sid", uuid.New(), models.RoleStudent)
	if _, err := j.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	expired := &JWTAuth{Secret: []byte("secret"), TTL: -time.Minute}
	token, _ = expired.GenerateAccessToken("sid", uuid.New(), models.RoleStudent)
	if _, err := j.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, err := j.Parse("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		upgrade string
		query   string
		want    string
	}{
		{"bearer header", "Bearer abc", "", "", "abc"},
		{"case-insensitive scheme", "bearer abc", "", "", "abc"},
		{"wrong scheme", "Basic abc", "", "", ""},
		{"websocket query", "", "websocket", "?token=xyz", "xyz"},
		{"query ignored without upgrade", "", "", "?token=xyz", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/ws"+tc.query, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if tc.upgrade != "" {
				r.Header.Set("Upgrade", tc.upgrade)
			}
			if got := BearerToken(r); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAccess_Require(t *testing.T) {
	access, jwtAuth, slots := newTestAccess(t)
	studentToken := signIn(t, jwtAuth, slots, models.RoleStudent)
	mentorToken := signIn(t, jwtAuth, slots, models.RoleMentor)

	tests := []struct {
		name         string
		token        string
		wantStatus   int
		wantRedirect string
		wantFrom     string
	}{
		{"anonymous", "", http.StatusUnauthorized, "/auth/login", "/api/v1/staff/analytics"},
		{"invalid token is anonymous", "nope", http.StatusUnauthorized, "/auth/login", "/api/v1/staff/analytics"},
		{"student sent home", studentToken, http.StatusForbidden, "/student/dashboard", ""},
		{"mentor admitted", mentorToken, http.StatusOK, "", ""},
	}

	handler := RequestID(access.Attach(access.Require(models.RoleAdmin, models.RoleMentor)(okHandler)))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/staff/analytics", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if tc.wantStatus == http.StatusOK {
				return
			}

			var body struct {
				Error    models.APIError `json:"error"`
				Redirect string          `json:"redirect"`
				From     string          `json:"from"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Redirect != tc.wantRedirect || body.From != tc.wantFrom {
				t.Fatalf("unexpected redirect %q from %q", body.Redirect, body.From)
			}
			if body.Error.RequestID == "" {
				t.Fatal("expected request id in error")
			}
		})
	}
}

func TestAccess_LogoutInvalidatesToken(t *testing.T) {
	access, jwtAuth, slots := newTestAccess(t)
	token := signIn(t, jwtAuth, slots, models.RoleStudent)
	for sid := range slots.users {
		delete(slots.users, sid)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	access.Attach(access.Require()(okHandler)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after the slot was cleared, got %d", rr.Code)
	}
}

func TestAccess_AttachStoresSession(t *testing.T) {
	access, jwtAuth, slots := newTestAccess(t)
	token := signIn(t, jwtAuth, slots, models.RoleAdmin)

	var snap session.Snapshot
	var sid string
	h := access.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap = SnapshotFrom(r.Context())
		sid = SessionIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !snap.IsAuthenticated() || snap.User.Role != models.RoleAdmin || snap.IsLoading {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := slots.users[sid]; !ok {
		t.Fatalf("expected session id %q to be exposed", sid)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected incoming id to be kept, got %q", seen)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a minted uuid, got %q", seen)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(okHandler)
	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	hit("10.0.0.1:1111")
	hit("10.0.0.1:2222")
	rr := hit("10.0.0.1:3333")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if rr := hit("10.0.0.2:1111"); rr.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rr.Code)
	}

	now = now.Add(time.Minute)
	if rr := hit("10.0.0.1:4444"); rr.Code != http.StatusOK {
		t.Fatalf("expected a new window to reset the count, got %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS("http://localhost:5173/")(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected preflight response %d %v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected foreign origin to get no CORS headers")
	}
}
