package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"testquest-backend/internal/middleware"
	"testquest-backend/internal/models"
	"testquest-backend/internal/session"
)

type nopIdentities struct{}

func (nopIdentities) FindByCredentials(ctx context.Context, email, password string) (*models.User, error) {
	return nil, session.ErrInvalidCredentials
}

func (nopIdentities) Create(ctx context.Context, identity session.NewIdentity) (*models.User, error) {
	return nil, session.ErrInvalidCredentials
}

func (nopIdentities) Update(ctx context.Context, user *models.User) error { return nil }

type fixedSlot struct{ user *models.User }

func (s fixedSlot) Save(ctx context.Context, user *models.User) error { return nil }
func (s fixedSlot) Load(ctx context.Context) (*models.User, error)    { return s.user.Clone(), nil }
func (s fixedSlot) Clear(ctx context.Context) error                   { return nil }

func (s fixedSlot) Replace(ctx context.Context, user *models.User) (bool, error) {
	return s.user != nil, nil
}

// withUser stands in for Access.Attach.
func withUser(t *testing.T, user *models.User, next http.Handler) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}
		s, err := session.New(nopIdentities{}, fixedSlot{user: user}, session.Options{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		s.Restore(r.Context())
		next.ServeHTTP(w, r.WithContext(middleware.WithSession(r.Context(), "sid", s)))
	})
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	// No server listens here; the subscription simply never delivers.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return NewHub(client, "anticheat_events", "", nil)
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RejectsAnonymous(t *testing.T) {
	hub := newTestHub(t)
	srv := httptest.NewServer(withUser(t, nil, http.HandlerFunc(hub.HandleWebSocket)))
	defer srv.Close()

	_, resp, err := dial(t, srv)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestHub_BroadcastsToStaff(t *testing.T) {
	hub := newTestHub(t)
	defer hub.Close()
	mentor := &models.User{ID: uuid.New(), Role: models.RoleMentor}
	srv := httptest.NewServer(withUser(t, mentor, http.HandlerFunc(hub.HandleWebSocket)))
	defer srv.Close()

	first, _, err := dial(t, srv)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	second, _, err := dial(t, srv)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()

	waitFor(t, func() bool { return hub.Clients() == 2 })

	payload := `{"type":"anticheat_violation","payload":{}}`
	hub.broadcast([]byte(payload))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != payload {
			t.Fatalf("unexpected message %s", data)
		}
	}

	first.Close()
	waitFor(t, func() bool { return hub.Clients() == 1 })
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(nil, "anticheat_events", "http://localhost:5173", nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := hub.upgrader.CheckOrigin(r); got != tc.want {
			t.Errorf("origin %q: expected %v, got %v", tc.origin, tc.want, got)
		}
	}
}
