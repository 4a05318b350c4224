package middleware

import (
	"context"
	"errors"
	"net/http"

	"testquest-backend/internal/guard"
	"testquest-backend/internal/logger"
	"testquest-backend/internal/models"
	"testquest-backend/internal/session"
)

type contextKey string

const (
	sessionKey   contextKey = "session"
	sessionIDKey contextKey = "session_id"
)

// SessionOpener is satisfied by *session.Manager.
type SessionOpener interface {
	Open(ctx context.Context, sid string) (*session.Session, error)
}

// Access resolves bearer tokens to sessions and gates routes by role.
type Access struct {
	jwt      *JWTAuth
	sessions SessionOpener
	log      *logger.Logger
}

func NewAccess(jwt *JWTAuth, sessions SessionOpener, log *logger.Logger) *Access {
	if log == nil {
		log = logger.Nop()
	}
	return &Access{jwt: jwt, sessions: sessions, log: log}
}

// Attach puts the caller's restored session into the request context. It
// never rejects: requests without a usable token continue anonymously.
func (a *Access) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.jwt.Parse(token)
		if err != nil {
			if !errors.Is(err, ErrTokenExpired) {
				a.log.Debug("rejected bearer token", "error", err, "request_id", GetRequestID(r.Context()))
			}
			next.ServeHTTP(w, r)
			return
		}

		s, err := a.sessions.Open(r.Context(), claims.SessionID)
		if err != nil {
			a.log.Error("failed to open session", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, s)
		ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guardResponse is the body of a 401/403 produced by Require.
type guardResponse struct {
	Error models.APIError `json:"error"`
	guard.Decision
}

// Require admits only sessions that guard.Decide renders for roles. With no
// roles any authenticated session passes.
func (a *Access) Require(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := guard.Decide(SnapshotFrom(r.Context()), r.URL.Path, roles...)
			switch d.Kind {
			case guard.Render:
				next.ServeHTTP(w, r)
			case guard.ShowLoading:
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "SESSION_LOADING", "Session is still loading", r)
			default:
				status, code, msg := http.StatusForbidden, "FORBIDDEN", "Your role cannot access this resource"
				if d.Path == guard.LoginPath {
					status, code, msg = http.StatusUnauthorized, "UNAUTHORIZED", "Please sign in to continue"
				}
				writeJSON(w, status, guardResponse{
					Error:    models.APIError{Code: code, Message: msg, RequestID: GetRequestID(r.Context())},
					Decision: d,
				})
			}
		})
	}
}

// SessionFrom returns the session Attach stored, if any.
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// SessionIDFrom returns the id of the attached session, or "".
func SessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}

// SnapshotFrom is the attached session's snapshot, or an anonymous one.
func SnapshotFrom(ctx context.Context) session.Snapshot {
	if s, ok := SessionFrom(ctx); ok {
		return s.Snapshot()
	}
	return session.Snapshot{}
}

// WithSession is used by handlers that mint a session mid-request and by tests.
func WithSession(ctx context.Context, sid string, s *session.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return context.WithValue(ctx, sessionIDKey, sid)
}
