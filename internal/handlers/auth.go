package handlers

import (
	"context"
	"net/http"
	"strings"

	"testquest-backend/internal/guard"
	"testquest-backend/internal/logger"
	"testquest-backend/internal/middleware"
	"testquest-backend/internal/models"
	"testquest-backend/internal/services"
	"testquest-backend/internal/session"
)

// SessionStarter is satisfied by *session.Manager.
type SessionStarter interface {
	NewID() (string, error)
	Open(ctx context.Context, sid string) (*session.Session, error)
}

type AuthHandler struct {
	sessions SessionStarter
	jwt      *middleware.JWTAuth
	log      *logger.Logger
}

func NewAuthHandler(sessions SessionStarter, jwt *middleware.JWTAuth, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{sessions: sessions, jwt: jwt, log: log}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	user, err := s.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.issue(w, r, http.StatusCreated, sid, user)
}

// Login signs in on the caller's current session when one is attached, so a
// second login switches accounts in place.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := services.ValidateLogin(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	sid, s, ok := h.session(w, r)
	if !ok {
		return
	}
	user, err := s.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.issue(w, r, http.StatusOK, sid, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.SessionFrom(r.Context()); ok {
		s.Logout(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Please sign in to continue", r))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch models.UserPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	fields := make(map[string]string)
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			fields["full_name"] = "This field is required"
		} else if len(name) > 120 {
			fields["full_name"] = "Must be at most 120 characters"
		}
	}
	if patch.AvatarURL != nil && len(*patch.AvatarURL) > 2048 {
		fields["avatar_url"] = "Must be at most 2048 characters"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Please sign in to continue", r))
		return
	}
	user, err := s.UpdateUser(r.Context(), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Please sign in to continue", r))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// session returns the attached session or opens a fresh one.
func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request) (string, *session.Session, bool) {
	if s, ok := middleware.SessionFrom(r.Context()); ok {
		return middleware.SessionIDFrom(r.Context()), s, true
	}

	sid, err := h.sessions.NewID()
	if err == nil {
		var s *session.Session
		if s, err = h.sessions.Open(r.Context(), sid); err == nil {
			return sid, s, true
		}
	}
	h.log.Error("failed to start session", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	return "", nil, false
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, status int, sid string, user *models.User) {
	token, err := h.jwt.GenerateAccessToken(sid, user.ID, user.Role)
	if err != nil {
		h.log.Error("failed to sign access token", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
		return
	}

	writeJSON(w, status, models.AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.TTL.Seconds()),
		User:        user,
		Redirect:    guard.HomePath(user.Role),
	})
}
