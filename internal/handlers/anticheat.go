package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"testquest-backend/internal/analytics"
	"testquest-backend/internal/models"
	"testquest-backend/internal/services"
)

// ViolationRecorder is satisfied by *services.AntiCheatService.
type ViolationRecorder interface {
	Record(ctx context.Context, vc services.ViolationContext, req models.ViolationRequest) (*models.AntiCheatLog, error)
	Overview(ctx context.Context, filter analytics.LogFilter) (*services.AntiCheatOverview, error)
}

type AntiCheatHandler struct {
	service ViolationRecorder
}

func NewAntiCheatHandler(service ViolationRecorder) *AntiCheatHandler {
	return &AntiCheatHandler{service: service}
}

// Report records a violation raised by the student's test client.
func (h *AntiCheatHandler) Report(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Please sign in to continue", r))
		return
	}

	attemptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid attempt ID", r))
		return
	}

	var req models.ViolationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.service.Record(r.Context(), services.ViolationContext{
		StudentID: user.ID,
		AttemptID: attemptID,
		IPAddress: clientAddr(r),
		UserAgent: r.UserAgent(),
	}, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *AntiCheatHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := analytics.LogFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Type:   models.ViolationType(q.Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"type": "Unknown violation type"}, r))
		return
	}

	overview, err := h.service.Overview(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// clientAddr is RemoteAddr without the port. chi's RealIP has already
// replaced it with the forwarded address when a proxy set one.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
