package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"testquest-backend/internal/analytics"
)

const maxLeaderboardLimit = 100

// Reporter is satisfied by *analytics.Aggregator.
type Reporter interface {
	StudentReport(ctx context.Context, studentID uuid.UUID) analytics.StudentReport
	PlatformReport(ctx context.Context) analytics.PlatformReport
	Leaderboard(ctx context.Context, limit int, viewer uuid.UUID) analytics.Leaderboard
}

type AnalyticsHandler struct {
	reports Reporter
}

func NewAnalyticsHandler(reports Reporter) *AnalyticsHandler {
	return &AnalyticsHandler{reports: reports}
}

// MyReport is the signed-in student's own report.
func (h *AnalyticsHandler) MyReport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Please sign in to continue", r))
		return
	}
	writeJSON(w, http.StatusOK, h.reports.StudentReport(r.Context(), user.ID))
}

func (h *AnalyticsHandler) StudentReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid student ID", r))
		return
	}
	writeJSON(w, http.StatusOK, h.reports.StudentReport(r.Context(), id))
}

func (h *AnalyticsHandler) PlatformReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reports.PlatformReport(r.Context()))
}

// Leaderboard ranks all students. The viewer's own entry is included when the
// caller is ranked.
func (h *AnalyticsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"limit": "Must be between 1 and 100"}, r))
			return
		}
		limit = n
	}

	var viewer uuid.UUID
	if user, ok := currentUser(r); ok {
		viewer = user.ID
	}
	writeJSON(w, http.StatusOK, h.reports.Leaderboard(r.Context(), limit, viewer))
}
