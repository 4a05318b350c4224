package handlers

import (
	"net/http"

	"testquest-backend/internal/guard"
	"testquest-backend/internal/middleware"
)

type NavigationHandler struct {
	table guard.Table
}

func NewNavigationHandler(table guard.Table) *NavigationHandler {
	return &NavigationHandler{table: table}
}

type navigationResponse struct {
	Kind string `json:"decision"`
	guard.Decision
}

// Decide answers whether the caller may open a front-end path.
func (h *NavigationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || path[0] != '/' {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"path": "Must be an absolute path"}, r))
		return
	}

	d := h.table.Decide(middleware.SnapshotFrom(r.Context()), path)
	writeJSON(w, http.StatusOK, navigationResponse{Kind: d.Kind.String(), Decision: d})
}
