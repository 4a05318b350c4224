package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"testquest-backend/internal/handlers"
	"testquest-backend/internal/middleware"
	"testquest-backend/internal/models"
	"testquest-backend/internal/websocket"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Navigation *handlers.NavigationHandler
	Analytics  *handlers.AnalyticsHandler
	AntiCheat  *handlers.AntiCheatHandler
	Feed       *websocket.Hub
}

func New(access *middleware.Access, authLimiter *middleware.RateLimiter, h Handlers, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))
	r.Use(access.Attach)

	staff := access.Require(models.RoleAdmin, models.RoleMentor)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Middleware)
				r.Post("/register", h.Auth.Register)
				r.Post("/login", h.Auth.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(access.Require())
				r.Post("/logout", h.Auth.Logout)
				r.Get("/me", h.Auth.Me)
				r.Patch("/me", h.Auth.UpdateMe)
			})
		})

		// ──── Navigation ────
		r.Get("/navigation", h.Navigation.Decide)

		// ──── Student Routes ────
		r.Group(func(r chi.Router) {
			r.Use(access.Require(models.RoleStudent))
			r.Get("/student/analytics", h.Analytics.MyReport)
			r.Get("/student/leaderboard", h.Analytics.Leaderboard)
			r.Post("/attempts/{id}/violations", h.AntiCheat.Report)
		})

		// ──── Staff Routes ────
		r.Route("/staff", func(r chi.Router) {
			r.Use(staff)
			r.Get("/analytics", h.Analytics.PlatformReport)
			r.Get("/students/{id}/analytics", h.Analytics.StudentReport)
			r.Get("/leaderboard", h.Analytics.Leaderboard)
			r.Get("/anti-cheat", h.AntiCheat.List)
		})

		// ──── WebSocket ────
		r.With(staff).Get("/ws", h.Feed.HandleWebSocket)
	})

	return r
}
