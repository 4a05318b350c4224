package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"testquest-backend/internal/analytics"
	"testquest-backend/internal/config"
	"testquest-backend/internal/database"
	"testquest-backend/internal/guard"
	"testquest-backend/internal/handlers"
	"testquest-backend/internal/logger"
	"testquest-backend/internal/middleware"
	"testquest-backend/internal/models"
	"testquest-backend/internal/repository"
	"testquest-backend/internal/router"
	"testquest-backend/internal/services"
	"testquest-backend/internal/session"
	"testquest-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting TestQuest backend", "env", cfg.Env)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	attemptRepo := repository.NewAttemptRepo(pool)
	antiCheatRepo := repository.NewAntiCheatRepo(pool)

	// ──── Initialize Services ────
	identities := services.NewIdentityService(userRepo, log)
	sessions, err := session.NewManager(identities, session.RedisSlots(redisClients.Sessions, cfg.SessionTTL), session.Options{
		SelfServiceRoles: selfServiceRoles(cfg.SelfServiceRoles),
		Logger:           log,
	})
	if err != nil {
		log.Fatal("session manager initialization failed", "error", err)
	}

	aggregator := analytics.NewAggregator(attemptRepo, analytics.Options{
		LeaderboardLimit:     cfg.LeaderboardLimit,
		TestPerformanceLimit: cfg.TestPerformanceLimit,
		Location:             cfg.Location(),
	}, log)
	antiCheat := services.NewAntiCheatService(antiCheatRepo, attemptRepo, redisClients.Sessions, log)

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.AccessTokenTTL)
	access := middleware.NewAccess(jwtAuth, sessions, log)

	// ──── Step 5: Start WebSocket Hub ────
	feed := websocket.NewHub(redisClients.PubSub, services.AntiCheatChannel, cfg.FrontendURL, log)
	defer feed.Close()

	// ──── Step 6: Start HTTP Server ────
	authLimiter := middleware.NewRateLimiter(cfg.AuthRatePerMin, time.Minute)
	defer authLimiter.Stop()

	r := router.New(access, authLimiter, router.Handlers{
		Auth:       handlers.NewAuthHandler(sessions, jwtAuth, log),
		Navigation: handlers.NewNavigationHandler(guard.DefaultTable),
		Analytics:  handlers.NewAnalyticsHandler(aggregator),
		AntiCheat:  handlers.NewAntiCheatHandler(antiCheat),
		Feed:       feed,
	}, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("TestQuest backend ready",
		"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", "error", err)
	}
}

func selfServiceRoles(raw []string) []models.Role {
	roles := make([]models.Role, 0, len(raw))
	for _, r := range raw {
		roles = append(roles, models.Role(r))
	}
	return roles
}
