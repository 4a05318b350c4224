package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Auth
	JWTSecret        string
	SessionTTL       time.Duration
	AccessTokenTTL   time.Duration
	SelfServiceRoles []string
	AuthRatePerMin   int

	// Analytics
	LeaderboardLimit     int
	TestPerformanceLimit int
	AnalyticsTimezone    string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		SessionTTL:           time.Duration(getEnvAsIntOrDefault("SESSION_TTL_HOURS", 168)) * time.Hour,
		AccessTokenTTL:       time.Duration(getEnvAsIntOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		SelfServiceRoles:     parseSelfServiceRoles(getEnvOrDefault("SELF_SERVICE_ROLES", "student")),
		AuthRatePerMin:       getEnvAsIntOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 10),
		LeaderboardLimit:     getEnvAsIntOrDefault("LEADERBOARD_LIMIT", 5),
		TestPerformanceLimit: getEnvAsIntOrDefault("TEST_PERFORMANCE_LIMIT", 10),
		AnalyticsTimezone:    getEnvOrDefault("ANALYTICS_TIMEZONE", "UTC"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// Location resolves AnalyticsTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AnalyticsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseSelfServiceRoles never lets "admin" through; admins are provisioned out-of-band.
func parseSelfServiceRoles(raw string) []string {
	seen := make(map[string]bool)
	roles := make([]string, 0, 2)
	for _, part := range strings.Split(raw, ",") {
		role := strings.ToLower(strings.TrimSpace(part))
		if role == "" || role == "admin" || seen[role] {
			continue
		}
		if role != "student" && role != "mentor" {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		roles = append(roles, "student")
	}
	return roles
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
