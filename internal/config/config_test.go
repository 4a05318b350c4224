package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TQ_TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TQ_TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TQ_TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TQ_TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TQ_TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("TQ_NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("TQ_NONEXISTENT_REQUIRED_VAR")
}

func TestParseSelfServiceRoles(t *testing.T) {
	tests := []struct {
		raw      string
		expected []string
	}{
		{"student", []string{"student"}},
		{"student,mentor", []string{"student", "mentor"}},
		{" Mentor , student ,mentor", []string{"mentor", "student"}},
		{"admin", []string{"student"}},
		{"admin,mentor", []string{"mentor"}},
		{"", []string{"student"}},
		{"superuser", []string{"student"}},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got := parseSelfServiceRoles(tc.raw)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/testquest")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
	for _, key := range []string{"PORT", "SESSION_TTL_HOURS", "LEADERBOARD_LIMIT", "SELF_SERVICE_ROLES", "ANALYTICS_TIMEZONE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Errorf("Expected 168h session TTL, got %s", cfg.SessionTTL)
	}
	if cfg.LeaderboardLimit != 5 {
		t.Errorf("Expected leaderboard limit 5, got %d", cfg.LeaderboardLimit)
	}
	if !reflect.DeepEqual(cfg.SelfServiceRoles, []string{"student"}) {
		t.Errorf("Expected only student self-service, got %v", cfg.SelfServiceRoles)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Expected UTC location")
	}
}
