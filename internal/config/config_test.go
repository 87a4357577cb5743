package config

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("RELAY_API_KEY", "relay-key")
	t.Setenv("SPARK_APP_ID", "app")
	t.Setenv("SPARK_API_KEY", "key")
	t.Setenv("SPARK_API_SECRET", "secret")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("RELAY_IDLE_TIMEOUT", "")

	config, err := FromEnv(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if config.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", config.Port)
	}
	if config.RateLimitRPS != 5 {
		t.Errorf("Expected default rate limit 5, got %f", config.RateLimitRPS)
	}
	if config.IdleTimeout != 30*time.Minute {
		t.Errorf("Expected default idle timeout 30m, got %s", config.IdleTimeout)
	}
	if config.Spark.AppID != "app" {
		t.Errorf("Expected spark app id from env, got %s", config.Spark.AppID)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RELAY_IDLE_TIMEOUT", "90s")

	config, err := FromEnv(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if config.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", config.Port)
	}
	if config.RateLimitRPS != 2.5 {
		t.Errorf("Expected rate limit 2.5, got %f", config.RateLimitRPS)
	}
	if config.IdleTimeout != 90*time.Second {
		t.Errorf("Expected idle timeout 90s, got %s", config.IdleTimeout)
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "-1")
	t.Setenv("RELAY_IDLE_TIMEOUT", "soon")

	config, err := FromEnv(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if config.RateLimitRPS != 5 || config.IdleTimeout != 30*time.Minute {
		t.Errorf("Invalid values should fall back to defaults: %+v", config)
	}
}

func TestFromEnv_MissingSecrets(t *testing.T) {
	cases := []string{"JWT_SECRET", "RELAY_API_KEY", "SPARK_API_SECRET"}

	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(name, "")

			if _, err := FromEnv(zaptest.NewLogger(t)); err == nil {
				t.Errorf("Expected error when %s is missing", name)
			}
		})
	}
}
