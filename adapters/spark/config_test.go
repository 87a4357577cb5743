package spark

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func validConfig() Config {
	return Config{AppID: "app", APIKey: "key", APISecret: "secret"}
}

func TestNewCredentials_Defaults(t *testing.T) {
	creds, err := NewCredentials(validConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	if creds.Version != "v1.1" {
		t.Errorf("Expected default version v1.1, got %s", creds.Version)
	}
	if creds.Domain != "lite" {
		t.Errorf("Expected domain lite, got %s", creds.Domain)
	}
	if creds.Temperature != 0.5 {
		t.Errorf("Expected default temperature 0.5, got %f", creds.Temperature)
	}
	if creds.MaxTokens != 1024 {
		t.Errorf("Expected default max tokens 1024, got %d", creds.MaxTokens)
	}
	if creds.Host != "spark-api.xf-yun.com" || creds.Scheme != "wss" {
		t.Errorf("Unexpected endpoint %s://%s", creds.Scheme, creds.Host)
	}
	if creds.Path() != "/v1.1/chat" {
		t.Errorf("Expected path /v1.1/chat, got %s", creds.Path())
	}
}

func TestNewCredentials_DomainLookup(t *testing.T) {
	cases := map[string]string{
		"v1.1": "lite",
		"v3.5": "generalv3.5",
		"v4.0": "4.0Ultra",
		"v9.9": "lite",
	}

	for version, domain := range cases {
		config := validConfig()
		config.Version = version

		creds, err := NewCredentials(config, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("NewCredentials(%s) failed: %v", version, err)
		}
		if creds.Domain != domain {
			t.Errorf("Version %s: expected domain %s, got %s", version, domain, creds.Domain)
		}
	}

	if DomainForVersion("v9.9") != DomainForVersion("v1.1") {
		t.Error("Unknown versions should fall back to the v1.1 domain")
	}
}

func TestNewCredentials_ExplicitDomainWins(t *testing.T) {
	config := validConfig()
	config.Version = "v1.1"
	config.Domain = "custom"
	config.Temperature = 1.5
	config.MaxTokens = 256

	creds, err := NewCredentials(config, nil)
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}
	if creds.Domain != "custom" {
		t.Errorf("Expected domain custom, got %s", creds.Domain)
	}
	if creds.Temperature != 1.5 || creds.MaxTokens != 256 {
		t.Errorf("Explicit generation parameters were overridden: %+v", creds)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing app id", func(c *Config) { c.AppID = "" }},
		{"missing key", func(c *Config) { c.APIKey = "" }},
		{"missing secret", func(c *Config) { c.APISecret = "" }},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }},
		{"negative max tokens", func(c *Config) { c.MaxTokens = -1 }},
		{"bad scheme", func(c *Config) { c.Scheme = "http" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := validConfig()
			tc.mutate(&config)
			if err := ValidateConfig(config); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SPARK_APP_ID", "env-app")
	t.Setenv("SPARK_API_KEY", "env-key")
	t.Setenv("SPARK_API_SECRET", "env-secret")
	t.Setenv("SPARK_VERSION", "v3.5")
	t.Setenv("SPARK_TEMPERATURE", "0.8")
	t.Setenv("SPARK_MAX_TOKENS", "not-a-number")

	config := NewConfigFromEnv()

	if config.AppID != "env-app" || config.APIKey != "env-key" || config.APISecret != "env-secret" {
		t.Errorf("Identity not read from env: %+v", config)
	}
	if config.Version != "v3.5" {
		t.Errorf("Expected version v3.5, got %s", config.Version)
	}
	if config.Temperature != 0.8 {
		t.Errorf("Expected temperature 0.8, got %f", config.Temperature)
	}
	if config.MaxTokens != 0 {
		t.Errorf("Invalid max tokens should be ignored, got %d", config.MaxTokens)
	}
}
