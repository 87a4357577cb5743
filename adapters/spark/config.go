package spark

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
)

const (
	defaultHost        = "spark-api.xf-yun.com"
	defaultScheme      = "wss"
	defaultVersion     = "v1.1"
	defaultDomain      = "lite"
	defaultTemperature = 0.5
	defaultMaxTokens   = 1024

	maxTemperature = 2.0
)

// versionDomains maps a protocol version to the model domain it serves.
// Versions missing from the table fall back to defaultDomain.
var versionDomains = map[string]string{
	"v1.1": "lite",
	"v2.1": "generalv2",
	"v3.1": "generalv3",
	"v3.5": "generalv3.5",
	"v4.0": "4.0Ultra",
}

// DomainForVersion resolves the model domain of a protocol version
func DomainForVersion(version string) string {
	if domain, ok := versionDomains[version]; ok {
		return domain
	}
	return defaultDomain
}

// Config holds user supplied settings for the Spark client.
// Required fields:
// - AppID, APIKey, APISecret: application identity and signing material
// Optional fields with defaults:
// - Version: protocol version (default: "v1.1")
// - Domain: model domain (default: looked up from Version, "lite" if unknown)
// - Temperature: sampling temperature in [0, 2] (default: 0.5)
// - MaxTokens: generation limit (default: 1024)
// - Host: endpoint host (default: "spark-api.xf-yun.com")
// - Scheme: "wss" or "ws" (default: "wss")
// - SystemPrompt: placed as the first turn of a fresh conversation
type Config struct {
	AppID        string
	APIKey       string
	APISecret    string
	Version      string
	Domain       string
	Temperature  float64
	MaxTokens    int
	Host         string
	Scheme       string
	SystemPrompt string
}

// Credentials is the resolved, immutable configuration of a client.
// It is passed by value so holders cannot alter each other's copy.
type Credentials struct {
	AppID        string
	APIKey       string
	APISecret    string
	Version      string
	Domain       string
	Temperature  float64
	MaxTokens    int
	Host         string
	Scheme       string
	SystemPrompt string
}

// Path returns the chat endpoint path for the credentials' version
func (c Credentials) Path() string {
	return "/" + c.Version + "/chat"
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.AppID == "" {
		return fmt.Errorf("spark app id is required")
	}
	if config.APIKey == "" {
		return fmt.Errorf("spark API key is required")
	}
	if config.APISecret == "" {
		return fmt.Errorf("spark API secret is required")
	}

	if config.Temperature < 0 || config.Temperature > maxTemperature {
		return fmt.Errorf("temperature must be between 0 and %.0f, got %f", maxTemperature, config.Temperature)
	}

	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}

	switch config.Scheme {
	case "", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be ws or wss, got %q", config.Scheme)
	}

	return nil
}

// NewCredentials validates the config and fills in defaults
func NewCredentials(config Config, logger *zap.Logger) (Credentials, error) {
	if err := ValidateConfig(config); err != nil {
		return Credentials{}, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	version := config.Version
	if version == "" {
		version = defaultVersion
		logger.Info("Using default version", zap.String("version", version))
	}

	domain := config.Domain
	if domain == "" {
		domain = DomainForVersion(version)
		logger.Info("Using domain for version",
			zap.String("version", version),
			zap.String("domain", domain))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
		logger.Info("Using default temperature", zap.Float64("temperature", temperature))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
		logger.Info("Using default max tokens", zap.Int("maxTokens", maxTokens))
	}

	host := config.Host
	if host == "" {
		host = defaultHost
	}

	scheme := config.Scheme
	if scheme == "" {
		scheme = defaultScheme
	}

	return Credentials{
		AppID:        config.AppID,
		APIKey:       config.APIKey,
		APISecret:    config.APISecret,
		Version:      version,
		Domain:       domain,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		Host:         host,
		Scheme:       scheme,
		SystemPrompt: config.SystemPrompt,
	}, nil
}

// NewConfigFromEnv creates a new Config from SPARK_* environment variables
func NewConfigFromEnv() Config {
	config := Config{
		AppID:        os.Getenv("SPARK_APP_ID"),
		APIKey:       os.Getenv("SPARK_API_KEY"),
		APISecret:    os.Getenv("SPARK_API_SECRET"),
		Version:      os.Getenv("SPARK_VERSION"),
		Domain:       os.Getenv("SPARK_DOMAIN"),
		Host:         os.Getenv("SPARK_HOST"),
		Scheme:       os.Getenv("SPARK_SCHEME"),
		SystemPrompt: os.Getenv("SPARK_SYSTEM_PROMPT"),
	}

	if temperatureStr := os.Getenv("SPARK_TEMPERATURE"); temperatureStr != "" {
		if temperature, err := strconv.ParseFloat(temperatureStr, 64); err == nil && temperature >= 0 && temperature <= maxTemperature {
			config.Temperature = temperature
		}
	}

	if maxTokensStr := os.Getenv("SPARK_MAX_TOKENS"); maxTokensStr != "" {
		if maxTokens, err := strconv.Atoi(maxTokensStr); err == nil && maxTokens > 0 {
			config.MaxTokens = maxTokens
		}
	}

	return config
}
