package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/adapters/spark"
)

const (
	defaultPort         = "8080"
	defaultRateLimitRPS = 5
	defaultIdleTimeout  = 30 * time.Minute
)

// Config is the relay server configuration
type Config struct {
	Port         string
	JWTSecret    string
	RelayAPIKey  string
	RateLimitRPS float64
	IdleTimeout  time.Duration
	Spark        spark.Config
}

// Load reads an optional .env file and then the process environment
func Load(logger *zap.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded, using process environment", zap.Error(err))
	}
	return FromEnv(logger)
}

// FromEnv builds the configuration from environment variables
func FromEnv(logger *zap.Logger) (Config, error) {
	config := Config{
		Port:        os.Getenv("PORT"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RelayAPIKey: os.Getenv("RELAY_API_KEY"),
		Spark:       spark.NewConfigFromEnv(),
	}

	if config.Port == "" {
		config.Port = defaultPort
		logger.Info("Using default port", zap.String("port", config.Port))
	}

	config.RateLimitRPS = defaultRateLimitRPS
	if rpsStr := os.Getenv("RATE_LIMIT_RPS"); rpsStr != "" {
		if rps, err := strconv.ParseFloat(rpsStr, 64); err == nil && rps > 0 {
			config.RateLimitRPS = rps
		} else {
			logger.Warn("Ignoring invalid RATE_LIMIT_RPS", zap.String("value", rpsStr))
		}
	}

	config.IdleTimeout = defaultIdleTimeout
	if timeoutStr := os.Getenv("RELAY_IDLE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.IdleTimeout = timeout
		} else {
			logger.Warn("Ignoring invalid RELAY_IDLE_TIMEOUT", zap.String("value", timeoutStr))
		}
	}

	if err := Validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks the settings the server cannot start without
func Validate(config Config) error {
	if config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if config.RelayAPIKey == "" {
		return fmt.Errorf("RELAY_API_KEY is required")
	}
	if err := spark.ValidateConfig(config.Spark); err != nil {
		return fmt.Errorf("invalid spark config: %w", err)
	}
	return nil
}
