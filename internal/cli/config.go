package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/satriahrh/sparkchat/adapters/spark"
)

// configKeys are read from the config file, SPARK_* variables and flags
var configKeys = []string{
	"app_id",
	"api_key",
	"api_secret",
	"version",
	"domain",
	"temperature",
	"max_tokens",
	"host",
	"scheme",
	"system_prompt",
}

// newViper creates a viper instance reading $HOME/.sparkctl/config.yaml and
// SPARK_* environment variables. An explicit cfgFile replaces the search.
func newViper(cfgFile string) *viper.Viper {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sparkctl")
	}

	// With SetEnvPrefix("SPARK") these become SPARK_APP_ID, SPARK_API_KEY, etc.
	v.SetEnvPrefix("SPARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		v.BindEnv(key)
	}

	return v
}

// loadConfig reads the config file, if any, and builds the client config
func loadConfig(v *viper.Viper) (spark.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return spark.Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := spark.Config{
		AppID:        v.GetString("app_id"),
		APIKey:       v.GetString("api_key"),
		APISecret:    v.GetString("api_secret"),
		Version:      v.GetString("version"),
		Domain:       v.GetString("domain"),
		Temperature:  v.GetFloat64("temperature"),
		MaxTokens:    v.GetInt("max_tokens"),
		Host:         v.GetString("host"),
		Scheme:       v.GetString("scheme"),
		SystemPrompt: v.GetString("system_prompt"),
	}

	if err := spark.ValidateConfig(config); err != nil {
		return spark.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
