package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/adapters/spark"
)

// flagKeys maps config keys to their persistent flag names
var flagKeys = map[string]string{
	"app_id":        "app-id",
	"api_key":       "api-key",
	"api_secret":    "api-secret",
	"version":       "version",
	"domain":        "domain",
	"temperature":   "temperature",
	"max_tokens":    "max-tokens",
	"host":          "host",
	"system_prompt": "system-prompt",
}

// app is the state shared by every subcommand
type app struct {
	cfgFile string
	verbose bool

	creds  spark.Credentials
	logger *zap.Logger
}

// NewRootCommand builds the sparkctl command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sparkctl",
		Short: "Chat with Spark models from the terminal",
		Long: `sparkctl streams replies from the Spark chat API. Credentials are read
from $HOME/.sparkctl/config.yaml, SPARK_* environment variables or flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Root().PersistentFlags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.sparkctl/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.String("app-id", "", "Spark application id")
	flags.String("api-key", "", "Spark API key")
	flags.String("api-secret", "", "Spark API secret")
	flags.String("version", "", "protocol version, e.g. v3.5")
	flags.String("domain", "", "model domain (default: derived from version)")
	flags.Float64("temperature", 0, "sampling temperature in [0, 2]")
	flags.Int("max-tokens", 0, "maximum tokens to generate")
	flags.String("host", "", "endpoint host")
	flags.String("system-prompt", "", "system prompt for new conversations")

	rootCmd.AddCommand(newAskCommand(a), newChatCommand(a))
	return rootCmd
}

// load resolves credentials from config file, environment and flags
func (a *app) load(flags *pflag.FlagSet) error {
	v := newViper(a.cfgFile)
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	logger, err := newLogger(a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger

	config, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a.creds, err = spark.NewCredentials(config, logger)
	if err != nil {
		return err
	}
	return nil
}

// Execute runs the root command; an interrupt cancels the running reply
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
