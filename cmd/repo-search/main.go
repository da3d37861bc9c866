// Command repo-search serves and browses GitHub repository search results
// from a local store that is backfilled from the GitHub API on demand.
package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/repo-backfill/internal/config"
	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	pretty     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "repo-search",
		Short: "Search GitHub repositories through a lazily backfilled local store",
		Long: `repo-search answers repository searches from a local store and fetches
further result pages from the GitHub search API only when a reader reaches
the end of what is stored.

Configuration is read from --config (YAML) and environment variables
(GITHUB_TOKEN, GITHUB_API_URL, REDIS_URL, DATABASE_URL, PORT, LOG_LEVEL,
USER_AGENT).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "Human-readable log output")

	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newSearchCommand(flags))

	return rootCmd
}

// loadConfig loads configuration, applies flag overrides and sets up logging.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.pretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.LoggingConfig())
	return cfg, nil
}
