// Package main implements the hxreload CLI: a demo fragment server, and
// commands that load a page and drive reloads, notifications and link
// checks against it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/hxreload"
	"github.com/pthm/hxreload/internal/config"
	"github.com/pthm/hxreload/internal/logging"
)

var (
	// configPath is the YAML configuration file.
	configPath string
	// logLevel overrides log.level when set.
	logLevel string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hxreload",
	Short: "Partial page reloads with rehydration",
	Long: `hxreload loads pages, replaces parts of them with server fragments and
rehydrates the new content. It also serves a demo fragment server with a
notification hub.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "hxreload.yml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.AddCommand(serveCmd, reloadCmd, listenCmd, linkcheckCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hxreload version %s\n", version)
	},
}

// env is what every command needs: validated config and a logger.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// reloader builds the Reloader from config.
func (e *env) reloader() (*hxreload.Reloader, error) {
	opts := []hxreload.Option{
		hxreload.WithFetcher(e.fetcher()),
		hxreload.WithSequencePolicy(e.cfg.Policy()),
		hxreload.WithLogger(e.logger),
	}
	if e.cfg.StateKey != "" {
		enc, err := hxreload.NewEncoder([]byte(e.cfg.StateKey))
		if err != nil {
			return nil, err
		}
		opts = append(opts, hxreload.WithStateEncoder(enc))
		if e.cfg.StateEncrypt {
			opts = append(opts, hxreload.WithEncryptedState())
		}
	}
	return hxreload.New(opts...), nil
}

func (e *env) fetcher() *hxreload.Fetcher {
	return hxreload.NewFetcher(e.cfg.FetcherConfig(), hxreload.WithFetcherLogger(e.logger))
}
