package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/internal/app"
	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/internal/logging"
)

var (
	configPath string
	envFiles   []string
	verbose    bool
	logFormat  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "formflow",
	Short: "Template-driven request forms over a hosted table store",
	Long: `formflow loads form templates, resolves option lists and cascading
fields, and submits normalised requests to the configured backend.

Settings are read from .env, an optional YAML file (--config) and
FORMFLOW_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, logFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to read (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log encoding: console or json")

	rootCmd.AddCommand(serveCmd, fillCmd, csvCmd, optionsCmd, templateCmd)
}

// loadConfig reads settings; the logger is rebuilt when the file or
// environment asks for a different level or format.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return config.Config{}, err
	}
	if !verbose && (cfg.Log.Level != "info" || cfg.Log.Format != logFormat) {
		if rebuilt, err := logging.New(cfg.Log.Level, cfg.Log.Format); err == nil {
			logger = rebuilt
		}
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
