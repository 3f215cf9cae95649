// Package cmd defines the CLI commands for the hreflang-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/app"
	"github.com/JakeFAU/hreflang-crawler/internal/config"
	"github.com/JakeFAU/hreflang-crawler/internal/logging"
)

type ctxKey string

const (
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"
)

// Runner is what the crawl command drives. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context) (app.Summary, error)
	Close()
}

// newRunner is the application factory.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "hreflang-crawler",
		Short: "Map the hreflang alternates advertised by every page of a site.",
		Long: `hreflang-crawler reads a sitemap, fetches every listed page with a bounded,
adaptively paced worker pool and writes a CSV with one row per page and one
column per advertised language.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			if cfgFile != "" {
				logger.Debug("using config file", zap.String("path", cfgFile))
			}
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if logger, ok := cmd.Context().Value(loggerKey).(*zap.Logger); ok {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().Bool("dev", true, "development logging")
	mustBind(v, "logging.development", cmd.PersistentFlags().Lookup("dev"))

	cmd.AddCommand(newCrawlCmd(v))
	return cmd
}

func fromContext(ctx context.Context) (config.Config, *zap.Logger, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, nil, errors.New("configuration not loaded")
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || logger == nil {
		return config.Config{}, nil, errors.New("logger not initialized")
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd(config.New()).Execute(); err != nil {
		logger, lerr := logging.New(false, "")
		if lerr != nil {
			panic(fmt.Sprintf("command failed: %v", err))
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
