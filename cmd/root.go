// Package cmd defines the radar command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/config"
	"github.com/JakeFAU/mention-radar/internal/logging"
	"github.com/JakeFAU/mention-radar/internal/server"
)

// skipAppAnnotation marks commands that only need configuration.
const skipAppAnnotation = "radar/skip-app"

type envKeyType struct{}

// env is what PersistentPreRunE hands to subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	app    *server.App
}

// newApp is the application factory; tests swap it to share one in-memory App.
var newApp = server.Build

type rootOptions struct {
	configPath string
	strict     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "radar",
		Short:         "Find buying-intent mentions of your businesses across social platforms.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			e := &env{cfg: cfg, logger: logger}
			if cmd.Annotations[skipAppAnnotation] == "" {
				e.app, err = newApp(cmd.Context(), cfg, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKeyType{}, e))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			e, ok := cmd.Context().Value(envKeyType{}).(*env)
			if !ok {
				return
			}
			if e.app != nil {
				e.app.Close()
			}
			_ = e.logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().BoolVar(&opts.strict, "strict", false, "exit non-zero when a job or health check fails")

	cmd.AddCommand(
		newScrapeCmd(opts),
		newClassifyCmd(opts),
		newHealthCmd(opts),
		newSuggestCmd(),
		newBusinessCmd(),
		newKeywordCmd(),
		newOpportunitiesCmd(),
		newMarkCmd(),
		newMigrateCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "radar:", err)
		os.Exit(1)
	}
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKeyType{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("application services not initialized")
	}
	return e, nil
}

func resolveApp(ctx context.Context) (*server.App, error) {
	e, err := resolveEnv(ctx)
	if err != nil {
		return nil, err
	}
	if e.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return e.app, nil
}
