package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/app"
	"github.com/roach88/recon/internal/config"
)

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.EventLog != "" {
		cfg.EventLog.Path = opts.EventLog
	}
	if opts.ReadModel != "" {
		cfg.ReadModel.Path = opts.ReadModel
	}
	if opts.Concurrency > 0 {
		cfg.Reconcile.Concurrency = opts.Concurrency
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openApp loads configuration and opens every store. Logs go to the
// command's stderr so that stdout stays parseable.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open stores", err)
	}
	logger.Debug("stores opened", slog.String("event_log", cfg.EventLog.Path), slog.String("read_model", cfg.ReadModel.Driver))
	return a, nil
}

// formatter returns the output formatter for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
