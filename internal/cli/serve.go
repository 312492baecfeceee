package cli

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/app"
	"github.com/roach88/recon/internal/httpapi"
	"github.com/roach88/recon/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation API over HTTP",
		Long: `Serve check and fix operations over HTTP until interrupted.

Routes:
  GET  /healthz
  GET  /v1/modules
  GET  /v1/modules/{module}/fields
  POST /v1/modules/{module}/check     {"id": "...", "fields": [...]}
  POST /v1/modules/{module}/fix       {"id": "...", "fields": [...]}
  POST /v1/modules/{module}/check/batch
  POST /v1/modules/{module}/fix/batch
  POST /v1/modules/{module}/check/all
  POST /v1/modules/{module}/fix/all
  POST /v1/modules/{module}/check/range
  POST /v1/modules/{module}/fix/range

Examples:
  recon serve --config recon.yaml
  recon serve --addr 127.0.0.1:9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open stores", err)
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	handler := httpapi.NewRouter(httpapi.NewHandler(a.Registry, logger))
	if err := httpapi.Serve(ctx, ln, handler, logger); err != nil {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
