package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/builder"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/engine/yaml"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflow HTTP API",
	Long: `Serve loads every workflow in the workflows directory, initializes the
configured plugins and exposes the management API and webhook triggers.

Example:
  agentflow serve
  agentflow serve --config ./deploy/agentflow.yaml --workflows ./flows
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, flush, err := newLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer flush()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := builder.Build(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer shutdownContainer(app, l)

	n, err := app.LoadWorkflows(ctx, yaml.NewFlowLoader(), cfg.Engine.WorkflowsDir)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	router, err := runtime.NewRouter(ctx, app, l)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.InfoContext(ctx, fmt.Sprintf("Listening on %s", cfg.Server.Addr), "workflows", n)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("Shutting down", "running", len(app.Executor.Running()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Runs outlive their requests; they must record a terminal state
	// before the stores close.
	if err := app.Executor.Shutdown(shutdownCtx); err != nil {
		l.Error("Executions did not stop in time", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func shutdownContainer(app *runtime.App, l *slog.Logger) {
	if err := app.Container.Shutdown(context.Background()); err != nil {
		l.Error("Plugin shutdown failed", "error", err)
	}
}
