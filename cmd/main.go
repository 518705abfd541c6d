package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/shelfrank/internal/adapters/http/api"
	"github.com/okian/shelfrank/internal/adapters/repository"
	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/config"
	"github.com/okian/shelfrank/pkg/logger"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// runtimeDeps is built once per command from configuration.
type runtimeDeps struct {
	cfg   *config.Config
	log   logger.Logger
	store repository.Store
	svc   *service.Service
}

func (d *runtimeDeps) Close() {
	if d.store != nil {
		_ = d.store.Close()
	}
	_ = logger.Sync()
}

// setup loads configuration (defaults -> optional file -> env), initializes
// logging to stderr and opens the store.
func setup(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Named("shelfrank")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.NewSQLStore(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	svc, err := service.New(store,
		service.WithConfig(cfg),
		service.WithLogger(logger.Named("service")),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return &runtimeDeps{cfg: cfg, log: log, store: store, svc: svc}, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "shelfrank",
		Short:         "Usage scoring engine for catalog entities and acquisition candidates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(
		newIngestCmd(),
		newRecomputeCmd(),
		newExportTreeCmd(),
		newTopicsCmd(),
		newServeCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := setup(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()
			return serve(ctx, deps)
		},
	}
}

func serve(ctx context.Context, deps *runtimeDeps) error {
	mux := http.NewServeMux()
	api.NewServer(deps.svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              deps.cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.log.Info(ctx, "starting HTTP server", logger.String("addr", deps.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	deps.log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		deps.log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	deps.log.Info(ctx, "server stopped")
	return nil
}
