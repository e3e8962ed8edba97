package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/api"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/config"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/ledger"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/metrics"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/queries"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/repair"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the QueryNest HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// services bundles what every store-backed command needs.
type services struct {
	store   *storage.Store
	queries *queries.Service
	ledger  *ledger.Ledger
}

func openServices(cfg config.Config, m *metrics.Metrics) (*services, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &services{
		store:   store,
		queries: queries.NewService(store.Queries()),
		ledger:  ledger.New(store.Queries(), store.Recommendations(), store, m),
	}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireSecret(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)
	slog.Info("starting querynest", "version", version, "env", cfg.Server.Env)

	policy, err := identity.PolicyForEnv(cfg.Server.Env)
	if err != nil {
		return err
	}
	verifier, err := identity.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	m := metrics.New()
	svc, err := openServices(cfg, m)
	if err != nil {
		return err
	}
	defer svc.Close()

	handler := api.NewAppHandler(api.AppDeps{
		Queries:        svc.queries,
		Ledger:         svc.ledger,
		Verifier:       verifier,
		Cookies:        policy,
		Metrics:        m,
		AllowedOrigins: cfg.Server.Origins(),
		Logger:         slog.Default(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := repair.NewWorker(svc.store, svc.ledger, m, cfg.Repair.PollInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("querynest listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
