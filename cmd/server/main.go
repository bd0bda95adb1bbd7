package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/api"
	"github.com/514-labs/cla-bot/internal/cla"
	"github.com/514-labs/cla-bot/internal/config"
	"github.com/514-labs/cla-bot/internal/convergence"
	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/internal/webhook"
)

func main() {
	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	path, err := config.DeterminePath(configPath)
	if err != nil {
		logger.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal(err)
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalw("database connect failed", "error", err)
	}
	defer pool.Close()
	st := store.New(pool)

	factory, err := githubapi.NewAppFactory(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath)
	if err != nil {
		logger.Fatalw("github app setup failed", "error", err)
	}

	resolver := cla.NewResolver(st, logger)
	signing := cla.NewSigningService(st, logger)
	recon := webhook.NewReconciler(resolver, cfg.GitHub.CheckName, logger)
	scheduler := convergence.NewScheduler(st, factory, recon, cfg.Convergence.MaxConcurrent, logger)
	webhookHandler := webhook.NewHandler(st, factory, recon, logger)

	server := api.NewServer(st, signing, resolver, scheduler, webhookHandler, factory, cfg.GitHub.WebhookSecret, logger)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Routes(),
	}

	shutdown := make(chan error)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Infow("shutting down", "signal", sig.String())

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		// Let in-flight convergence runs finish before the pool closes.
		scheduler.Wait()
		shutdown <- err
	}()

	logger.Infow("server started", "addr", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("server failed", "error", err)
	}
	if err := <-shutdown; err != nil {
		logger.Fatalw("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
