package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/api"
	"github.com/Harshitk-cp/atomspace/internal/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Load the last snapshot, serve the HTTP API and save a snapshot on shutdown.

The attention decay worker runs when ATTENTION_DECAY_MODE=timer.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()
	logger := rt.logger

	if err := rt.load(ctx); err != nil {
		return err
	}

	opts := api.Options{
		Store:          rt.space,
		Algebra:        rt.algebra,
		Rules:          rt.ruleSet,
		Engine:         config.Engine(rt.rules),
		Snapshotter:    rt.snapshotter,
		TouchIncrement: config.AttentionTouchIncrement(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}
	if config.AttentionDecayMode() == config.DecayTimer {
		opts.DecayInterval = config.AttentionDecayInterval()
	}
	app := api.NewApp(opts, logger)
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		app.Stop()
		return errors.Wrap(err, "server failed")
	}
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := rt.save(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
