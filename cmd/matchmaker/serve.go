package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/maccafe-matcher/internal/adapters/store"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/di"
	"github.com/mikey/maccafe-matcher/internal/ports"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cron trigger endpoint until interrupted",
	RunE: func(_ *cobra.Command, _ []string) error {
		container, err := di.BuildContainer(opts)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(serve)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serve gets all dependencies injected and blocks until SIGINT or SIGTERM
func serve(logger *zap.Logger, trigger ports.Trigger, st store.Store, intros core.IntroWriter) error {
	defer logger.Sync()

	if err := trigger.Start(); err != nil {
		return fmt.Errorf("failed to start trigger: %w", err)
	}
	logger.Info("Matchmaker started", zap.String("version", version))

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := trigger.Stop(); err != nil {
		logger.Error("Failed to stop trigger", zap.Error(err))
	}
	closeResources(logger, st, intros)

	logger.Info("Shutdown complete")
	return nil
}

// closeResources releases the store and any intro client holding a connection
func closeResources(logger *zap.Logger, st store.Store, intros core.IntroWriter) {
	if closer, ok := intros.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close intro writer", zap.Error(err))
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}
}
