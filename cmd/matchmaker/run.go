package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/adapters/store"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runOutput mirrors the cron endpoint's reply
type runOutput struct {
	Success        bool     `json:"success"`
	RunID          string   `json:"runId,omitempty"`
	MatchesCreated int      `json:"matchesCreated"`
	EmailsSent     int      `json:"emailsSent"`
	Errors         []string `json:"errors,omitempty"`
	Message        string   `json:"message,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single matching cycle and print the result as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := di.BuildContainer(opts)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(func(logger *zap.Logger, service *core.MatchingService, st store.Store, intros core.IntroWriter) error {
			defer logger.Sync()
			defer closeResources(logger, st, intros)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, cmd, service)
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(ctx context.Context, cmd *cobra.Command, service *core.MatchingService) error {
	result, err := service.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(runOutput{
		Success:        true,
		RunID:          result.RunID,
		MatchesCreated: result.PairsCreated,
		EmailsSent:     result.NotificationsSent,
		Errors:         result.Errors,
		Message:        result.Message,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
