package main

import (
	"github.com/mikey/maccafe-matcher/internal/di"
	"github.com/spf13/cobra"
)

const app = "matchmaker"

var (
	// Used for flags.
	opts di.Options

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "matchmaker pairs MacCafe profiles and emails each side their match",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default searches /etc/maccafe-matcher, ~/.maccafe-matcher, ./configs and .)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&opts.JSONLog, "json", "j", false, "json format for logging")
}
