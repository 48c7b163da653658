package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "webagent",
		Short:         "Adaptive LLM-driven web automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().IntVar(&app.Config.Lookahead, "lookahead", app.Config.Lookahead, "steps to speculatively pre-resolve")
	cmd.PersistentFlags().IntVar(&app.Config.MaxRecoveryAttempts, "max-recovery-attempts", app.Config.MaxRecoveryAttempts, "attempts per (step, error kind) before giving up")
	cmd.PersistentFlags().StringVar(&app.Config.RedisURL, "redis-url", app.Config.RedisURL, "shared Redis store for profiles/patterns (defaults to local JSON files)")
	cmd.PersistentFlags().StringVar(&app.Config.ProfileCachePath, "profile-cache", app.Config.ProfileCachePath, "site_profiles.json path")
	cmd.PersistentFlags().StringVar(&app.Config.PatternCachePath, "pattern-cache", app.Config.PatternCachePath, "selector_patterns.json path")

	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newProfileCmd(app))
	cmd.AddCommand(newPatternCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
