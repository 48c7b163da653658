package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newPatternCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Inspect learned selector patterns",
	}
	cmd.AddCommand(newPatternShowCmd(app))
	return cmd
}

func newPatternShowCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List learned selector patterns and exact-match cache per domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := app.NewAgent()
			if err != nil {
				return fmt.Errorf("webagent pattern show: %w", err)
			}
			defer agent.Close()

			store := agent.Patterns()
			domains := make([]string, 0, len(store.Domains))
			for d := range store.Domains {
				domains = append(domains, d)
			}
			sort.Strings(domains)

			out := cmd.OutOrStdout()
			if len(domains) == 0 {
				fmt.Fprintln(out, "no selector patterns learned yet")
				return nil
			}
			for _, d := range domains {
				dp := store.Domains[d]
				fmt.Fprintf(out, "%s (resolutions: %d)\n", d, dp.TotalResolutions)
				for target, selector := range dp.ExactMatches {
					fmt.Fprintf(out, "  exact  %-30q -> %s\n", target, selector)
				}
				for _, p := range dp.Patterns {
					fmt.Fprintf(out, "  learned %v -> %s (confidence %.2f, %d ok / %d fail)\n",
						p.Keywords, p.Strategy, p.Confidence(), p.SuccessCount, p.FailureCount)
				}
			}
			return nil
		},
	}
}
