package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newProfileCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect learned site profiles",
	}
	cmd.AddCommand(newProfileShowCmd(app))
	return cmd
}

func newProfileShowCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List every detected/learned site profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := app.NewAgent()
			if err != nil {
				return fmt.Errorf("webagent profile show: %w", err)
			}
			defer agent.Close()

			store := agent.Profiles()
			domains := make([]string, 0, len(store.Profiles))
			for d := range store.Profiles {
				domains = append(domains, d)
			}
			sort.Strings(domains)

			out := cmd.OutOrStdout()
			if len(domains) == 0 {
				fmt.Fprintln(out, "no site profiles learned yet")
				return nil
			}
			for _, d := range domains {
				p := store.Profiles[d]
				fmt.Fprintf(out, "%s\n", d)
				fmt.Fprintf(out, "  framework:  %s (confidence %.2f)\n", p.Framework, p.DetectionConfidence)
				fmt.Fprintf(out, "  wait:       %s\n", p.WaitPolicy)
				fmt.Fprintf(out, "  priorities: %v\n", p.SelectorPriorities)
			}
			return nil
		},
	}
}
