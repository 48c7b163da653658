package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmwebagent/agent/internal/driver/fake"
	"github.com/llmwebagent/agent/internal/model"
)

type runOptions struct {
	goal     string
	url      string
	title    string
	seedPath string
	timeout  time.Duration
}

func newRunCmd(app *AppContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a goal against a page (a seeded fake page by default; wire a real driver.Page for production use)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.goal, "goal", "", "natural-language goal, e.g. \"log in as standard_user / secret_sauce\"")
	cmd.Flags().StringVar(&opts.url, "url", "https://example.com/login", "starting URL of the seeded demo page")
	cmd.Flags().StringVar(&opts.title, "title", "Demo", "title of the seeded demo page")
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "path to a JSON file of fake.Node definitions (defaults to a built-in login form)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "overall run deadline")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}

func runRun(cmd *cobra.Command, app *AppContext, opts *runOptions) error {
	agent, err := app.NewAgent()
	if err != nil {
		return fmt.Errorf("webagent run: %w", err)
	}
	defer agent.Close()

	page, err := buildDemoPage(opts)
	if err != nil {
		return fmt.Errorf("webagent run: building demo page: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	result, err := agent.Run(ctx, page, opts.goal)
	if err != nil {
		return fmt.Errorf("webagent run: %w", err)
	}

	return renderRunResult(cmd, result)
}

// buildDemoPage seeds a fake.Page either from a JSON node list at
// opts.seedPath or, absent one, a small built-in login form — enough
// for `run --goal "log in"` to exercise the full pipeline with no
// external dependencies (there is no real browser driver in this
// module; spec.md's Non-goals exclude bit-exact browser emulation).
func buildDemoPage(opts *runOptions) (*fake.Page, error) {
	page := fake.NewPage(opts.url, opts.title)

	if opts.seedPath == "" {
		page.AddNode(&fake.Node{TestID: "username", Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "username"}})
		page.AddNode(&fake.Node{TestID: "password", Tag: "input", Visible: true, Enabled: true, Attrs: map[string]string{"id": "password"}})
		page.AddNode(&fake.Node{
			TestID: "login-btn", Tag: "button", Visible: true, Enabled: true,
			Attrs: map[string]string{"id": "login-btn"}, ClickNavigatesTo: opts.url + "/inventory",
		})
		return page, nil
	}

	data, err := os.ReadFile(opts.seedPath)
	if err != nil {
		return nil, err
	}
	var nodes []*fake.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", opts.seedPath, err)
	}
	for _, n := range nodes {
		page.AddNode(n)
	}
	return page, nil
}

func renderRunResult(cmd *cobra.Command, result *model.AdaptiveResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status:    %s\n", result.Status)
	fmt.Fprintf(out, "framework: %s\n", result.Framework)
	fmt.Fprintf(out, "duration:  %s\n", result.Duration)
	fmt.Fprintf(out, "steps:\n")
	for _, sr := range result.StepResults {
		mark := "ok"
		if !sr.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] %-10s strategy=%-8s selector=%-20q %s\n", mark, sr.StepID, sr.Strategy, sr.SelectorUsed, sr.ErrorMessage)
	}
	if result.FirstError != nil {
		fmt.Fprintf(out, "first error: %v\n", result.FirstError)
	}
	return nil
}
