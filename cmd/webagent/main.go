package main

import (
	"fmt"
	"os"

	"github.com/llmwebagent/agent/internal/config"
	"github.com/llmwebagent/agent/internal/logging"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "webagent: building config: %v\n", err)
		os.Exit(1)
	}

	app := &AppContext{
		Config: cfg,
		Logger: logging.NewProduction("webagent", false, "text"),
	}

	rootCmd := newRootCmd(app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
