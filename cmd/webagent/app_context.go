package main

import (
	"github.com/llmwebagent/agent/internal/config"
	"github.com/llmwebagent/agent/internal/logging"
	"github.com/llmwebagent/agent/pkg/webagent"
)

// AppContext bundles the long-lived services shared by every subcommand.
type AppContext struct {
	Config *config.Config
	Logger logging.Logger
}

// NewAgent wires a fresh webagent.Agent from the current configuration.
// Subcommands call this rather than sharing one Agent, since "profile
// show"/"pattern show" only need read access to the on-disk stores and
// a single process per command keeps persistence simple.
func (a *AppContext) NewAgent() (*webagent.Agent, error) {
	return webagent.New(a.Config, a.Logger)
}
