package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/cmd/commands/operator"
	"github.com/hashicorp-forge/docserve/internal/cmd/commands/serve"
	"github.com/hashicorp-forge/docserve/internal/cmd/commands/version"
)

// Commands is the mapping of all available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: b}, nil
		},
		"operator history": func() (cli.Command, error) {
			return &operator.HistoryCommand{Command: b}, nil
		},
		"operator init": func() (cli.Command, error) {
			return &operator.InitCommand{Command: b}, nil
		},
	}
}
