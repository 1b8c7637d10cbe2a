package version

import (
	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: docserve version

  Print the version of docserve.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("docserve " + version.String())
	return 0
}
