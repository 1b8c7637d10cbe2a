package serve

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/internal/workspace"
)

type Command struct {
	*base.Command

	flagConfig string
	flagAddr   string
}

func (c *Command) Synopsis() string {
	return "Run the document server"
}

func (c *Command) Help() string {
	return `Usage: docserve serve [options] [workdir]
       docserve serve -config=config.hcl

  Run the document server.

  Zero-config mode:
    docserve serve              - Serves ./corpus in the current directory
    docserve serve /path/to/dir - Serves the given directory

  In zero-config mode the workdir is created when missing, saved documents
  are committed to git, revisions are recorded in an SQLite database and
  documents are indexed for full-text search under <workdir>/.docserve/.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to an HCL config file. Disables zero-config mode.",
	)
	f.StringVar(
		&c.flagAddr, "addr", "",
		fmt.Sprintf("Address to listen on (default %q).", config.DefaultAddr),
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	var cfg *config.Config
	if c.flagConfig != "" {
		var err error
		cfg, err = config.NewConfig(c.flagConfig)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error parsing config file: %v", err))
			return 1
		}
	} else {
		workdir, err := c.workdir(f.Args())
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		cfg = config.GenerateSimplifiedConfig(workdir)
		if err := cfg.Finalize(); err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	}
	if c.flagAddr != "" {
		cfg.Server.Addr = c.flagAddr
	}

	return c.run(cfg)
}

// workdir resolves and initializes the zero-config working directory.
func (c *Command) workdir(args []string) (string, error) {
	var path string
	switch {
	case len(args) > 0:
		path = args[0]
	case os.Getenv(config.EnvWorkdir) != "":
		path = os.Getenv(config.EnvWorkdir)
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current directory: %w", err)
		}
		path = filepath.Join(cwd, "corpus")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("error resolving workdir: %w", err)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		c.UI.Info(fmt.Sprintf("Initializing new workdir at %s", abs))
	} else {
		c.UI.Info(fmt.Sprintf("Using existing workdir at %s", abs))
	}
	if err := workspace.InitializeWorkspace(abs); err != nil {
		return "", fmt.Errorf("error initializing workdir: %w", err)
	}
	return abs, nil
}
