package operator

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/internal/workspace"
	"github.com/hashicorp-forge/docserve/pkg/vcs"
)

type InitCommand struct {
	*base.Command

	flagGit         bool
	flagWriteConfig bool
}

func (c *InitCommand) Synopsis() string {
	return "Initialize a workdir"
}

func (c *InitCommand) Help() string {
	return `Usage: docserve operator init [options] <workdir>

  This command creates the workdir layout, a default namespace and,
  unless disabled, a git repository for saved documents.` +
		c.Flags().Help()
}

func (c *InitCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("init", flag.ContinueOnError))

	f.BoolVar(
		&c.flagGit, "git", true,
		"Initialize a git repository in the workdir.",
	)
	f.BoolVar(
		&c.flagWriteConfig, "write-config", false,
		"Write a config.hcl for the workdir to the current directory.",
	)

	return f
}

func (c *InitCommand) Run(args []string) int {
	log, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		ui.Error("a workdir path is required")
		return 1
	}

	workdir, err := filepath.Abs(flags.Arg(0))
	if err != nil {
		ui.Error(fmt.Sprintf("error resolving workdir: %v", err))
		return 1
	}

	if err := workspace.InitializeWorkspace(workdir); err != nil {
		ui.Error(fmt.Sprintf("error initializing workdir: %v", err))
		return 1
	}

	cfg := config.GenerateSimplifiedConfig(workdir)
	cfg.Git.Enabled = c.flagGit
	if c.flagGit {
		git := vcs.NewGit(workdir, cfg.Git.AuthorName, cfg.Git.AuthorEmail, log)
		if err := git.Init(context.Background()); err != nil {
			ui.Error(fmt.Sprintf("error initializing git repository: %v", err))
			return 1
		}
	}

	if c.flagWriteConfig {
		if err := config.WriteConfig(cfg, "config.hcl"); err != nil {
			ui.Error(err.Error())
			return 1
		}
		ui.Info("Wrote config.hcl")
	}

	ui.Info(fmt.Sprintf("Initialized workdir at %s", workdir))
	return 0
}
