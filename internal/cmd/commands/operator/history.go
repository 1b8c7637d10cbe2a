package operator

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/internal/db"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/models"
)

type HistoryCommand struct {
	*base.Command

	flagConfig  string
	flagWorkdir string
	flagLimit   int
}

func (c *HistoryCommand) Synopsis() string {
	return "List the saved revisions of a document"
}

func (c *HistoryCommand) Help() string {
	return `Usage: docserve operator history [options] <namespace>/<docid>

  This command lists the revisions recorded in the revision database for
  a document, newest first.` +
		c.Flags().Help()
}

func (c *HistoryCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("history", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to an HCL config file with a database block.",
	)
	f.StringVar(
		&c.flagWorkdir, "workdir", "",
		"Zero-config workdir whose database to read. Ignored with -config.",
	)
	f.IntVar(
		&c.flagLimit, "limit", 20,
		"Maximum number of revisions to list.",
	)

	return f
}

func (c *HistoryCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		ui.Error("a single document key is required")
		return 1
	}
	if c.flagLimit < 1 {
		ui.Error("limit must be at least 1")
		return 1
	}

	key, err := docid.ParseKey(flags.Arg(0))
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing document key: %v", err))
		return 1
	}

	cfg, err := c.config()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	if cfg.Database == nil {
		ui.Error("no database is configured")
		return 1
	}

	database, err := db.NewDB(cfg.Database, nil)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing database: %v", err))
		return 1
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	ledger := &models.RevisionLedger{DB: database}
	revs, err := ledger.History(context.Background(), key, c.flagLimit)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading revisions: %v", err))
		return 1
	}
	if len(revs) == 0 {
		ui.Info(fmt.Sprintf("No revisions recorded for %s", key))
		return 0
	}

	for _, rev := range revs {
		ui.Output(fmt.Sprintf("%d\t%s\t%.12s\t%s",
			rev.Revision,
			rev.CreatedAt.Format("2006-01-02 15:04:05"),
			rev.ContentHash,
			firstLine(rev.Message)))
	}
	return 0
}

func (c *HistoryCommand) config() (*config.Config, error) {
	if c.flagConfig != "" {
		cfg, err := config.NewConfig(c.flagConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		return cfg, nil
	}
	if c.flagWorkdir == "" {
		return nil, fmt.Errorf("one of -config or -workdir is required")
	}
	return config.GenerateSimplifiedConfig(c.flagWorkdir), nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
