package operator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docserve/internal/cmd/base"
	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/internal/db"
	"github.com/hashicorp-forge/docserve/internal/workspace"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/models"
)

func newBase() (*base.Command, *cli.MockUi) {
	ui := cli.NewMockUi()
	return base.NewCommand(hclog.NewNullLogger(), ui), ui
}

func TestInitCommand(t *testing.T) {
	b, ui := newBase()
	workdir := filepath.Join(t.TempDir(), "corpus")

	c := &InitCommand{Command: b}
	code := c.Run([]string{"-git=false", workdir})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	assert.DirExists(t, filepath.Join(workdir, workspace.DefaultNamespace))
	assert.Contains(t, ui.OutputWriter.String(), "Initialized workdir")
	_, err := os.Stat(filepath.Join(workdir, ".git"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitCommandRequiresWorkdir(t *testing.T) {
	b, ui := newBase()
	c := &InitCommand{Command: b}
	assert.Equal(t, 1, c.Run(nil))
	assert.Contains(t, ui.ErrorWriter.String(), "workdir path is required")
}

func TestHistoryCommand(t *testing.T) {
	workdir := t.TempDir()
	key := docid.MustNewKey("ns", "doc")

	cfg := config.GenerateSimplifiedConfig(workdir)
	database, err := db.NewDB(cfg.Database, nil)
	require.NoError(t, err)
	ledger := &models.RevisionLedger{DB: database}
	require.NoError(t, ledger.RecordRevision(context.Background(), key, strings.Repeat("0123456789abcdef", 4), "Added document"))
	require.NoError(t, ledger.RecordRevision(context.Background(), key, strings.Repeat("fedcba9876543210", 4), "EDIT w\nDELETE w"))
	sqlDB, err := database.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	tests := []struct {
		name     string
		args     []string
		code     int
		contains []string
	}{
		{
			name:     "lists revisions newest first",
			args:     []string{"-workdir", workdir, "ns/doc"},
			code:     0,
			contains: []string{"2\t", "fedcba987654\tEDIT w\n", "0123456789ab\tAdded document"},
		},
		{
			name:     "unknown document",
			args:     []string{"-workdir", workdir, "ns/other"},
			code:     0,
			contains: []string{"No revisions recorded for ns/other"},
		},
		{
			name: "invalid key",
			args: []string{"-workdir", workdir, "nodoc"},
			code: 1,
		},
		{
			name: "missing config",
			args: []string{"ns/doc"},
			code: 1,
		},
		{
			name: "bad limit",
			args: []string{"-workdir", workdir, "-limit", "0", "ns/doc"},
			code: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ui := newBase()
			c := &HistoryCommand{Command: b}
			code := c.Run(tt.args)
			assert.Equal(t, tt.code, code, ui.ErrorWriter.String())
			for _, s := range tt.contains {
				assert.Contains(t, ui.OutputWriter.String(), s)
			}
		})
	}
}
