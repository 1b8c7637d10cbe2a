package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/models"
)

func TestNewDB(t *testing.T) {
	t.Run("sqlite file in new directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".docserve", "docserve.db")
		db, err := NewDB(&config.Database{Driver: "sqlite", Path: path}, nil)
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()

		assert.FileExists(t, path)

		ledger := &models.RevisionLedger{DB: db}
		key := docid.MustNewKey("ns", "doc")
		require.NoError(t, ledger.RecordRevision(context.Background(), key, strings.Repeat("a", 64), "Saved document"))

		revs, err := ledger.History(context.Background(), key, 10)
		require.NoError(t, err)
		require.Len(t, revs, 1)
		assert.Equal(t, 1, revs[0].Revision)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewDB(nil, nil)
		assert.Error(t, err)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := NewDB(&config.Database{Driver: "mysql"}, nil)
		assert.Error(t, err)
	})
}
