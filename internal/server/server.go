package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/models"
	"github.com/hashicorp-forge/docserve/pkg/search"
	"github.com/hashicorp-forge/docserve/pkg/vcs"
)

// Server contains the server configuration.
type Server struct {
	// Store holds loaded documents.
	Store *docstore.Store

	// SaveQueue saves documents changed by queries in the background.
	SaveQueue *docstore.SaveQueue

	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server. Nil when no database is
	// configured.
	DB *gorm.DB

	// Ledger records saved revisions in DB.
	Ledger *models.RevisionLedger

	// Search is the full-text index. Nil when search is disabled.
	Search *search.Index

	// Git commits saved documents. Nil when version control is disabled.
	Git *vcs.Git

	// Logger is the logger for the server.
	Logger hclog.Logger
}
