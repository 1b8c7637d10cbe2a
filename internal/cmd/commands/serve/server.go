package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/docserve/internal/api"
	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/internal/db"
	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/events"
	"github.com/hashicorp-forge/docserve/pkg/models"
	"github.com/hashicorp-forge/docserve/pkg/search"
	"github.com/hashicorp-forge/docserve/pkg/vcs"
)

// shutdownTimeout bounds draining HTTP requests and saving resident
// documents on exit.
const shutdownTimeout = 30 * time.Second

// run starts all components for cfg and serves until interrupted.
func (c *Command) run(cfg *config.Config) int {
	log, ui := c.Log, c.UI
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing server: %v", err))
		return 1
	}

	// Background workers stop when ctx is cancelled.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	srv.SaveQueue.Start(workCtx)
	go func() {
		_ = srv.Store.Run(workCtx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewMux(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	ui.Info(fmt.Sprintf("Serving %s on http://%s", cfg.Store.Workdir, cfg.Server.Addr))

	exitCode := 0
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			ui.Error(fmt.Sprintf("error starting listener: %v", err))
			exitCode = 1
		}
	case <-ctx.Done():
		ui.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx, srv, httpServer, cancelWork); err != nil {
		ui.Error(fmt.Sprintf("error during shutdown: %v", err))
		exitCode = 1
	}
	return exitCode
}

// newServer builds the store and its optional collaborators.
func newServer(ctx context.Context, cfg *config.Config, log hclog.Logger) (server.Server, error) {
	srv := server.Server{
		Config: cfg,
		Logger: log,
	}
	workdir := cfg.Store.Workdir
	opts := docstore.Options{
		Workdir:            workdir,
		ExpireTime:         cfg.Store.ExpireDuration(),
		AutoUnloadInterval: cfg.Store.AutoUnloadDuration(),
		LockTimeout:        cfg.Store.LockTimeoutDuration(),
		Logger:             log,
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return srv, fmt.Errorf("error creating workdir: %w", err)
	}

	if cfg.Git.Enabled {
		srv.Git = vcs.NewGit(workdir, cfg.Git.AuthorName, cfg.Git.AuthorEmail, log)
		if err := srv.Git.Init(ctx); err != nil {
			return srv, fmt.Errorf("error initializing git repository: %w", err)
		}
		opts.Committer = srv.Git
	}

	if cfg.Database != nil {
		database, err := db.NewDB(cfg.Database, log)
		if err != nil {
			return srv, fmt.Errorf("error initializing database: %w", err)
		}
		srv.DB = database
		srv.Ledger = &models.RevisionLedger{DB: database}
		opts.Revisions = srv.Ledger
	}

	if cfg.Search.Enabled {
		idx, err := search.New(&search.Config{IndexPath: cfg.Search.IndexPath}, log)
		if err != nil {
			return srv, fmt.Errorf("error opening search index: %w", err)
		}
		srv.Search = idx
		opts.Indexer = idx
	}

	if cfg.Events != nil {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return srv, fmt.Errorf("error connecting to event brokers: %w", err)
		}
		opts.Events = pub
		log.Info("publishing document events",
			"brokers", cfg.Events.Brokers,
			"topic", cfg.Events.Topic)
	}

	srv.Store = docstore.New(opts)
	srv.SaveQueue = docstore.NewSaveQueue(srv.Store, log, &docstore.SaveQueueConfig{
		Workers:    cfg.SaveQueue.Workers,
		Buffer:     cfg.SaveQueue.Buffer,
		MaxElapsed: cfg.SaveQueue.MaxElapsedDuration(),
	})

	return srv, nil
}

// shutdown stops accepting requests, drains background saves and saves
// every resident document.
func shutdown(ctx context.Context, srv server.Server, httpServer *http.Server, stopWork context.CancelFunc) error {
	var result *multierror.Error

	if err := httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("error shutting down http server: %w", err))
	}

	stopWork()
	srv.SaveQueue.Wait()

	if err := srv.Store.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("error saving documents: %w", err))
	}
	if srv.Search != nil {
		if err := srv.Search.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error closing search index: %w", err))
		}
	}
	if srv.DB != nil {
		if sqlDB, err := srv.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	return result.ErrorOrNil()
}
