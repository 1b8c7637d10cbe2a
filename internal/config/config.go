package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// Environment variables that override file settings.
const (
	EnvWorkdir = "DOCSERVE_WORKDIR"
	EnvAddr    = "DOCSERVE_ADDR"
)

// Defaults.
const (
	DefaultAddr               = "127.0.0.1:8080"
	DefaultExpireTime         = "30m"
	DefaultAutoUnloadInterval = "1m"
	DefaultLockTimeout        = "30s"
	DefaultSaveWorkers        = 2
	DefaultSaveBuffer         = 64
	DefaultSaveMaxElapsed     = "30s"
	DefaultEventsTopic        = "docserve.documents"
)

// Config is the configuration for the document server.
type Config struct {
	// LogLevel is the level of the root logger (trace, debug, info, warn,
	// error).
	LogLevel string `hcl:"log_level,optional" json:"log_level"`

	Server    *Server    `hcl:"server,block" json:"server"`
	Store     *Store     `hcl:"store,block" json:"store"`
	Git       *Git       `hcl:"git,block" json:"git"`
	Database  *Database  `hcl:"database,block" json:"database"`
	Search    *Search    `hcl:"search,block" json:"search"`
	SaveQueue *SaveQueue `hcl:"save_queue,block" json:"save_queue"`
	Events    *Events    `hcl:"events,block" json:"events"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `hcl:"addr,optional" json:"addr"`
}

// Store configures the document store.
type Store struct {
	// Workdir is the directory holding one subdirectory per namespace.
	Workdir string `hcl:"workdir,optional" json:"workdir"`

	// ExpireTime is how long a document may sit unused before it is
	// saved and unloaded.
	ExpireTime string `hcl:"expire_time,optional" json:"expire_time"`

	// AutoUnloadInterval is how often expired documents are looked for.
	AutoUnloadInterval string `hcl:"autounload_interval,optional" json:"autounload_interval"`

	// LockTimeout bounds waits for a document that is being loaded, saved
	// or unloaded.
	LockTimeout string `hcl:"lock_timeout,optional" json:"lock_timeout"`
}

// Git configures version control of saved documents.
type Git struct {
	Enabled     bool   `hcl:"enabled,optional" json:"enabled"`
	AuthorName  string `hcl:"author_name,optional" json:"author_name"`
	AuthorEmail string `hcl:"author_email,optional" json:"author_email"`
}

// Database configures the revision ledger.
type Database struct {
	Driver string `hcl:"driver,optional" json:"driver"` // "sqlite" or "postgres"

	// SQLite
	Path string `hcl:"path,optional" json:"path"`

	// PostgreSQL
	Host     string `hcl:"host,optional" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	User     string `hcl:"user,optional" json:"user"`
	Password string `hcl:"password,optional" json:"password"`
	DBName   string `hcl:"dbname,optional" json:"dbname"`
}

// Search configures the full-text index.
type Search struct {
	Enabled   bool   `hcl:"enabled,optional" json:"enabled"`
	IndexPath string `hcl:"index_path,optional" json:"index_path"`
}

// SaveQueue configures background saving.
type SaveQueue struct {
	Workers    int    `hcl:"workers,optional" json:"workers"`
	Buffer     int    `hcl:"buffer,optional" json:"buffer"`
	MaxElapsed string `hcl:"max_elapsed,optional" json:"max_elapsed"`
}

// Events configures publishing of document lifecycle events to Kafka.
type Events struct {
	Brokers []string `hcl:"brokers" json:"brokers"`
	Topic   string   `hcl:"topic,optional" json:"topic"`
}

// NewConfig parses an HCL configuration file, applies defaults and
// environment overrides, and validates the result.
func NewConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, errors.New("configuration file path is required")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	c := &Config{}
	if err := hclsimple.DecodeFile(filename, nil, c); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Finalize applies defaults and environment overrides and validates the
// configuration.
func (c *Config) Finalize() error {
	c.applyDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GenerateSimplifiedConfig returns a configuration for a single workdir
// with a SQLite ledger, an on-disk index and git snapshots.
func GenerateSimplifiedConfig(workdir string) *Config {
	c := &Config{
		LogLevel: "info",
		Server:   &Server{Addr: DefaultAddr},
		Store:    &Store{Workdir: workdir},
		Git:      &Git{Enabled: true},
		Database: &Database{
			Driver: "sqlite",
			Path:   filepath.Join(workdir, ".docserve", "docserve.db"),
		},
		Search: &Search{
			Enabled:   true,
			IndexPath: filepath.Join(workdir, ".docserve", "fts.bleve"),
		},
	}
	c.applyDefaults()
	return c
}

// WriteConfig writes c as HCL to filename.
func WriteConfig(c *Config, filename string) error {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(c, f.Body())
	if err := os.WriteFile(filename, f.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.Store.ExpireTime == "" {
		c.Store.ExpireTime = DefaultExpireTime
	}
	if c.Store.AutoUnloadInterval == "" {
		c.Store.AutoUnloadInterval = DefaultAutoUnloadInterval
	}
	if c.Store.LockTimeout == "" {
		c.Store.LockTimeout = DefaultLockTimeout
	}
	if c.Git == nil {
		c.Git = &Git{}
	}
	if c.Git.AuthorName == "" {
		c.Git.AuthorName = "docserve"
	}
	if c.Git.AuthorEmail == "" {
		c.Git.AuthorEmail = "docserve@localhost"
	}
	if c.Database != nil {
		if c.Database.Driver == "" {
			c.Database.Driver = "sqlite"
		}
		if c.Database.Driver == "postgres" && c.Database.Port == 0 {
			c.Database.Port = 5432
		}
	}
	if c.Search == nil {
		c.Search = &Search{}
	}
	if c.SaveQueue == nil {
		c.SaveQueue = &SaveQueue{}
	}
	if c.SaveQueue.Workers == 0 {
		c.SaveQueue.Workers = DefaultSaveWorkers
	}
	if c.SaveQueue.Buffer == 0 {
		c.SaveQueue.Buffer = DefaultSaveBuffer
	}
	if c.SaveQueue.MaxElapsed == "" {
		c.SaveQueue.MaxElapsed = DefaultSaveMaxElapsed
	}
	if c.Events != nil && c.Events.Topic == "" {
		c.Events.Topic = DefaultEventsTopic
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvWorkdir); v != "" {
		c.Store.Workdir = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Store, validation.Required),
		validation.Field(&c.Database),
		validation.Field(&c.SaveQueue),
		validation.Field(&c.Events),
	)
}

// Validate implements validation.Validatable.
func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Workdir, validation.Required),
		validation.Field(&s.ExpireTime, validation.By(isDuration)),
		validation.Field(&s.AutoUnloadInterval, validation.By(isDuration)),
		validation.Field(&s.LockTimeout, validation.By(isDuration)),
	)
}

// Validate implements validation.Validatable.
func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&d.Path, validation.When(d.Driver == "sqlite", validation.Required)),
		validation.Field(&d.Host, validation.When(d.Driver == "postgres", validation.Required)),
		validation.Field(&d.DBName, validation.When(d.Driver == "postgres", validation.Required)),
		validation.Field(&d.Port, validation.Min(0), validation.Max(65535)),
	)
}

// Validate implements validation.Validatable.
func (s SaveQueue) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Workers, validation.Min(1)),
		validation.Field(&s.Buffer, validation.Min(1)),
		validation.Field(&s.MaxElapsed, validation.By(isDuration)),
	)
}

// Validate implements validation.Validatable.
func (e Events) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Brokers, validation.Required),
		validation.Field(&e.Topic, validation.Required),
	)
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 30s or 5m")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ExpireDuration returns the parsed expire_time.
func (s *Store) ExpireDuration() time.Duration {
	return mustDuration(s.ExpireTime)
}

// AutoUnloadDuration returns the parsed autounload_interval.
func (s *Store) AutoUnloadDuration() time.Duration {
	return mustDuration(s.AutoUnloadInterval)
}

// LockTimeoutDuration returns the parsed lock_timeout.
func (s *Store) LockTimeoutDuration() time.Duration {
	return mustDuration(s.LockTimeout)
}

// MaxElapsedDuration returns the parsed max_elapsed.
func (s *SaveQueue) MaxElapsedDuration() time.Duration {
	return mustDuration(s.MaxElapsed)
}
