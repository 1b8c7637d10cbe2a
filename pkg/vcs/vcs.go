// Package vcs snapshots saved documents into a version-control repository.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrNotRepository is returned by Log before the first commit.
var ErrNotRepository = errors.New("not a git repository")

// Revision is one commit touching a file.
type Revision struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

// Git commits files in a git repository rooted at Dir. The repository is
// initialized on first use.
type Git struct {
	Dir         string
	AuthorName  string
	AuthorEmail string
	Logger      hclog.Logger

	mu sync.Mutex
}

// NewGit returns a Git committer for dir.
func NewGit(dir, authorName, authorEmail string, logger hclog.Logger) *Git {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if authorName == "" {
		authorName = "docserve"
	}
	if authorEmail == "" {
		authorEmail = "docserve@localhost"
	}
	return &Git{
		Dir:         dir,
		AuthorName:  authorName,
		AuthorEmail: authorEmail,
		Logger:      logger.Named("git"),
	}
}

// Init creates the repository if it does not exist yet.
func (g *Git) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.init(ctx)
}

func (g *Git) init(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return err
	}
	if _, err := g.run(ctx, "init"); err != nil {
		return err
	}
	g.Logger.Info("initialized repository", "dir", g.Dir)
	return nil
}

// Commit adds path and commits it. A commit with no changes is not an
// error.
func (g *Git) Commit(ctx context.Context, path, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.init(ctx); err != nil {
		return err
	}
	rel, err := g.relative(path)
	if err != nil {
		return err
	}
	if _, err := g.run(ctx, "add", "--", rel); err != nil {
		return err
	}

	// Exit status 0 means nothing is staged for path.
	if _, err := g.run(ctx, "diff", "--cached", "--quiet", "--", rel); err == nil {
		g.Logger.Debug("nothing to commit", "path", rel)
		return nil
	}
	if _, err := g.run(ctx, "commit", "-m", message, "--", rel); err != nil {
		return err
	}
	g.Logger.Debug("committed", "path", rel)
	return nil
}

// Log returns up to limit commits touching path, newest first.
func (g *Git) Log(ctx context.Context, path string, limit int) ([]Revision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); err != nil {
		return nil, ErrNotRepository
	}
	rel, err := g.relative(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	out, err := g.run(ctx, "log", fmt.Sprintf("-n%d", limit),
		"--format=%H%x1f%an%x1f%aI%x1f%B%x1e", "--", rel)
	if err != nil {
		if strings.Contains(out, "does not have any commits") {
			return []Revision{}, nil
		}
		return nil, err
	}
	return parseLog(out), nil
}

func parseLog(out string) []Revision {
	revs := []Revision{}
	for _, rec := range strings.Split(out, "\x1e") {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.SplitN(rec, "\x1f", 4)
		if len(fields) != 4 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, fields[2])
		revs = append(revs, Revision{
			Hash:    fields[0],
			Author:  fields[1],
			Date:    date,
			Message: strings.TrimSpace(fields[3]),
		})
	}
	return revs
}

func (g *Git) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	rel, err := filepath.Rel(g.Dir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside repository %q", path, g.Dir)
	}
	return rel, nil
}

// run executes git in Dir and returns its combined output.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+g.AuthorName,
		"GIT_AUTHOR_EMAIL="+g.AuthorEmail,
		"GIT_COMMITTER_NAME="+g.AuthorName,
		"GIT_COMMITTER_EMAIL="+g.AuthorEmail,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
