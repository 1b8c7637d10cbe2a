// Package docstore holds FoLiA documents in memory on behalf of concurrent
// editing sessions.
//
// Documents are loaded from the working directory on first use, mutated in
// place by queries, and written back on save. Each session that touches a
// document is tracked with a last-access time and a queue of element IDs
// changed by other sessions, which the session drains by polling.
// Documents nobody has touched for the configured expiry are saved and
// evicted by AutoUnload.
//
// Load, Save and Unload for one key are mutually exclusive (KeyedMutex).
// Query execution against a resident document is serialized by a
// per-document mutex.
package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/events"
	"github.com/hashicorp-forge/docserve/pkg/folia"
	"github.com/hashicorp-forge/docserve/pkg/metrics"
)

// DefaultCommitMessage is used when a save has no queued change-log
// messages.
const DefaultCommitMessage = "Saved document"

// Unload reasons, used as metric labels.
const (
	ReasonExplicit = "explicit"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

// Options configures a Store.
type Options struct {
	// Fs is the filesystem holding the working directory. Defaults to the
	// OS filesystem.
	Fs afero.Fs

	// Workdir is the root directory; namespaces are its subdirectories.
	Workdir string

	// ExpireTime is the idle time after which AutoUnload evicts a document.
	ExpireTime time.Duration

	// AutoUnloadInterval is how often Run calls AutoUnload.
	AutoUnloadInterval time.Duration

	// LockTimeout bounds how long Load, Save and Unload wait for a key.
	// Zero waits until the context ends.
	LockTimeout time.Duration

	Committer Committer
	Revisions RevisionRecorder
	Indexer   Indexer
	Events    events.Publisher
	Logger    hclog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Edit describes the effect of a callback passed to Use.
type Edit struct {
	// Changed holds IDs of elements that changed or were removed.
	Changed []string

	// Message is appended to the change log for the next save.
	Message string
}

type document struct {
	mu       sync.Mutex
	doc      *folia.Document
	modified bool
	evicted  bool
	loadedAt time.Time

	// pending is set while the last write still needs a commit or a
	// revision record.
	pending *pendingSnapshot
}

// Store is an in-memory document store backed by a working directory.
type Store struct {
	fs         afero.Fs
	workdir    string
	expireTime time.Duration
	interval   time.Duration
	committer  Committer
	revisions  RevisionRecorder
	indexer    Indexer
	events     events.Publisher
	logger     hclog.Logger
	now        func() time.Time

	locks *KeyedMutex

	mu         sync.Mutex
	docs       map[docid.Key]*document
	lastAccess map[docid.Key]map[string]time.Time
	updates    map[docid.Key]map[string]map[string]struct{}
	changelog  map[docid.Key][]string
	closed     bool
}

// New returns a Store for the given options.
func New(opts Options) *Store {
	s := &Store{
		fs:         opts.Fs,
		workdir:    opts.Workdir,
		expireTime: opts.ExpireTime,
		interval:   opts.AutoUnloadInterval,
		committer:  opts.Committer,
		revisions:  opts.Revisions,
		indexer:    opts.Indexer,
		events:     opts.Events,
		logger:     opts.Logger,
		now:        opts.Now,
		locks:      NewKeyedMutex(opts.LockTimeout),
		docs:       make(map[docid.Key]*document),
		lastAccess: make(map[docid.Key]map[string]time.Time),
		updates:    make(map[docid.Key]map[string]map[string]struct{}),
		changelog:  make(map[docid.Key][]string),
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.committer == nil {
		s.committer = nopCommitter{}
	}
	if s.revisions == nil {
		s.revisions = nopRecorder{}
	}
	if s.indexer == nil {
		s.indexer = nopIndexer{}
	}
	if s.events == nil {
		s.events = events.NewLogPublisher(opts.Logger)
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	s.logger = s.logger.Named("docstore")
	if s.now == nil {
		s.now = time.Now
	}
	if s.expireTime <= 0 {
		s.expireTime = 30 * time.Minute
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	return s
}

// Workdir returns the working directory.
func (s *Store) Workdir() string {
	return s.workdir
}

// Locks exposes the per-key mutex.
func (s *Store) Locks() *KeyedMutex {
	return s.locks
}

// Contains reports whether key is resident.
func (s *Store) Contains(key docid.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[key]
	return ok
}

// IsModified reports whether the resident document has unsaved changes.
func (s *Store) IsModified(key docid.Key) bool {
	s.mu.Lock()
	d, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modified
}

// Resident returns the keys of all loaded documents, sorted.
func (s *Store) Resident() []docid.Key {
	s.mu.Lock()
	keys := make([]docid.Key, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sortKeys(keys)
	return keys
}

// Load reads the document for key if it is not already resident.
func (s *Store) Load(ctx context.Context, key docid.Key) error {
	if s.Contains(key) {
		return nil
	}
	if err := s.locks.Lock(ctx, key); err != nil {
		return err
	}
	defer s.locks.Unlock(key)

	return s.loadLocked(ctx, key)
}

func (s *Store) loadLocked(ctx context.Context, key docid.Key) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	_, ok := s.docs[key]
	s.mu.Unlock()
	if ok {
		return nil
	}

	path := key.Path(s.workdir)
	f, err := s.fs.Open(path)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues(metrics.ResultError).Inc()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("error opening document %s: %w", key, err)
	}
	defer f.Close()

	doc, err := folia.Parse(f)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("error loading document %s: %w", key, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.docs[key] = &document{doc: doc, loadedAt: s.now()}
	s.mu.Unlock()

	metrics.LoadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.DocumentsResident.Inc()
	s.logger.Info("loaded document", "key", key.String(), "elements", doc.Len())

	if err := s.indexer.IndexDocument(key, doc); err != nil {
		s.logger.Warn("error indexing document", "key", key.String(), "error", err)
	}
	s.publish(ctx, events.NewEvent(events.EventTypeDocumentLoaded, key))
	return nil
}

// Touch records that session accessed key now.
func (s *Store) Touch(key docid.Key, session string) {
	session = docid.NormalizeSession(session)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAccess[key] == nil {
		s.lastAccess[key] = make(map[string]time.Time)
	}
	s.lastAccess[key][session] = s.now()
	if s.updates[key] == nil {
		s.updates[key] = make(map[string]map[string]struct{})
	}
	if s.updates[key][session] == nil {
		s.updates[key][session] = make(map[string]struct{})
	}
}

// Use loads key if needed, records the access for session and runs fn with
// exclusive access to the document. If fn reports changed elements, the
// document is marked modified and the IDs are queued for every other
// session that has accessed the document.
func (s *Store) Use(ctx context.Context, key docid.Key, session string, fn func(doc *folia.Document) (*Edit, error)) error {
	session = docid.NormalizeSession(session)

	for {
		if err := s.Load(ctx, key); err != nil {
			return err
		}

		s.mu.Lock()
		d, ok := s.docs[key]
		s.mu.Unlock()
		if !ok {
			// Unloaded between Load and lookup.
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		d.mu.Lock()
		if d.evicted {
			d.mu.Unlock()
			continue
		}
		s.Touch(key, session)

		edit, err := fn(d.doc)
		if err == nil && edit != nil && len(edit.Changed) > 0 {
			d.modified = true
			s.recordEdit(key, session, edit)
		}
		d.mu.Unlock()
		return err
	}
}

func (s *Store) recordEdit(key docid.Key, session string, edit *Edit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for other, queue := range s.updates[key] {
		if other == session || other == docid.NoSession {
			continue
		}
		for _, id := range edit.Changed {
			queue[id] = struct{}{}
		}
	}
	if edit.Message != "" {
		s.changelog[key] = append(s.changelog[key], edit.Message)
	}
}

// View runs fn on the resident document for key without loading it or
// recording an access. It returns ErrNotFound if key is not resident.
func (s *Store) View(key docid.Key, fn func(doc *folia.Document) error) error {
	s.mu.Lock()
	d, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s is not loaded", ErrNotFound, key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.evicted {
		return fmt.Errorf("%w: %s is not loaded", ErrNotFound, key)
	}
	return fn(d.doc)
}

// Poll returns and clears the element IDs changed by other sessions since
// session last polled key.
func (s *Store) Poll(key docid.Key, session string) []string {
	session = docid.NormalizeSession(session)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAccess[key] != nil {
		if _, ok := s.lastAccess[key][session]; ok {
			s.lastAccess[key][session] = s.now()
		}
	}

	queue := s.updates[key][session]
	if len(queue) == 0 {
		return nil
	}
	ids := make([]string, 0, len(queue))
	for id := range queue {
		ids = append(ids, id)
	}
	s.updates[key][session] = make(map[string]struct{})

	sort.Strings(ids)
	return ids
}

// Sessions returns the sessions that accessed key, sorted.
func (s *Store) Sessions(key docid.Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.lastAccess[key]))
	for session := range s.lastAccess[key] {
		out = append(out, session)
	}
	sort.Strings(out)
	return out
}

// Changelog returns the change-log messages queued for the next save.
func (s *Store) Changelog(key docid.Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changelog[key]...)
}

// Save writes the document for key if it has been modified. When version
// control is enabled the file is committed with the queued change-log
// messages.
func (s *Store) Save(ctx context.Context, key docid.Key) error {
	if err := s.locks.Lock(ctx, key); err != nil {
		return err
	}
	defer s.locks.Unlock(key)

	return s.saveLocked(ctx, key)
}

func (s *Store) saveLocked(ctx context.Context, key docid.Key) error {
	s.mu.Lock()
	d, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return s.saveDocLocked(ctx, key, d)
}

// saveDocLocked writes d if it is modified and then completes any pending
// snapshot. The caller holds d.mu.
func (s *Store) saveDocLocked(ctx context.Context, key docid.Key, d *document) error {
	if d.modified {
		var buf bytes.Buffer
		if _, err := d.doc.WriteTo(&buf); err != nil {
			metrics.SavesTotal.WithLabelValues(metrics.ResultError).Inc()
			return fmt.Errorf("error serializing document %s: %w", key, err)
		}

		path := key.Path(s.workdir)
		if err := s.writeFile(path, buf.Bytes()); err != nil {
			metrics.SavesTotal.WithLabelValues(metrics.ResultError).Inc()
			return fmt.Errorf("error saving document %s: %w", key, err)
		}
		d.modified = false

		s.mu.Lock()
		messages := s.changelog[key]
		delete(s.changelog, key)
		s.mu.Unlock()

		// Messages of an earlier save whose commit failed go out with
		// this one.
		if d.pending != nil {
			messages = append(d.pending.messages, messages...)
		}
		d.pending = newPendingSnapshot(path, buf.Bytes(), messages)

		if err := s.indexer.IndexDocument(key, d.doc); err != nil {
			s.logger.Warn("error indexing document", "key", key.String(), "error", err)
		}
		metrics.SavesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		s.logger.Info("saved document", "key", key.String(), "content_hash", d.pending.hash)
	}

	if d.pending == nil {
		return nil
	}
	if err := s.snapshot(ctx, key, d.pending); err != nil {
		return err
	}
	d.pending = nil
	return nil
}

// pendingSnapshot is a written file whose commit or revision record has
// not gone through yet.
type pendingSnapshot struct {
	path      string
	hash      string
	messages  []string
	committed bool
	recorded  bool
}

func newPendingSnapshot(path string, data []byte, messages []string) *pendingSnapshot {
	sum := sha256.Sum256(data)
	return &pendingSnapshot{
		path:     path,
		hash:     hex.EncodeToString(sum[:]),
		messages: messages,
	}
}

// snapshot commits, records and announces a file that was written. Steps
// that succeed are marked on p so a retry only repeats the failed ones.
func (s *Store) snapshot(ctx context.Context, key docid.Key, p *pendingSnapshot) error {
	message := commitMessage(p.messages)

	var result *multierror.Error
	if !p.committed {
		if err := s.committer.Commit(ctx, p.path, message); err != nil {
			result = multierror.Append(result, fmt.Errorf("error committing document %s: %w", key, err))
		} else {
			p.committed = true
		}
	}
	if !p.recorded {
		if err := s.revisions.RecordRevision(ctx, key, p.hash, message); err != nil {
			result = multierror.Append(result, fmt.Errorf("error recording revision of %s: %w", key, err))
		} else {
			p.recorded = true
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	ev := events.NewEvent(events.EventTypeDocumentSaved, key)
	ev.ContentHash = p.hash
	ev.Message = message
	s.publish(ctx, ev)
	return nil
}

func commitMessage(messages []string) string {
	if len(messages) == 0 {
		return DefaultCommitMessage
	}
	return strings.Join(messages, "\n")
}

// writeFile writes data next to path and renames it into place.
func (s *Store) writeFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// Unload evicts key from memory, saving it first when save is true.
// Unloading a document that is not resident is a no-op.
func (s *Store) Unload(ctx context.Context, key docid.Key, save bool) error {
	return s.unload(ctx, key, save, ReasonExplicit)
}

func (s *Store) unload(ctx context.Context, key docid.Key, save bool, reason string) error {
	return s.unloadIf(ctx, key, save, reason, nil)
}

// unloadIf is unload with a final check. keep runs with the key lock and
// the document mutex held, so no access can slip in after it; a true
// result leaves the document resident.
func (s *Store) unloadIf(ctx context.Context, key docid.Key, save bool, reason string, keep func() bool) error {
	if err := s.locks.Lock(ctx, key); err != nil {
		return err
	}
	defer s.locks.Unlock(key)

	s.mu.Lock()
	d, ok := s.docs[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	// d.mu is held until the document is gone from the map, so an edit
	// either makes it into the save or finds the document evicted.
	d.mu.Lock()
	if keep != nil && keep() {
		d.mu.Unlock()
		return nil
	}
	if save {
		if err := s.saveDocLocked(ctx, key, d); err != nil {
			d.mu.Unlock()
			return err
		}
	} else if d.pending != nil {
		if err := s.snapshot(ctx, key, d.pending); err != nil {
			s.logger.Warn("dropping unfinished snapshot", "key", key.String(), "error", err)
		}
	}
	d.evicted = true

	s.mu.Lock()
	delete(s.docs, key)
	delete(s.lastAccess, key)
	delete(s.updates, key)
	delete(s.changelog, key)
	s.mu.Unlock()
	d.mu.Unlock()

	metrics.DocumentsResident.Dec()
	metrics.UnloadsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("unloaded document", "key", key.String(), "reason", reason, "saved", save)
	s.publish(ctx, events.NewEvent(events.EventTypeDocumentUnloaded, key))
	return nil
}

// LastAccess returns the most recent access to key across all sessions.
// A document that was loaded but never used counts as accessed at load
// time.
func (s *Store) LastAccess(key docid.Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessLocked(key)
}

func (s *Store) lastAccessLocked(key docid.Key) (time.Time, bool) {
	d, ok := s.docs[key]
	if !ok {
		return time.Time{}, false
	}
	latest := d.loadedAt
	for _, t := range s.lastAccess[key] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, true
}

// AutoUnload saves and unloads every document whose most recent access is
// older than the expiry time. It keeps going after errors and returns them
// combined.
func (s *Store) AutoUnload(ctx context.Context) error {
	now := s.now()

	var expired []docid.Key
	s.mu.Lock()
	for key := range s.docs {
		if s.expiredLocked(key, now) {
			expired = append(expired, key)
		}
	}
	s.mu.Unlock()
	sortKeys(expired)

	var result *multierror.Error
	for _, key := range expired {
		// The document may have been used since the scan.
		keep := func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return !s.expiredLocked(key, s.now())
		}
		s.logger.Debug("unloading expired document", "key", key.String())
		if err := s.unloadIf(ctx, key, true, ReasonExpired, keep); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Store) expiredLocked(key docid.Key, now time.Time) bool {
	last, ok := s.lastAccessLocked(key)
	return ok && now.Sub(last) > s.expireTime
}

// Run calls AutoUnload periodically until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info("auto-unload started",
		"interval", s.interval,
		"expire_time", s.expireTime)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-unload stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.AutoUnload(ctx); err != nil {
				s.logger.Error("error unloading expired documents", "error", err)
			}
		}
	}
}

// Close saves and unloads every resident document. The store rejects
// further loads afterwards.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var result *multierror.Error
	for _, key := range s.Resident() {
		if err := s.unload(ctx, key, true, ReasonShutdown); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.events.Close()
	return result.ErrorOrNil()
}

func (s *Store) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("error publishing event", "type", ev.Type, "error", err)
	}
}

func sortKeys(keys []docid.Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
