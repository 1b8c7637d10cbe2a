package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/events"
	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// DocumentInfo describes a document found in a namespace directory.
type DocumentInfo struct {
	Key      docid.Key `json:"key"`
	Size     int64     `json:"size"`
	Resident bool      `json:"resident"`
	Modified bool      `json:"modified"`
}

// Namespaces lists the namespace directories under the working directory.
func (s *Store) Namespaces() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.workdir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("error reading workdir: %w", err)
	}

	out := []string{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// CreateNamespace creates the directory for namespace. Creating an
// existing namespace is not an error.
func (s *Store) CreateNamespace(namespace string) (string, error) {
	ns, err := docid.SanitizeNamespace(namespace)
	if err != nil {
		return "", err
	}
	dir := docid.Key{Namespace: ns}.Dir(s.workdir)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating namespace %q: %w", ns, err)
	}
	s.logger.Info("created namespace", "namespace", ns)
	return ns, nil
}

// Documents lists the documents stored in namespace.
func (s *Store) Documents(namespace string) ([]DocumentInfo, error) {
	ns, err := docid.SanitizeNamespace(namespace)
	if err != nil {
		return nil, err
	}
	dir := docid.Key{Namespace: ns}.Dir(s.workdir)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: namespace %s", ErrNotFound, ns)
		}
		return nil, fmt.Errorf("error reading namespace %q: %w", ns, err)
	}

	out := []DocumentInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docid.Extension) {
			continue
		}
		key := docid.Key{Namespace: ns, DocID: strings.TrimSuffix(e.Name(), docid.Extension)}
		out = append(out, DocumentInfo{
			Key:      key,
			Size:     e.Size(),
			Resident: s.Contains(key),
			Modified: s.IsModified(key),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.DocID < out[j].Key.DocID
	})
	return out, nil
}

// Add stores an uploaded document in namespace. The document ID is taken
// from the root xml:id. An existing document is never overwritten.
func (s *Store) Add(ctx context.Context, namespace string, data []byte) (docid.Key, error) {
	doc, err := folia.Parse(bytes.NewReader(data))
	if err != nil {
		return docid.Key{}, err
	}
	key, err := docid.NewKey(namespace, doc.ID())
	if err != nil {
		return docid.Key{}, err
	}
	return key, s.store(ctx, key, doc, "Added document "+key.DocID)
}

// Create stores a new empty document under key.
func (s *Store) Create(ctx context.Context, key docid.Key) error {
	return s.store(ctx, key, folia.New(key.DocID), "Created document "+key.DocID)
}

func (s *Store) store(ctx context.Context, key docid.Key, doc *folia.Document, message string) error {
	if err := s.locks.Lock(ctx, key); err != nil {
		return err
	}
	defer s.locks.Unlock(key)

	path := key.Path(s.workdir)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return fmt.Errorf("error checking document %s: %w", key, err)
	}
	if exists || s.Contains(key) {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("error serializing document %s: %w", key, err)
	}
	if err := s.writeFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("error writing document %s: %w", key, err)
	}
	s.logger.Info("added document", "key", key.String())

	if err := s.indexer.IndexDocument(key, doc); err != nil {
		s.logger.Warn("error indexing document", "key", key.String(), "error", err)
	}
	s.publish(ctx, events.NewEvent(events.EventTypeDocumentAdded, key))
	return s.snapshot(ctx, key, newPendingSnapshot(path, buf.Bytes(), []string{message}))
}
