package docid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Extension is the file extension of stored documents.
const Extension = ".folia.xml"

// ErrInvalidKey is returned when a namespace or document ID is empty after
// sanitization.
var ErrInvalidKey = errors.New("invalid document key")

// Key identifies a document by namespace and document ID.
type Key struct {
	Namespace string `json:"namespace"`
	DocID     string `json:"docid"`
}

// NewKey sanitizes both components and returns the resulting key.
func NewKey(namespace, docID string) (Key, error) {
	ns, err := SanitizeNamespace(namespace)
	if err != nil {
		return Key{}, err
	}
	id, err := SanitizeDocID(docID)
	if err != nil {
		return Key{}, err
	}
	return Key{Namespace: ns, DocID: id}, nil
}

// MustNewKey is like NewKey but panics on error. Intended for tests and
// constants.
func MustNewKey(namespace, docID string) Key {
	k, err := NewKey(namespace, docID)
	if err != nil {
		panic(fmt.Sprintf("invalid key %s/%s: %v", namespace, docID, err))
	}
	return k
}

// ParseKey parses a key in "namespace/docid" form.
func ParseKey(s string) (Key, error) {
	ns, id, ok := strings.Cut(s, "/")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q: expected namespace/docid", ErrInvalidKey, s)
	}
	return NewKey(ns, id)
}

// String returns the "namespace/docid" form of the key.
func (k Key) String() string {
	return k.Namespace + "/" + k.DocID
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Namespace == "" && k.DocID == ""
}

// Dir returns the namespace directory under workdir.
func (k Key) Dir(workdir string) string {
	return filepath.Join(workdir, k.Namespace)
}

// Path returns the backing file path of the document under workdir.
func (k Key) Path(workdir string) string {
	return filepath.Join(workdir, k.Namespace, k.DocID+Extension)
}

// SanitizeNamespace sanitizes a namespace into a single path segment.
func SanitizeNamespace(namespace string) (string, error) {
	ns := sanitize(namespace)
	if ns == "" {
		return "", fmt.Errorf("%w: empty namespace (from %q)", ErrInvalidKey, namespace)
	}
	return ns, nil
}

// SanitizeDocID sanitizes a document ID into a filename stem. A trailing
// document extension is dropped so uploaded file names can be used as IDs.
func SanitizeDocID(docID string) (string, error) {
	id := sanitize(strings.TrimSuffix(docID, Extension))
	if id == "" {
		return "", fmt.Errorf("%w: empty document id (from %q)", ErrInvalidKey, docID)
	}
	return id, nil
}

// sanitize removes path separators, parent references and every character
// outside [A-Za-z0-9._-]. Leading dots are stripped.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "..", "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	return strings.TrimLeft(b.String(), ".")
}
