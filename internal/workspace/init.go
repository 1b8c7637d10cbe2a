package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DataDir is the directory under the workdir holding the database and the
// search index. It is skipped when listing namespaces.
const DataDir = ".docserve"

// DefaultNamespace is created in every new workdir.
const DefaultNamespace = "default"

const (
	gitignore = `# docserve runtime data
.docserve/
*.tmp
`

	readmeTemplate = `# docserve workdir

This directory holds the documents served by docserve.

## Structure

- **<namespace>/** - One directory per namespace, one %s file per document
- **.docserve/** - Database and search index (do not edit)

## Getting Started

1. Start the server: %s
2. Upload a document: %s
3. Query it: %s

Saved documents are committed to the git repository in this directory
when git is enabled.
`
)

// InitializeWorkspace creates the workdir layout and default files. Existing
// files are left untouched.
func InitializeWorkspace(basePath string) error {
	dirs := []string{
		basePath,
		filepath.Join(basePath, DataDir),
		filepath.Join(basePath, DefaultNamespace),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	readme := fmt.Sprintf(readmeTemplate,
		"`.folia.xml`",
		"`docserve serve "+basePath+"`",
		"`curl --data-binary @doc.folia.xml localhost:8080/upload/default`",
		"`curl -d docid=doc -d 'query=SELECT w' localhost:8080/query/default`",
	)
	files := map[string]string{
		".gitignore": gitignore,
		"README.md":  readme,
	}
	for name, content := range files {
		if err := writeIfMissing(filepath.Join(basePath, name), content); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}

	return nil
}

func writeIfMissing(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
