package docstore

import (
	"context"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// Committer snapshots a saved file into version control.
type Committer interface {
	Commit(ctx context.Context, path, message string) error
}

// RevisionRecorder records a saved revision of a document.
type RevisionRecorder interface {
	RecordRevision(ctx context.Context, key docid.Key, contentHash, message string) error
}

// Indexer keeps a full-text index of stored documents.
type Indexer interface {
	IndexDocument(key docid.Key, doc *folia.Document) error
}

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, string, string) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordRevision(context.Context, docid.Key, string, string) error { return nil }

type nopIndexer struct{}

func (nopIndexer) IndexDocument(docid.Key, *folia.Document) error { return nil }
