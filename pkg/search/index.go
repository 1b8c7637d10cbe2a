// Package search maintains a full-text index of document sentences using
// Bleve.
package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// DefaultLimit is the number of hits returned when no limit is given.
const DefaultLimit = 20

// ErrEmptyQuery is returned for a blank search string.
var ErrEmptyQuery = errors.New("empty search query")

// entry is the indexed unit: one sentence, or the whole text of a
// document without sentences.
type entry struct {
	Namespace string `json:"namespace"`
	DocID     string `json:"docid"`
	ElementID string `json:"element"`
	Type      string `json:"type"`
	Text      string `json:"text"`
}

// Hit is a search result.
type Hit struct {
	Key       docid.Key `json:"key"`
	ElementID string    `json:"element"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
}

// Config contains index configuration.
type Config struct {
	// IndexPath is the directory of the on-disk index. Empty keeps the
	// index in memory.
	IndexPath string
}

// Index is a Bleve full-text index of documents.
type Index struct {
	mu     sync.Mutex
	index  bleve.Index
	logger hclog.Logger
}

// New opens or creates the index described by cfg.
func New(cfg *Config, logger hclog.Logger) (*Index, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg == nil || cfg.IndexPath == "" {
		idx, err := bleve.NewMemOnly(createMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &Index{index: idx, logger: logger.Named("search")}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.IndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err := openOrCreateIndex(cfg.IndexPath, createMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return &Index{index: idx, logger: logger.Named("search")}, nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

func createMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "standard"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	entryMapping := bleve.NewDocumentMapping()
	entryMapping.AddFieldMappingsAt("namespace", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("docid", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("element", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("text", textFieldMapping)

	indexMapping.DefaultMapping = entryMapping
	return indexMapping
}

func entryID(key docid.Key, elementID string) string {
	return key.String() + "#" + elementID
}

// IndexDocument replaces the entries of key with the sentences of doc.
func (i *Index) IndexDocument(key docid.Key, doc *folia.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.index.NewBatch()
	existing, err := i.entryIDs(key)
	if err != nil {
		return err
	}
	for _, id := range existing {
		batch.Delete(id)
	}

	units := doc.Select("s")
	if len(units) == 0 {
		units = []*folia.Element{doc.Root}
	}
	for _, el := range units {
		text := el.Text()
		if text == "" {
			continue
		}
		e := entry{
			Namespace: key.Namespace,
			DocID:     key.DocID,
			ElementID: el.ID,
			Type:      el.Name,
			Text:      text,
		}
		if err := batch.Index(entryID(key, el.ID), e); err != nil {
			return fmt.Errorf("failed to add entry to batch: %w", err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index %s: %w", key, err)
	}
	i.logger.Debug("indexed document", "key", key.String(), "entries", len(units))
	return nil
}

// DeleteDocument removes every entry of key.
func (i *Index) DeleteDocument(key docid.Key) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, err := i.entryIDs(key)
	if err != nil {
		return err
	}
	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return i.index.Batch(batch)
}

func (i *Index) entryIDs(key docid.Key) ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(docQuery(key), int(count), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of %s: %w", key, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func termQuery(field, term string) *query.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func docQuery(key docid.Key) query.Query {
	return bleve.NewConjunctionQuery(
		termQuery("namespace", key.Namespace),
		termQuery("docid", key.DocID),
	)
}

// Search finds sentences in namespace matching text. An empty namespace
// searches all namespaces.
func (i *Index) Search(namespace, text string, limit int) ([]Hit, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("text")
	var q query.Query = match
	if namespace != "" {
		q = bleve.NewConjunctionQuery(match, termQuery("namespace", namespace))
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"namespace", "docid", "element", "type", "text"}

	i.mu.Lock()
	res, err := i.index.Search(req)
	i.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			Key: docid.Key{
				Namespace: stringField(h.Fields, "namespace"),
				DocID:     stringField(h.Fields, "docid"),
			},
			ElementID: stringField(h.Fields, "element"),
			Type:      stringField(h.Fields, "type"),
			Text:      stringField(h.Fields, "text"),
			Score:     h.Score,
		})
	}
	return hits, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// Count returns the number of indexed entries.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}
