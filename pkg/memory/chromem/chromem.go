// Package chromem implements memory.VectorStore with the embedded chromem-go
// database, in memory or persisted to a directory.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/jllopis/semkernel/pkg/memory"
)

var errNoEmbeddingFunc = errors.New("chromem: embeddings must be supplied by the caller")

// Store is a chromem-backed vector store. Embeddings are always computed
// by the memory layer, so collections carry an embedding function that
// refuses to embed.
type Store struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an in-memory store.
func New() *Store {
	return &Store{db: chromem.NewDB(), collections: make(map[string]*chromem.Collection)}
}

// NewPersistent creates a store persisted under path.
func NewPersistent(path string, compress bool) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db %s: %w", path, err)
	}
	return &Store{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *Store) CreateCollection(_ context.Context, name string, _ uint64) error {
	_, err := s.collection(name, true)
	return err
}

func (s *Store) Collections(_ context.Context) ([]string, error) {
	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	col, err := s.collection(collection, true)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		metadata := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			metadata[k] = fmt.Sprint(v)
		}
		content, _ := p.Payload[memory.PayloadText].(string)
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   content,
			Metadata:  metadata,
			Embedding: p.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*memory.Point, error) {
	col, err := s.collection(collection, false)
	if err != nil || col == nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing id as an error.
		return nil, nil
	}
	return &memory.Point{ID: doc.ID, Vector: doc.Embedding, Payload: payload(doc.Metadata)}, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids ...string) error {
	col, err := s.collection(collection, false)
	if err != nil || col == nil || len(ids) == 0 {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	col, err := s.collection(collection, false)
	if err != nil || col == nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if limit > 0 && limit < n {
		n = limit
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]memory.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < scoreThreshold {
			continue
		}
		out = append(out, memory.SearchResult{
			ID:    r.ID,
			Score: r.Similarity,
			Point: memory.Point{ID: r.ID, Vector: r.Embedding, Payload: payload(r.Metadata)},
		})
	}
	return out, nil
}

func (s *Store) collection(name string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col = s.db.GetCollection(name, refuseEmbedding)
	if col == nil {
		if !create {
			return nil, nil
		}
		var err error
		col, err = s.db.CreateCollection(name, nil, refuseEmbedding)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
		}
	}
	s.collections[name] = col
	return col, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func payload(metadata map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if k == memory.PayloadTimestamp {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[k] = ts
				continue
			}
		}
		out[k] = v
	}
	return out
}

var _ memory.VectorStore = (*Store)(nil)
