package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
)

// Payload keys written for every record.
const (
	PayloadID                 = "id"
	PayloadText               = "text"
	PayloadDescription        = "description"
	PayloadAdditionalMetadata = "additional_metadata"
	PayloadExternalSource     = "external_source_name"
	PayloadIsReference        = "is_reference"
	PayloadTimestamp          = "timestamp"
)

// VectorMemory implements SemanticTextMemory on top of a VectorStore and an
// Embedder. Collections are created on first save with the dimension of the
// first embedding.
type VectorMemory struct {
	store    VectorStore
	embedder Embedder

	mu    sync.Mutex
	known map[string]bool
}

// NewVectorMemory creates a new VectorMemory instance.
func NewVectorMemory(store VectorStore, embedder Embedder) *VectorMemory {
	return &VectorMemory{
		store:    store,
		embedder: embedder,
		known:    make(map[string]bool),
	}
}

// SaveInformation embeds text and stores it under id.
func (vm *VectorMemory) SaveInformation(ctx context.Context, collection, text, id string, opts ...RecordOption) error {
	return vm.save(ctx, collection, text, id, "", false, opts)
}

// SaveReference embeds text and stores it as a reference to externalID in
// externalSourceName.
func (vm *VectorMemory) SaveReference(ctx context.Context, collection, text, externalID, externalSourceName string, opts ...RecordOption) error {
	return vm.save(ctx, collection, text, externalID, externalSourceName, true, opts)
}

func (vm *VectorMemory) save(ctx context.Context, collection, text, id, source string, reference bool, opts []RecordOption) error {
	if collection == "" || id == "" {
		return kerrors.New(kerrors.CodeInvalidInput, "memory collection and id are required", nil)
	}
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}

	vector, err := vm.embedder.Embed(ctx, text)
	if err != nil {
		return kerrors.New(kerrors.CodeMemoryError, "failed to embed text", err)
	}
	if err := vm.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}

	now := time.Now().Unix()
	point := Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			PayloadID:                 id,
			PayloadText:               text,
			PayloadDescription:        o.description,
			PayloadAdditionalMetadata: o.additionalMetadata,
			PayloadExternalSource:     source,
			PayloadIsReference:        strconv.FormatBool(reference),
			PayloadTimestamp:          now,
		},
		Timestamp: now,
	}

	if err := vm.store.Upsert(ctx, collection, []Point{point}); err != nil {
		return kerrors.New(kerrors.CodeMemoryError, "failed to store point", err).
			WithContext("collection", collection)
	}
	return nil
}

// Get returns the record stored under id.
func (vm *VectorMemory) Get(ctx context.Context, collection, id string) (*QueryResult, error) {
	p, err := vm.store.Get(ctx, collection, id)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemoryError, "failed to get point", err).
			WithContext("collection", collection)
	}
	if p == nil {
		return nil, nil
	}
	r := resultFromPayload(p.ID, p.Payload)
	r.Embedding = p.Vector
	return &r, nil
}

// Remove deletes the record stored under id.
func (vm *VectorMemory) Remove(ctx context.Context, collection, id string) error {
	if err := vm.store.Delete(ctx, collection, id); err != nil {
		return kerrors.New(kerrors.CodeMemoryError, "failed to remove point", err).
			WithContext("collection", collection).
			WithContext("id", id)
	}
	return nil
}

// Search embeds query and returns the nearest records.
func (vm *VectorMemory) Search(ctx context.Context, collection, query string, limit int, minRelevance float32) ([]QueryResult, error) {
	if limit <= 0 {
		limit = 1
	}
	vector, err := vm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemoryError, "failed to embed query", err)
	}

	results, err := vm.store.Search(ctx, collection, vector, limit, minRelevance)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemoryError, "failed to search", err).
			WithContext("collection", collection)
	}

	out := make([]QueryResult, 0, len(results))
	for _, r := range results {
		qr := resultFromPayload(r.ID, r.Point.Payload)
		qr.Relevance = r.Score
		out = append(out, qr)
	}
	return out, nil
}

// Collections lists the store's collections.
func (vm *VectorMemory) Collections(ctx context.Context) ([]string, error) {
	return vm.store.Collections(ctx)
}

func (vm *VectorMemory) ensureCollection(ctx context.Context, collection string, dim int) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.known[collection] {
		return nil
	}

	existing, err := vm.store.Collections(ctx)
	if err != nil {
		return kerrors.New(kerrors.CodeMemoryError, "failed to list collections", err)
	}
	for _, name := range existing {
		if name == collection {
			vm.known[collection] = true
			return nil
		}
	}

	if err := vm.store.CreateCollection(ctx, collection, uint64(dim)); err != nil {
		return kerrors.New(kerrors.CodeMemoryError, fmt.Sprintf("failed to create collection %q", collection), err)
	}
	vm.known[collection] = true
	return nil
}

func resultFromPayload(id string, payload map[string]interface{}) QueryResult {
	str := func(key string) string {
		if v, ok := payload[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	r := QueryResult{
		ID:                 id,
		Text:               str(PayloadText),
		Description:        str(PayloadDescription),
		AdditionalMetadata: str(PayloadAdditionalMetadata),
		ExternalSourceName: str(PayloadExternalSource),
	}
	if stored := str(PayloadID); stored != "" {
		r.ID = stored
	}
	r.IsReference, _ = strconv.ParseBool(str(PayloadIsReference))
	return r
}

var _ SemanticTextMemory = (*VectorMemory)(nil)
