package memory

import "context"

// SemanticTextMemory is the memory capability available to functions through
// their Context.
type SemanticTextMemory interface {
	// SaveInformation stores text under id in collection.
	SaveInformation(ctx context.Context, collection, text, id string, opts ...RecordOption) error
	// SaveReference stores a pointer to text held by an external source.
	SaveReference(ctx context.Context, collection, text, externalID, externalSourceName string, opts ...RecordOption) error
	// Get returns the record stored under id, or nil when there is none.
	Get(ctx context.Context, collection, id string) (*QueryResult, error)
	// Remove deletes the record stored under id. Unknown ids are ignored.
	Remove(ctx context.Context, collection, id string) error
	// Search returns up to limit records whose relevance to query is at
	// least minRelevance, most relevant first.
	Search(ctx context.Context, collection, query string, limit int, minRelevance float32) ([]QueryResult, error)
	// Collections lists the known collections.
	Collections(ctx context.Context) ([]string, error)
}

// QueryResult is a memory record returned by Get or Search.
type QueryResult struct {
	ID                 string    `json:"id"`
	Text               string    `json:"text"`
	Description        string    `json:"description,omitempty"`
	AdditionalMetadata string    `json:"additional_metadata,omitempty"`
	ExternalSourceName string    `json:"external_source_name,omitempty"`
	IsReference        bool      `json:"is_reference"`
	Relevance          float32   `json:"relevance"`
	Embedding          []float32 `json:"embedding,omitempty"`
}

// RecordOption sets optional record fields on save.
type RecordOption func(*recordOptions)

type recordOptions struct {
	description        string
	additionalMetadata string
}

// WithDescription attaches a description to the saved record.
func WithDescription(d string) RecordOption {
	return func(o *recordOptions) { o.description = d }
}

// WithAdditionalMetadata attaches free-form metadata to the saved record.
func WithAdditionalMetadata(m string) RecordOption {
	return func(o *recordOptions) { o.additionalMetadata = m }
}

// NullMemory is the memory used when none is configured. Saves are dropped
// and lookups return nothing.
type NullMemory struct{}

// Null is the shared NullMemory value.
var Null SemanticTextMemory = NullMemory{}

func (NullMemory) SaveInformation(context.Context, string, string, string, ...RecordOption) error {
	return nil
}

func (NullMemory) SaveReference(context.Context, string, string, string, string, ...RecordOption) error {
	return nil
}

func (NullMemory) Get(context.Context, string, string) (*QueryResult, error) { return nil, nil }

func (NullMemory) Remove(context.Context, string, string) error { return nil }

func (NullMemory) Search(context.Context, string, string, int, float32) ([]QueryResult, error) {
	return nil, nil
}

func (NullMemory) Collections(context.Context) ([]string, error) { return nil, nil }
