package memory

import (
	"context"

	"github.com/jllopis/semkernel/pkg/llm"
)

// Embedder turns text into the vectors records are ranked by.
type Embedder = llm.Embedder

// VectorStore is the storage behind VectorMemory. Collections hold points
// of one dimension; record ids are unique per collection.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	Collections(ctx context.Context) ([]string, error)

	// Upsert replaces points that share an id.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Get returns nil, nil for an unknown id or collection.
	Get(ctx context.Context, collection, id string) (*Point, error)
	// Delete ignores ids that are not stored.
	Delete(ctx context.Context, collection string, ids ...string) error
	// Search ranks by similarity, best first, dropping scores below
	// minScore. A limit of zero or less returns every match.
	Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]SearchResult, error)
}

// Point is a stored record: its embedding plus the payload written by
// VectorMemory.
type Point struct {
	ID        string                 `json:"id"`
	Vector    []float32              `json:"vector"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// SearchResult pairs a point with its similarity to the query vector.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}
