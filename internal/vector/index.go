// Package vector provides namespaced vector stores for chunk embeddings.
// A namespace is an embedding-model identity; vectors of different models never mix.
package vector

import "context"

// Store defines vector storage and similarity search, partitioned by namespace.
type Store interface {
	// Upsert adds points to namespace, replacing any point with the same ID.
	Upsert(ctx context.Context, namespace string, points []Point) error
	// Search returns the top-k points in namespace by similarity to query.
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*Hit, error)
	// Contains reports which of ids are present in namespace.
	Contains(ctx context.Context, namespace string, ids []string) (map[string]bool, error)
	// Get returns the point stored under id, or errdefs.ErrNotFound.
	Get(ctx context.Context, namespace, id string) (*Hit, error)
	// IDs returns every point ID in namespace, sorted.
	IDs(ctx context.Context, namespace string) ([]string, error)
	// Count returns the number of points in namespace.
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

// Persister is implemented by stores that live in process memory and snapshot to disk.
type Persister interface {
	Save(path string) error
	Load(path string) error
}

// Point is a chunk embedding with the text and metadata stored next to it.
type Point struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Hit is a single search result. Score is the inner product (cosine for normalized vectors).
// ID is empty when a remote payload carried no identity.
type Hit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}
