// Package qdrant provides the Qdrant vector store client.
package qdrant

import (
	"context"
)

// Client provides a unified interface to the Qdrant vector database.
// Implementations are transport-specific; callers depend only on this
// interface so tests can substitute in-memory fakes.
type Client interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Point operations
	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error)

	// Health
	Health(ctx context.Context) error

	// Close closes the client connection
	Close() error
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize uint64

	// PointCount is the number of vectors in the collection.
	PointCount uint64
}

// Point represents a vector point. IDs are numeric: they are derived from
// record store identifiers by the vectorid package, which makes upserts
// idempotent overwrites.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint represents a search result with similarity score.
type ScoredPoint struct {
	Point
	Score float32
}
