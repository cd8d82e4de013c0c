// Package graph defines the store contract for the knowledge graph and
// its Neo4j and in-memory implementations.
//
// The write path is strict: only schema-validated triplets reach
// UpsertEdge/CommitDocument. The read path exposes traversal and raw
// query access for the query engine and graph analysis. All writes are
// idempotent on identity, so replaying a commit never duplicates nodes
// or edges.
package graph

import (
	"context"
	"time"
)

// Entity is a graph node keyed by (name, type).
type Entity struct {
	Name string
	Type string

	// Embedding is the optional text embedding stored for vector
	// similarity retrieval.
	Embedding []float32
}

// Identity returns the dedup key for an entity.
func (e Entity) Identity() string {
	return e.Type + ":" + e.Name
}

// Edge is a directed relation between two entities.
type Edge struct {
	SubjectName string
	SubjectType string
	Relation    string
	ObjectName  string
	ObjectType  string
	Confidence  float64

	// DocID records which document asserted this edge.
	DocID string
}

// Identity returns the dedup key for an edge.
func (e Edge) Identity() string {
	return e.SubjectType + ":" + e.SubjectName + "|" + e.Relation + "|" + e.ObjectType + ":" + e.ObjectName
}

// DocumentRecord marks a document as ingested, keyed by its content
// fingerprint.
type DocumentRecord struct {
	Fingerprint  string
	ID           string
	Filename     string
	IngestedAt   time.Time
	TripletCount int
}

// Stats summarizes graph contents for status reporting.
type Stats struct {
	Entities  int64
	Edges     int64
	Documents int64
}

// Store is the graph persistence contract.
type Store interface {
	// UpsertEntity creates or updates an entity node. Idempotent on
	// (name, type).
	UpsertEntity(ctx context.Context, entity Entity) error

	// UpsertEdge creates a relation edge. Idempotent on edge identity.
	UpsertEdge(ctx context.Context, edge Edge) error

	// HasEdge reports whether an edge with the same identity exists.
	HasEdge(ctx context.Context, edge Edge) (bool, error)

	// HasDocument reports whether a document fingerprint is recorded.
	HasDocument(ctx context.Context, fingerprint string) (bool, error)

	// RecordDocument records a document fingerprint.
	RecordDocument(ctx context.Context, doc DocumentRecord) error

	// CommitDocument atomically writes a document record plus all of
	// its entities and edges. The fingerprint acts as a uniqueness
	// guard: if another writer committed the same fingerprint first,
	// the whole commit rolls back with ErrDocumentExists.
	CommitDocument(ctx context.Context, doc DocumentRecord, entities []Entity, edges []Edge) error

	// Neighborhood returns edges within depth hops of the named
	// entities.
	Neighborhood(ctx context.Context, names []string, depth int) ([]Edge, error)

	// SimilarEntities returns the entities whose embeddings are most
	// similar to the query vector.
	SimilarEntities(ctx context.Context, embedding []float32, limit int) ([]Entity, error)

	// Query runs a raw read/write query against the store. Used by
	// graph analysis for procedure calls; not part of the ingestion
	// path.
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Stats returns graph summary counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases store resources.
	Close(ctx context.Context) error
}
