package graph

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for offline runs and tests. It
// honors the same identity and fingerprint-uniqueness semantics as the
// Neo4j store.
type MemoryStore struct {
	mu        sync.RWMutex
	entities  map[string]Entity
	edges     map[string]Edge
	documents map[string]DocumentRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]Entity),
		edges:     make(map[string]Edge),
		documents: make(map[string]DocumentRecord),
	}
}

// UpsertEntity creates or updates an entity node.
func (s *MemoryStore) UpsertEntity(_ context.Context, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertEntityLocked(entity)
	return nil
}

func (s *MemoryStore) upsertEntityLocked(entity Entity) {
	key := entity.Identity()
	if existing, ok := s.entities[key]; ok {
		// Keep an existing embedding unless the new one is set
		if len(entity.Embedding) == 0 {
			entity.Embedding = existing.Embedding
		}
	}
	s.entities[key] = entity
}

// UpsertEdge creates an edge, implicitly creating its endpoints.
func (s *MemoryStore) UpsertEdge(_ context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertEdgeLocked(edge)
	return nil
}

func (s *MemoryStore) upsertEdgeLocked(edge Edge) {
	for _, entity := range []Entity{
		{Name: edge.SubjectName, Type: edge.SubjectType},
		{Name: edge.ObjectName, Type: edge.ObjectType},
	} {
		if _, ok := s.entities[entity.Identity()]; !ok {
			s.entities[entity.Identity()] = entity
		}
	}
	key := edge.Identity()
	if _, ok := s.edges[key]; !ok {
		s.edges[key] = edge
	}
}

// HasEdge reports whether an edge with the same identity exists.
func (s *MemoryStore) HasEdge(_ context.Context, edge Edge) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[edge.Identity()]
	return ok, nil
}

// HasDocument reports whether a fingerprint is recorded.
func (s *MemoryStore) HasDocument(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[fingerprint]
	return ok, nil
}

// RecordDocument records a document fingerprint.
func (s *MemoryStore) RecordDocument(_ context.Context, doc DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.Fingerprint]; !ok {
		s.documents[doc.Fingerprint] = doc
	}
	return nil
}

// CommitDocument applies the whole commit under one lock. Nothing is
// written when the fingerprint is already recorded.
func (s *MemoryStore) CommitDocument(_ context.Context, doc DocumentRecord, entities []Entity, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.Fingerprint]; ok {
		return ErrDocumentExists
	}
	s.documents[doc.Fingerprint] = doc

	for _, entity := range entities {
		s.upsertEntityLocked(entity)
	}
	for _, edge := range edges {
		s.upsertEdgeLocked(edge)
	}
	return nil
}

// Neighborhood walks edges breadth-first up to depth hops, in both
// directions, from any entity whose name matches.
func (s *MemoryStore) Neighborhood(_ context.Context, names []string, depth int) ([]Edge, error) {
	if depth < 1 {
		depth = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	frontier := make(map[string]struct{})
	for _, name := range names {
		for key, entity := range s.entities {
			if entity.Name == name {
				frontier[key] = struct{}{}
			}
		}
	}

	visited := make(map[string]struct{})
	collected := make(map[string]Edge)

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next := make(map[string]struct{})
		for key := range frontier {
			visited[key] = struct{}{}
		}
		for edgeKey, edge := range s.edges {
			subjectKey := Entity{Name: edge.SubjectName, Type: edge.SubjectType}.Identity()
			objectKey := Entity{Name: edge.ObjectName, Type: edge.ObjectType}.Identity()

			_, fromSubject := frontier[subjectKey]
			_, fromObject := frontier[objectKey]
			if !fromSubject && !fromObject {
				continue
			}

			collected[edgeKey] = edge
			for _, key := range []string{subjectKey, objectKey} {
				if _, seen := visited[key]; !seen {
					next[key] = struct{}{}
				}
			}
		}
		frontier = next
	}

	edges := make([]Edge, 0, len(collected))
	for _, edge := range collected {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Identity() < edges[j].Identity()
	})
	return edges, nil
}

// SimilarEntities ranks entities by cosine similarity to the query
// vector.
func (s *MemoryStore) SimilarEntities(_ context.Context, embedding []float32, limit int) ([]Entity, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entity Entity
		score  float64
	}
	var candidates []scored
	for _, entity := range s.entities {
		if len(entity.Embedding) != len(embedding) {
			continue
		}
		candidates = append(candidates, scored{entity, cosineSimilarity(embedding, entity.Embedding)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	entities := make([]Entity, 0, len(candidates))
	for _, c := range candidates {
		entities = append(entities, c.entity)
	}
	return entities, nil
}

// Query is unsupported: the in-memory store has no query language or
// procedures.
func (s *MemoryStore) Query(_ context.Context, _ string, _ map[string]any) ([]map[string]any, error) {
	return nil, ErrUnsupported
}

// Stats returns graph summary counts.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entities:  int64(len(s.entities)),
		Edges:     int64(len(s.edges)),
		Documents: int64(len(s.documents)),
	}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
