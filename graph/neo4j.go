package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// validSchemes are the accepted bolt URI schemes.
var validSchemes = []string{
	"bolt://",
	"bolt+s://",
	"bolt+ssc://",
	"neo4j://",
	"neo4j+s://",
	"neo4j+ssc://",
}

// relationNamePattern constrains relation labels interpolated into
// Cypher. Relation types cannot be parameterized, so anything outside
// this shape is rejected before query construction.
var relationNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Neo4jConfig holds connection settings for the Neo4j store.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	// EmbeddingDimensions sizes the vector index. Zero disables
	// vector index creation.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// DefaultNeo4jConfig returns local-instance defaults.
func DefaultNeo4jConfig() Neo4jConfig {
	return Neo4jConfig{
		URI:      "bolt://localhost:7687",
		Username: "neo4j",
		Database: "neo4j",
	}
}

// Validate checks the configuration.
func (c Neo4jConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("uri is required")
	}
	for _, scheme := range validSchemes {
		if strings.HasPrefix(c.URI, scheme) {
			return nil
		}
	}
	return fmt.Errorf("uri must start with one of: %s", strings.Join(validSchemes, ", "))
}

// Neo4jStore implements Store over a bolt connection.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// Neo4jOption configures a Neo4jStore.
type Neo4jOption func(*Neo4jStore)

// WithNeo4jLogger sets the logger.
func WithNeo4jLogger(logger *slog.Logger) Neo4jOption {
	return func(s *Neo4jStore) {
		s.logger = logger
	}
}

// NewNeo4jStore connects to Neo4j, verifies connectivity, and ensures
// the uniqueness constraints the commit path relies on.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, opts ...Neo4jOption) (*Neo4jStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("neo4j config: %w", err)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	s := &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	return s, nil
}

// ensureSchema creates the constraints and indexes the store depends on.
// The document fingerprint constraint is what makes check-then-commit
// safe across multiple writer processes.
func (s *Neo4jStore) ensureSchema(ctx context.Context, embeddingDims int) error {
	statements := []string{
		`CREATE CONSTRAINT document_fingerprint IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.fingerprint IS UNIQUE`,
		`CREATE CONSTRAINT entity_identity IF NOT EXISTS
		 FOR (e:Entity) REQUIRE (e.name, e.type) IS UNIQUE`,
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return storeErr("ensure schema", err)
		}
	}

	if embeddingDims > 0 {
		stmt := fmt.Sprintf(`CREATE VECTOR INDEX entity_embedding IF NOT EXISTS
			FOR (e:Entity) ON (e.embedding)
			OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, embeddingDims)
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return storeErr("ensure vector index", err)
		}
	}

	return nil
}

func (s *Neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
}

// UpsertEntity creates or updates an entity node.
func (s *Neo4jStore) UpsertEntity(ctx context.Context, entity Entity) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, upsertEntityQuery, upsertEntityParams(entity))
	if err != nil {
		return storeErr("upsert entity", err)
	}
	return nil
}

// UpsertEdge creates a relation edge between two existing entities.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, edge Edge) error {
	query, err := upsertEdgeQuery(edge.Relation)
	if err != nil {
		return storeErr("upsert edge", err)
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	if _, err := session.Run(ctx, query, upsertEdgeParams(edge)); err != nil {
		return storeErr("upsert edge", err)
	}
	return nil
}

// HasEdge reports whether an edge with the same identity exists.
func (s *Neo4jStore) HasEdge(ctx context.Context, edge Edge) (bool, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Entity {name: $subjectName, type: $subjectType})-[r]->(o:Entity {name: $objectName, type: $objectType})
		WHERE type(r) = $relation
		RETURN count(r) > 0 AS exists`,
		map[string]any{
			"subjectName": edge.SubjectName,
			"subjectType": edge.SubjectType,
			"relation":    edge.Relation,
			"objectName":  edge.ObjectName,
			"objectType":  edge.ObjectType,
		})
	if err != nil {
		return false, storeErr("has edge", err)
	}
	return singleBool(ctx, result, "exists")
}

// HasDocument reports whether a fingerprint is already recorded.
func (s *Neo4jStore) HasDocument(ctx context.Context, fingerprint string) (bool, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (d:Document {fingerprint: $fingerprint}) RETURN count(d) > 0 AS exists`,
		map[string]any{"fingerprint": fingerprint})
	if err != nil {
		return false, storeErr("has document", err)
	}
	return singleBool(ctx, result, "exists")
}

// RecordDocument records a document fingerprint.
func (s *Neo4jStore) RecordDocument(ctx context.Context, doc DocumentRecord) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, recordDocumentQuery, recordDocumentParams(doc))
	if err != nil {
		return storeErr("record document", err)
	}
	return nil
}

// CommitDocument writes the document record, entities, and edges in one
// transaction. The fingerprint MERGE detects a concurrent commit of the
// same content and rolls the whole transaction back.
func (s *Neo4jStore) CommitDocument(ctx context.Context, doc DocumentRecord, entities []Entity, edges []Edge) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MERGE (d:Document {fingerprint: $fingerprint})
			ON CREATE SET d.id = $id, d.filename = $filename,
			              d.ingested_at = datetime($ingestedAt),
			              d.triplet_count = $tripletCount,
			              d._created = true
			WITH d, coalesce(d._created, false) AS created
			REMOVE d._created
			RETURN created`,
			recordDocumentParams(doc))
		if err != nil {
			return nil, err
		}
		created, err := singleBool(ctx, result, "created")
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, ErrDocumentExists
		}

		for _, entity := range entities {
			if _, err := tx.Run(ctx, upsertEntityQuery, upsertEntityParams(entity)); err != nil {
				return nil, err
			}
		}

		for _, edge := range edges {
			query, err := upsertEdgeQuery(edge.Relation)
			if err != nil {
				return nil, err
			}
			if _, err := tx.Run(ctx, query, upsertEdgeParams(edge)); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		if errors.Is(err, ErrDocumentExists) {
			return ErrDocumentExists
		}
		return storeErr("commit document", err)
	}

	s.logger.Debug("committed document",
		"doc_id", doc.ID,
		"entities", len(entities),
		"edges", len(edges))
	return nil
}

// Neighborhood returns edges within depth hops of the named entities.
func (s *Neo4jStore) Neighborhood(ctx context.Context, names []string, depth int) ([]Edge, error) {
	if depth < 1 {
		depth = 1
	}
	if len(names) == 0 {
		return nil, nil
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	// Path depth cannot be parameterized in Cypher.
	query := fmt.Sprintf(`
		MATCH p = (s:Entity)-[*1..%d]-(:Entity)
		WHERE s.name IN $names
		UNWIND relationships(p) AS rel
		WITH DISTINCT rel
		RETURN startNode(rel).name AS subjectName, startNode(rel).type AS subjectType,
		       type(rel) AS relation,
		       endNode(rel).name AS objectName, endNode(rel).type AS objectType,
		       coalesce(rel.confidence, 0.0) AS confidence,
		       coalesce(rel.doc_id, '') AS docID`, depth)

	result, err := session.Run(ctx, query, map[string]any{"names": names})
	if err != nil {
		return nil, storeErr("neighborhood", err)
	}

	var edges []Edge
	for result.Next(ctx) {
		record := result.Record()
		edges = append(edges, Edge{
			SubjectName: recordString(record, "subjectName"),
			SubjectType: recordString(record, "subjectType"),
			Relation:    recordString(record, "relation"),
			ObjectName:  recordString(record, "objectName"),
			ObjectType:  recordString(record, "objectType"),
			Confidence:  recordFloat(record, "confidence"),
			DocID:       recordString(record, "docID"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, storeErr("neighborhood", err)
	}
	return edges, nil
}

// SimilarEntities queries the vector index for the nearest entities.
func (s *Neo4jStore) SimilarEntities(ctx context.Context, embedding []float32, limit int) ([]Entity, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		CALL db.index.vector.queryNodes('entity_embedding', $limit, $embedding)
		YIELD node
		RETURN node.name AS name, node.type AS type`,
		map[string]any{
			"limit":     limit,
			"embedding": float32sToAny(embedding),
		})
	if err != nil {
		return nil, storeErr("similar entities", err)
	}

	var entities []Entity
	for result.Next(ctx) {
		record := result.Record()
		entities = append(entities, Entity{
			Name: recordString(record, "name"),
			Type: recordString(record, "type"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, storeErr("similar entities", err)
	}
	return entities, nil
}

// Query runs a raw query and returns rows as maps.
func (s *Neo4jStore) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, storeErr("query", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return rows, nil
}

// Stats returns graph summary counts.
func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		OPTIONAL MATCH (e:Entity)
		WITH count(e) AS entities
		OPTIONAL MATCH ()-[r]->()
		WITH entities, count(r) AS edges
		OPTIONAL MATCH (d:Document)
		RETURN entities, edges, count(d) AS documents`, nil)
	if err != nil {
		return Stats{}, storeErr("stats", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return Stats{}, storeErr("stats", err)
		}
		return Stats{}, nil
	}
	record := result.Record()
	return Stats{
		Entities:  recordInt(record, "entities"),
		Edges:     recordInt(record, "edges"),
		Documents: recordInt(record, "documents"),
	}, nil
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const upsertEntityQuery = `
	MERGE (e:Entity {name: $name, type: $type})
	ON CREATE SET e.created_at = datetime()
	SET e.embedding = CASE WHEN size($embedding) > 0 THEN $embedding ELSE e.embedding END`

func upsertEntityParams(entity Entity) map[string]any {
	return map[string]any{
		"name":      entity.Name,
		"type":      entity.Type,
		"embedding": float32sToAny(entity.Embedding),
	}
}

// upsertEdgeQuery builds the MERGE statement for one relation type. The
// relation label is interpolated, so it is validated first.
func upsertEdgeQuery(relation string) (string, error) {
	if !relationNamePattern.MatchString(relation) {
		return "", fmt.Errorf("invalid relation label: %q", relation)
	}
	return fmt.Sprintf(`
		MERGE (s:Entity {name: $subjectName, type: $subjectType})
		MERGE (o:Entity {name: $objectName, type: $objectType})
		MERGE (s)-[r:%s]->(o)
		ON CREATE SET r.confidence = $confidence, r.doc_id = $docID, r.created_at = datetime()`,
		relation), nil
}

func upsertEdgeParams(edge Edge) map[string]any {
	return map[string]any{
		"subjectName": edge.SubjectName,
		"subjectType": edge.SubjectType,
		"objectName":  edge.ObjectName,
		"objectType":  edge.ObjectType,
		"confidence":  edge.Confidence,
		"docID":       edge.DocID,
	}
}

const recordDocumentQuery = `
	MERGE (d:Document {fingerprint: $fingerprint})
	ON CREATE SET d.id = $id, d.filename = $filename,
	              d.ingested_at = datetime($ingestedAt),
	              d.triplet_count = $tripletCount`

func recordDocumentParams(doc DocumentRecord) map[string]any {
	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	return map[string]any{
		"fingerprint":  doc.Fingerprint,
		"id":           doc.ID,
		"filename":     doc.Filename,
		"ingestedAt":   ingestedAt.UTC().Format(time.RFC3339),
		"tripletCount": doc.TripletCount,
	}
}

func singleBool(ctx context.Context, result neo4j.ResultWithContext, key string) (bool, error) {
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	value, ok := result.Record().Get(key)
	if !ok {
		return false, nil
	}
	b, _ := value.(bool)
	return b, nil
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

func recordFloat(record *neo4j.Record, key string) float64 {
	value, ok := record.Get(key)
	if !ok {
		return 0
	}
	f, _ := value.(float64)
	return f
}

func recordInt(record *neo4j.Record, key string) int64 {
	value, ok := record.Get(key)
	if !ok {
		return 0
	}
	i, _ := value.(int64)
	return i
}

// float32sToAny converts an embedding for the bolt parameter map.
func float32sToAny(values []float32) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
