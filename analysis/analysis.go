// Package analysis enriches the graph with structural metrics after
// ingestion.
//
// PageRank scores and Louvain community IDs are written back onto
// entity nodes as pageRankScore and communityId properties through the
// store's Graph Data Science procedures. The in-memory store has no
// procedure support, so analysis requires the Neo4j backend.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/kgraph/graph"
)

const (
	projectionName    = "kgraph_analysis"
	pageRankProperty  = "pageRankScore"
	communityProperty = "communityId"
)

// Result summarizes one analysis run.
type Result struct {
	Nodes          int64
	Relationships  int64
	PageRankWrites int64
	CommunityCount int64
}

// Runner executes graph algorithms through the store's query interface.
type Runner struct {
	store  graph.Store
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(store graph.Store, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("analysis: store is required")
	}
	r := &Runner{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run projects the whole graph, runs PageRank and Louvain, writes the
// node properties, and drops the projection.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.dropProjection(ctx); err != nil {
		return nil, err
	}

	result := &Result{}

	rows, err := r.store.Query(ctx,
		`CALL gds.graph.project($name, '*', '*')
		 YIELD nodeCount, relationshipCount
		 RETURN nodeCount, relationshipCount`,
		map[string]any{"name": projectionName})
	if err != nil {
		return nil, fmt.Errorf("project graph: %w", err)
	}
	if len(rows) > 0 {
		result.Nodes = rowInt(rows[0], "nodeCount")
		result.Relationships = rowInt(rows[0], "relationshipCount")
	}
	defer func() {
		if err := r.dropProjection(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to drop analysis projection", "error", err)
		}
	}()

	r.logger.Info("graph projected for analysis",
		"nodes", result.Nodes,
		"relationships", result.Relationships)

	rows, err = r.store.Query(ctx,
		`CALL gds.pageRank.write($name, {
		   writeProperty: $property,
		   maxIterations: 20,
		   dampingFactor: 0.85
		 })
		 YIELD nodePropertiesWritten
		 RETURN nodePropertiesWritten`,
		map[string]any{"name": projectionName, "property": pageRankProperty})
	if err != nil {
		return nil, fmt.Errorf("pagerank: %w", err)
	}
	if len(rows) > 0 {
		result.PageRankWrites = rowInt(rows[0], "nodePropertiesWritten")
	}

	rows, err = r.store.Query(ctx,
		`CALL gds.louvain.write($name, {writeProperty: $property})
		 YIELD communityCount
		 RETURN communityCount`,
		map[string]any{"name": projectionName, "property": communityProperty})
	if err != nil {
		return nil, fmt.Errorf("louvain: %w", err)
	}
	if len(rows) > 0 {
		result.CommunityCount = rowInt(rows[0], "communityCount")
	}

	r.logger.Info("graph analysis complete",
		"pagerank_writes", result.PageRankWrites,
		"communities", result.CommunityCount)
	return result, nil
}

// TopEntities returns the highest-ranked entities after analysis.
func (r *Runner) TopEntities(ctx context.Context, limit int) ([]RankedEntity, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.store.Query(ctx, fmt.Sprintf(`
		MATCH (e:Entity)
		WHERE e.%s IS NOT NULL
		RETURN e.name AS name, e.type AS type,
		       e.%s AS score, coalesce(e.%s, -1) AS community
		ORDER BY score DESC
		LIMIT $limit`, pageRankProperty, pageRankProperty, communityProperty),
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("top entities: %w", err)
	}

	entities := make([]RankedEntity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, RankedEntity{
			Name:      rowString(row, "name"),
			Type:      rowString(row, "type"),
			PageRank:  rowFloat(row, "score"),
			Community: rowInt(row, "community"),
		})
	}
	return entities, nil
}

// RankedEntity is one entity with its analysis properties.
type RankedEntity struct {
	Name      string
	Type      string
	PageRank  float64
	Community int64
}

func (r *Runner) dropProjection(ctx context.Context) error {
	_, err := r.store.Query(ctx,
		`CALL gds.graph.drop($name, false) YIELD graphName RETURN graphName`,
		map[string]any{"name": projectionName})
	if err != nil {
		return fmt.Errorf("drop projection: %w", err)
	}
	return nil
}

func rowInt(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func rowFloat(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func rowString(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}
