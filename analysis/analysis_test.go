package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/c360studio/kgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// procStore fakes the procedure surface on top of the in-memory store.
type procStore struct {
	*graph.MemoryStore
	queries []string
	rows    map[string][]map[string]any
}

func newProcStore() *procStore {
	return &procStore{
		MemoryStore: graph.NewMemoryStore(),
		rows:        make(map[string][]map[string]any),
	}
}

func (s *procStore) Query(_ context.Context, query string, _ map[string]any) ([]map[string]any, error) {
	s.queries = append(s.queries, query)
	for fragment, rows := range s.rows {
		if strings.Contains(query, fragment) {
			return rows, nil
		}
	}
	return nil, nil
}

func TestRunner_Run(t *testing.T) {
	store := newProcStore()
	store.rows["gds.graph.project"] = []map[string]any{{"nodeCount": int64(12), "relationshipCount": int64(30)}}
	store.rows["gds.pageRank.write"] = []map[string]any{{"nodePropertiesWritten": int64(12)}}
	store.rows["gds.louvain.write"] = []map[string]any{{"communityCount": int64(3)}}

	r, err := New(store)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(12), result.Nodes)
	assert.Equal(t, int64(30), result.Relationships)
	assert.Equal(t, int64(12), result.PageRankWrites)
	assert.Equal(t, int64(3), result.CommunityCount)

	joined := strings.Join(store.queries, "\n")
	assert.Contains(t, joined, "gds.graph.project")
	assert.Contains(t, joined, "pageRankScore")
	assert.Contains(t, joined, "communityId")
	assert.Contains(t, joined, "dampingFactor: 0.85")

	// Projection dropped before and after the algorithms
	dropCount := strings.Count(joined, "gds.graph.drop")
	assert.Equal(t, 2, dropCount)
}

func TestRunner_TopEntities(t *testing.T) {
	store := newProcStore()
	store.rows["ORDER BY score DESC"] = []map[string]any{
		{"name": "Solar Panel", "type": "TECHNOLOGY", "score": 0.42, "community": int64(1)},
		{"name": "Silicon", "type": "MATERIAL", "score": 0.17, "community": int64(1)},
	}

	r, err := New(store)
	require.NoError(t, err)

	top, err := r.TopEntities(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Solar Panel", top[0].Name)
	assert.InDelta(t, 0.42, top[0].PageRank, 1e-9)
	assert.Equal(t, int64(1), top[0].Community)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
