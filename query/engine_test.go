package query_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/llm"
	"github.com/c360studio/kgraph/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM returns responses in sequence and records the requests.
type scriptedLLM struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return &llm.Response{Content: s.responses[i]}, nil
}

func seededStore(t *testing.T) *graph.MemoryStore {
	t.Helper()
	store := graph.NewMemoryStore()
	require.NoError(t, store.UpsertEdge(context.Background(), graph.Edge{
		SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY",
		Relation:   "USES",
		ObjectName: "Silicon", ObjectType: "MATERIAL",
		DocID: "doc.solar.abc",
	}))
	return store
}

func TestEngine_Ask_AnswersWithCitedPaths(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`["solar panel"]`,
		"Solar panels use silicon as their core material.",
	}}

	en, err := query.New(client, seededStore(t))
	require.NoError(t, err)

	answer, err := en.Ask(context.Background(), "What do solar panels use?")
	require.NoError(t, err)

	assert.Equal(t, "Solar panels use silicon as their core material.", answer.Text)
	require.Len(t, answer.Paths, 1)
	assert.Contains(t, answer.Paths[0], "Solar Panel (TECHNOLOGY) -[USES]-> Silicon (MATERIAL)")
	assert.Contains(t, answer.Paths[0], "doc.solar.abc")

	// The synthesis prompt must carry the retrieved facts
	synthesis := client.requests[len(client.requests)-1]
	assert.Contains(t, synthesis.Messages[1].Content, "Solar Panel")
}

func TestEngine_Ask_EmptyGraphShortCircuits(t *testing.T) {
	client := &scriptedLLM{responses: []string{`["anything"]`}}

	en, err := query.New(client, graph.NewMemoryStore())
	require.NoError(t, err)

	answer, err := en.Ask(context.Background(), "What is in the graph?")
	require.NoError(t, err)

	assert.Contains(t, answer.Text, "no information")
	assert.Empty(t, answer.Paths)
	assert.Len(t, client.requests, 1, "no synthesis call without retrieved facts")
}

func TestEngine_Ask_KeywordFallbackOnMalformedResponse(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		"not json at all",
		"answer",
	}}

	en, err := query.New(client, seededStore(t))
	require.NoError(t, err)

	// Question text is the fallback keyword; "Solar Panel" won't match,
	// so the graph returns nothing
	answer, err := en.Ask(context.Background(), "unrelated question")
	require.NoError(t, err)
	assert.Empty(t, answer.Paths)
}

func TestEngine_Ask_LLMFailureIsUserReadable(t *testing.T) {
	client := &scriptedLLM{err: llm.NewTransientError(errors.New("429 too many requests"))}

	en, err := query.New(client, seededStore(t))
	require.NoError(t, err)

	_, err = en.Ask(context.Background(), "What do solar panels use?")
	require.Error(t, err)

	var svcErr *query.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.NotContains(t, err.Error(), "429", "raw fault must not leak to the user")
}

func TestEngine_Ask_ReducesOversizedContext(t *testing.T) {
	store := graph.NewMemoryStore()
	for i := 0; i < 40; i++ {
		name := strings.Repeat("x", 50) + string(rune('a'+i%26))
		require.NoError(t, store.UpsertEdge(context.Background(), graph.Edge{
			SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY",
			Relation:   "USES",
			ObjectName: name, ObjectType: "MATERIAL",
		}))
	}

	client := &scriptedLLM{responses: []string{
		`["solar panel"]`,
		"condensed facts",
		"condensed facts",
		"final answer",
	}}

	en, err := query.New(client, store, query.WithContextBudget(100))
	require.NoError(t, err)

	answer, err := en.Ask(context.Background(), "What do solar panels use?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.Greater(t, len(client.requests), 2, "reduction rounds must happen before synthesis")
}

func TestEngine_Ask_EmptyQuestion(t *testing.T) {
	en, err := query.New(&scriptedLLM{responses: []string{"[]"}}, graph.NewMemoryStore())
	require.NoError(t, err)

	_, err = en.Ask(context.Background(), "   ")
	assert.Error(t, err)
}
