package extract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/llm"
	"github.com/c360studio/kgraph/ontology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOntologyYAML = `
domain: energy
version: "1.0"
entity_types:
  - TECHNOLOGY
  - MATERIAL
relation_types:
  - USES
allowed_relations:
  TECHNOLOGY:
    - USES
`

func testOntology(t *testing.T) *ontology.Ontology {
	t.Helper()
	ont, err := ontology.Parse([]byte(testOntologyYAML))
	require.NoError(t, err)
	return ont
}

// fakeCompleter returns a canned response or error and records requests.
type fakeCompleter struct {
	content  string
	err      error
	requests []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{RequestID: "req-1", Content: f.content}, nil
}

func TestExtractor_Extract_ParsesTriplets(t *testing.T) {
	client := &fakeCompleter{content: "```json\n" + `[
  {"subject_name": "Solar Panel", "subject_type": "TECHNOLOGY", "relation": "USES", "object_name": "Silicon", "object_type": "MATERIAL", "confidence": 0.9}
]` + "\n```"}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	triplets, err := e.Extract(context.Background(), "Solar panels use silicon.")
	require.NoError(t, err)
	require.Len(t, triplets, 1)
	assert.Equal(t, "Solar Panel", triplets[0].SubjectName)
	assert.Equal(t, "TECHNOLOGY", triplets[0].SubjectType)
	assert.Equal(t, "USES", triplets[0].Relation)
	assert.Equal(t, "Silicon", triplets[0].ObjectName)
	assert.Equal(t, "MATERIAL", triplets[0].ObjectType)
}

func TestExtractor_Extract_PromptEmbedsVocabulary(t *testing.T) {
	client := &fakeCompleter{content: "[]"}

	e, err := extract.New(client, testOntology(t), extract.WithMaxTriplets(7))
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "some text")
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	prompt := client.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "TECHNOLOGY")
	assert.Contains(t, prompt, "MATERIAL")
	assert.Contains(t, prompt, "USES")
	assert.Contains(t, prompt, "TECHNOLOGY may emit: USES")
	assert.Contains(t, prompt, "up to 7")
	assert.Contains(t, prompt, "some text")
}

func TestExtractor_Extract_EmptyArrayIsNotAnError(t *testing.T) {
	client := &fakeCompleter{content: "[]"}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	triplets, err := e.Extract(context.Background(), "nothing relevant here")
	require.NoError(t, err)
	assert.Empty(t, triplets)
}

func TestExtractor_Extract_MalformedResponse(t *testing.T) {
	client := &fakeCompleter{content: "I could not find any triplets, sorry!"}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "text")
	require.Error(t, err)

	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extract.ReasonMalformed, extErr.Reason)
}

func TestExtractor_Extract_TransientFailureIsRateLimited(t *testing.T) {
	client := &fakeCompleter{err: llm.NewTransientError(errors.New("429 too many requests"))}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "text")
	require.Error(t, err)

	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extract.ReasonRateLimited, extErr.Reason)
}

func TestExtractor_Extract_DeadlineIsTimeout(t *testing.T) {
	client := &fakeCompleter{err: context.DeadlineExceeded}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "text")

	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extract.ReasonTimeout, extErr.Reason)
}

func TestExtractor_Extract_TruncatesToBudget(t *testing.T) {
	client := &fakeCompleter{content: `[
  {"subject_name": "A", "subject_type": "TECHNOLOGY", "relation": "USES", "object_name": "B", "object_type": "MATERIAL"},
  {"subject_name": "C", "subject_type": "TECHNOLOGY", "relation": "USES", "object_name": "D", "object_type": "MATERIAL"},
  {"subject_name": "E", "subject_type": "TECHNOLOGY", "relation": "USES", "object_name": "F", "object_type": "MATERIAL"}
]`}

	e, err := extract.New(client, testOntology(t), extract.WithMaxTriplets(2))
	require.NoError(t, err)

	triplets, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, triplets, 2)
}

func TestExtractor_Extract_EmptyChunk(t *testing.T) {
	client := &fakeCompleter{content: "[]"}

	e, err := extract.New(client, testOntology(t))
	require.NoError(t, err)

	triplets, err := e.Extract(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, triplets)
	assert.Empty(t, client.requests, "empty chunk should not call the oracle")
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := extract.New(nil, testOntology(t))
	assert.Error(t, err)

	_, err = extract.New(&fakeCompleter{}, nil)
	assert.Error(t, err)
}
