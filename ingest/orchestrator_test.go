package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/ingest"
	"github.com/c360studio/kgraph/ontology"
	"github.com/c360studio/kgraph/schema"
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

// fakeExtractor returns canned triplets and counts oracle calls.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	triplets []extract.CandidateTriplet
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, chunk string) ([]extract.CandidateTriplet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.triplets, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	ont, err := ontology.Parse([]byte(testOntologyYAML))
	require.NoError(t, err)
	v, err := schema.New(ont)
	require.NoError(t, err)
	return v
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newOrchestrator(t *testing.T, store graph.Store, ex ingest.Extractor) *ingest.Orchestrator {
	t.Helper()
	o, err := ingest.New(store, ex, newValidator(t), nil, nil)
	require.NoError(t, err)
	return o
}

func TestRun_SecondRunSkipsWithoutExtraction(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "solar.md", "# Solar\n\nSolar panels use silicon.\n")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{triplets: []extract.CandidateTriplet{
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
	}}
	o := newOrchestrator(t, store, ex)

	first, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Ingested)
	callsAfterFirst := ex.callCount()
	assert.Greater(t, callsAfterFirst, 0)

	statsAfterFirst, err := store.Stats(context.Background())
	require.NoError(t, err)

	second, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Ingested)
	assert.Equal(t, callsAfterFirst, ex.callCount(), "skip must short-circuit extraction")

	statsAfterSecond, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, statsAfterFirst, statsAfterSecond, "graph unchanged on second run")
}

func TestRun_SameContentDifferentFilename(t *testing.T) {
	dir := t.TempDir()
	content := "# Solar\n\nSolar panels use silicon.\n"
	writeDoc(t, dir, "a.md", content)
	writeDoc(t, dir, "b.md", content)

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{triplets: []extract.CandidateTriplet{
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
	}}
	o := newOrchestrator(t, store, ex)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ingested)
	assert.Equal(t, 1, summary.Skipped)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)
}

func TestRun_OneByteDifferenceIngestsBoth(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "Solar panels use silicon.")
	writeDoc(t, dir, "b.md", "Solar panels use silicon!")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{}
	o := newOrchestrator(t, store, ex)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Ingested)

	require.Len(t, summary.Results, 2)
	assert.NotEqual(t, summary.Results[0].Fingerprint, summary.Results[1].Fingerprint)
}

func TestIngestDocument_MixedBatchCommitsValidOnly(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", "Text about solar panels and silicon.")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{triplets: []extract.CandidateTriplet{
		{SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
		{SubjectName: "Silicon", SubjectType: "MATERIAL", Relation: "USES", ObjectName: "Solar Panel", ObjectType: "TECHNOLOGY"},
		{SubjectName: "X", SubjectType: "GADGET", Relation: "USES", ObjectName: "Y", ObjectType: "MATERIAL"},
	}}
	o := newOrchestrator(t, store, ex)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Ingested, "rejections must not fail the document")

	result := summary.Results[0]
	assert.Equal(t, ingest.StatusDone, result.Status)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 2, result.Rejected)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Edges)

	exists, err := store.HasEdge(context.Background(), graph.Edge{
		SubjectName: "Solar Panel", SubjectType: "TECHNOLOGY",
		Relation:   "USES",
		ObjectName: "Silicon", ObjectType: "MATERIAL",
	})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngestDocument_NormalizationConvergence(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", "Variants of the same entity.")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{triplets: []extract.CandidateTriplet{
		{SubjectName: "solar panel", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "silicon", ObjectType: "MATERIAL"},
		{SubjectName: "SOLAR PANEL", SubjectType: "TECHNOLOGY", Relation: "USES", ObjectName: "Silicon", ObjectType: "MATERIAL"},
	}}
	o := newOrchestrator(t, store, ex)

	_, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entities, "case variants collapse to one node each")
	assert.Equal(t, int64(1), stats.Edges)
}

func TestIngestDocument_ChunkFailureFailsWholeDocument(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", "Some content.")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{err: &extract.ExtractionError{Reason: extract.ReasonRateLimited, Err: errors.New("429")}}
	o := newOrchestrator(t, store, ex)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err, "a failed document must not fail the run")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, ingest.StatusFailed, summary.Results[0].Status)

	// No Document record: the next run retries from scratch
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{}, stats)

	callsBefore := ex.callCount()
	ex.err = nil
	retry, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Ingested)
	assert.Greater(t, ex.callCount(), callsBefore, "retry must re-extract")
}

func TestRun_CancellationLeavesNoPartialState(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", "Some content.")

	store := graph.NewMemoryStore()
	ex := &fakeExtractor{}
	o := newOrchestrator(t, store, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{}, stats)
}

func TestFingerprint(t *testing.T) {
	a := ingest.Fingerprint([]byte("content"))
	b := ingest.Fingerprint([]byte("content"))
	c := ingest.Fingerprint([]byte("content!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDiscover_Globs(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "keep.md", "x")
	writeDoc(t, dir, "skip.bin", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0755))
	writeDoc(t, dir, filepath.Join("notes", "nested.md"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0755))
	writeDoc(t, dir, filepath.Join(".hidden", "secret.md"), "x")

	inputs, err := ingest.Discover(dir, ingest.DiscoverOptions{
		Include: []string{"**/*.md"},
		Exclude: []string{"notes/**"},
	})
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, filepath.Join(dir, "keep.md"), inputs[0].Path)
}
