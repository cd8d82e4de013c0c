// Package ingest drives documents through the extraction pipeline.
//
// Each document moves through a small state machine: fingerprint, skip
// check, chunked extraction, schema validation, and a single atomic
// commit. Failures are isolated per document, and a failed document
// leaves no trace in the store, so the next run retries it from scratch.
// Chunk failures fail the whole document rather than committing partial
// coverage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/kgraph/events"
	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/metrics"
	"github.com/c360studio/kgraph/normalize"
	"github.com/c360studio/kgraph/schema"
	"github.com/c360studio/kgraph/source"
	"github.com/c360studio/kgraph/source/chunker"
	"github.com/c360studio/kgraph/source/parser"
)

// Status is a document's position in the ingestion state machine.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusFingerprinted Status = "FINGERPRINTED"
	StatusSkipped       Status = "SKIPPED"
	StatusExtracting    Status = "EXTRACTING"
	StatusValidating    Status = "VALIDATING"
	StatusCommitting    Status = "COMMITTING"
	StatusDone          Status = "DONE"
	StatusFailed        Status = "FAILED"
)

// Extractor produces candidate triplets for one chunk of text.
type Extractor interface {
	Extract(ctx context.Context, chunk string) ([]extract.CandidateTriplet, error)
}

// Embedder produces text embeddings for entity names.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentResult is the terminal state of one document in a run.
type DocumentResult struct {
	Path        string
	DocID       string
	Fingerprint string
	Status      Status
	Accepted    int
	Rejected    int
	Duplicates  int
	Err         error
}

// Summary aggregates one ingestion run.
type Summary struct {
	RunID    string
	Ingested int
	Skipped  int
	Failed   int
	Results  []DocumentResult
}

// Orchestrator runs the ingestion pipeline against a graph store.
type Orchestrator struct {
	store     graph.Store
	extractor Extractor
	validator *schema.Validator
	chunker   *chunker.Chunker
	parsers   *parser.Registry

	embedder  Embedder
	publisher *events.Publisher
	metrics   *metrics.Metrics
	discover  DiscoverOptions
	workers   int
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds parallel chunk extraction.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithEmbedder enables entity embedding at commit time.
func WithEmbedder(e Embedder) Option {
	return func(o *Orchestrator) {
		o.embedder = e
	}
}

// WithPublisher enables ingest event publishing.
func WithPublisher(p *events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithDiscoverOptions sets include/exclude patterns for Run.
func WithDiscoverOptions(opts DiscoverOptions) Option {
	return func(o *Orchestrator) {
		o.discover = opts
	}
}

// New creates an Orchestrator.
func New(store graph.Store, extractor Extractor, validator *schema.Validator, c *chunker.Chunker, parsers *parser.Registry, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("ingest: store is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("ingest: extractor is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("ingest: validator is required")
	}
	if c == nil {
		c = chunker.NewDefault()
	}
	if parsers == nil {
		parsers = parser.DefaultRegistry
	}

	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		validator: validator,
		chunker:   c,
		parsers:   parsers,
		metrics:   metrics.New(),
		workers:   4,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run ingests every matching file under dir. Documents are processed
// in discovery order; cancellation stops before the next document and
// never leaves a partial commit behind.
func (o *Orchestrator) Run(ctx context.Context, dir string) (*Summary, error) {
	inputs, err := Discover(dir, o.discover)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: uuid.NewString()}
	o.logger.Info("ingestion run started",
		"run_id", summary.RunID,
		"dir", dir,
		"documents", len(inputs))

	for _, input := range inputs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		result := o.IngestDocument(ctx, input)
		summary.Results = append(summary.Results, result)

		switch result.Status {
		case StatusDone:
			summary.Ingested++
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
		}
	}

	o.logger.Info("ingestion run finished",
		"run_id", summary.RunID,
		"ingested", summary.Ingested,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary, nil
}

// IngestDocument drives one document to a terminal state.
func (o *Orchestrator) IngestDocument(ctx context.Context, input Input) DocumentResult {
	result := DocumentResult{
		Path:        input.Path,
		Status:      StatusPending,
		Fingerprint: Fingerprint(input.Raw),
	}
	result.Status = StatusFingerprinted

	// Skip check happens before any oracle call: extraction is the
	// expensive step.
	exists, err := o.store.HasDocument(ctx, result.Fingerprint)
	if err != nil {
		return o.fail(result, fmt.Errorf("fingerprint lookup: %w", err))
	}
	if exists {
		result.Status = StatusSkipped
		o.metrics.DocumentsSkipped.Inc()
		o.logger.Debug("document already ingested", "path", input.Path)
		return result
	}

	doc, err := o.parsers.Parse(input.Path, input.Raw)
	if err != nil {
		return o.fail(result, fmt.Errorf("parse document: %w", err))
	}
	result.DocID = doc.ID

	result.Status = StatusExtracting
	body := normalize.Normalize(doc.Body)
	chunks := o.chunker.Chunk(doc.ID, body)

	candidates, err := o.extractChunks(ctx, chunks)
	if err != nil {
		// Whole-document retry: one failed chunk fails the document,
		// nothing is committed, the next run starts over.
		return o.fail(result, err)
	}
	o.metrics.TripletsExtracted.Add(float64(len(candidates)))

	result.Status = StatusValidating
	validated := o.validator.ValidateBatch(candidates)
	result.Accepted = len(validated.Accepted)
	result.Rejected = len(validated.Rejections)
	result.Duplicates = validated.Duplicates

	o.metrics.TripletsAccepted.Add(float64(len(validated.Accepted)))
	for kind, count := range validated.RejectionCounts() {
		o.metrics.TripletsRejected.WithLabelValues(string(kind)).Add(float64(count))
	}

	if ctx.Err() != nil {
		return o.fail(result, ctx.Err())
	}

	result.Status = StatusCommitting
	record := graph.DocumentRecord{
		Fingerprint:  result.Fingerprint,
		ID:           doc.ID,
		Filename:     doc.Filename,
		IngestedAt:   time.Now().UTC(),
		TripletCount: len(validated.Accepted),
	}
	entities, edges, err := o.buildGraphObjects(ctx, doc.ID, validated.Accepted)
	if err != nil {
		return o.fail(result, err)
	}

	if err := o.store.CommitDocument(ctx, record, entities, edges); err != nil {
		if errors.Is(err, graph.ErrDocumentExists) {
			// Lost the fingerprint race to a concurrent writer.
			result.Status = StatusSkipped
			o.metrics.DocumentsSkipped.Inc()
			return result
		}
		return o.fail(result, fmt.Errorf("commit: %w", err))
	}

	result.Status = StatusDone
	o.metrics.DocumentsIngested.Inc()
	o.publish(ctx, record, validated.Accepted)

	o.logger.Info("document ingested",
		"doc_id", doc.ID,
		"accepted", result.Accepted,
		"rejected", result.Rejected)
	return result
}

// extractChunks runs the oracle over all chunks with bounded
// parallelism and joins before returning. The first chunk error cancels
// the rest.
func (o *Orchestrator) extractChunks(ctx context.Context, chunks []source.Chunk) ([]extract.CandidateTriplet, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		candidates []extract.CandidateTriplet
		firstErr   error
	)
	sem := make(chan struct{}, o.workers)

	for _, chunk := range chunks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			mu.Lock()
			defer mu.Unlock()
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(chunk source.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			o.metrics.OracleCalls.Inc()
			triplets, err := o.extractor.Extract(ctx, chunk.Content)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.metrics.OracleFailures.Inc()
				if firstErr == nil {
					firstErr = fmt.Errorf("chunk %d: %w", chunk.Index, err)
					cancel()
				}
				return
			}
			candidates = append(candidates, triplets...)
		}(chunk)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// buildGraphObjects converts accepted triplets into store entities and
// edges, attaching embeddings when an embedder is configured.
func (o *Orchestrator) buildGraphObjects(ctx context.Context, docID string, accepted []schema.Triplet) ([]graph.Entity, []graph.Edge, error) {
	entitySet := make(map[string]graph.Entity)
	edges := make([]graph.Edge, 0, len(accepted))

	for _, t := range accepted {
		subject := graph.Entity{Name: t.SubjectName, Type: t.SubjectType}
		object := graph.Entity{Name: t.ObjectName, Type: t.ObjectType}
		entitySet[subject.Identity()] = subject
		entitySet[object.Identity()] = object

		edges = append(edges, graph.Edge{
			SubjectName: t.SubjectName,
			SubjectType: t.SubjectType,
			Relation:    t.Relation,
			ObjectName:  t.ObjectName,
			ObjectType:  t.ObjectType,
			Confidence:  t.Confidence,
			DocID:       docID,
		})
	}

	entities := make([]graph.Entity, 0, len(entitySet))
	names := make([]string, 0, len(entitySet))
	for _, entity := range entitySet {
		entities = append(entities, entity)
		names = append(names, entity.Name)
	}

	if o.embedder != nil && len(entities) > 0 {
		vectors, err := o.embedder.Embed(ctx, names)
		if err != nil {
			return nil, nil, fmt.Errorf("embed entities: %w", err)
		}
		for i := range entities {
			if i < len(vectors) {
				entities[i].Embedding = vectors[i]
			}
		}
	}

	return entities, edges, nil
}

// publish sends the ingest event. Failures are logged, never fatal.
func (o *Orchestrator) publish(ctx context.Context, record graph.DocumentRecord, accepted []schema.Triplet) {
	if o.publisher == nil {
		return
	}

	triples := make([]events.Triple, 0, len(accepted))
	for _, t := range accepted {
		triples = append(triples, events.Triple{
			Subject:    t.SubjectName,
			Predicate:  t.Relation,
			Object:     t.ObjectName,
			Source:     record.ID,
			Timestamp:  record.IngestedAt,
			Confidence: t.Confidence,
		})
	}

	err := o.publisher.PublishDocumentIngested(ctx, events.DocumentIngested{
		ID:          record.ID,
		Fingerprint: record.Fingerprint,
		Filename:    record.Filename,
		Triples:     triples,
		IngestedAt:  record.IngestedAt,
	})
	if err != nil {
		o.logger.Warn("failed to publish ingest event", "doc_id", record.ID, "error", err)
	}
}

func (o *Orchestrator) fail(result DocumentResult, err error) DocumentResult {
	stage := result.Status
	result.Status = StatusFailed
	result.Err = err
	o.metrics.DocumentsFailed.Inc()
	o.logger.Warn("document failed",
		"path", result.Path,
		"stage", string(stage),
		"error", err)
	return result
}
