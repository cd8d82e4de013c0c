// Package extract adapts an LLM endpoint into a triplet extraction oracle.
//
// Each call covers one text chunk. The request embeds the ontology's full
// allowed vocabulary and a triplet budget; the response is parsed into
// candidate triplets which are NOT trusted — schema validation happens
// downstream. A failed call always surfaces as an ExtractionError rather
// than an empty result, so "found nothing" and "call failed" stay
// distinguishable.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/kgraph/llm"
	"github.com/c360studio/kgraph/ontology"
)

// DefaultMaxTriplets bounds how many triplets one chunk may yield.
const DefaultMaxTriplets = 10

// CandidateTriplet is one unvalidated triplet proposed by the oracle.
type CandidateTriplet struct {
	SubjectName string  `json:"subject_name"`
	SubjectType string  `json:"subject_type"`
	Relation    string  `json:"relation"`
	ObjectName  string  `json:"object_name"`
	ObjectType  string  `json:"object_type"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Completer is the LLM surface the extractor depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Extractor turns text chunks into candidate triplets via an LLM call.
type Extractor struct {
	client      Completer
	ont         *ontology.Ontology
	maxTriplets int
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxTriplets sets the per-chunk triplet budget.
func WithMaxTriplets(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTriplets = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor bound to an ontology snapshot.
func New(client Completer, ont *ontology.Ontology, opts ...Option) (*Extractor, error) {
	if client == nil {
		return nil, fmt.Errorf("extract: client is required")
	}
	if ont == nil {
		return nil, fmt.Errorf("extract: ontology is required")
	}

	e := &Extractor{
		client:      client,
		ont:         ont,
		maxTriplets: DefaultMaxTriplets,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract proposes candidate triplets for one chunk of text.
func (e *Extractor) Extract(ctx context.Context, chunk string) ([]CandidateTriplet, error) {
	if chunk == "" {
		return nil, nil
	}

	temp := 0.0
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(e.ont, chunk, e.maxTriplets)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, &ExtractionError{Reason: classify(err), Err: err}
	}

	triplets, err := parseTriplets(resp.Content)
	if err != nil {
		e.logger.Warn("oracle returned unparseable triplet list",
			"request_id", resp.RequestID,
			"error", err)
		return nil, &ExtractionError{Reason: ReasonMalformed, Err: err}
	}

	if len(triplets) > e.maxTriplets {
		triplets = triplets[:e.maxTriplets]
	}

	e.logger.Debug("extracted candidate triplets",
		"request_id", resp.RequestID,
		"count", len(triplets))

	return triplets, nil
}

// parseTriplets pulls the JSON array out of a model response. Markdown
// fences, comments, and trailing commas are tolerated.
func parseTriplets(content string) ([]CandidateTriplet, error) {
	jsonStr := llm.ExtractJSONArray(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var triplets []CandidateTriplet
	if err := json.Unmarshal([]byte(jsonStr), &triplets); err != nil {
		return nil, fmt.Errorf("unmarshal triplets: %w", err)
	}

	return triplets, nil
}
