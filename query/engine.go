// Package query answers questions over the knowledge graph.
//
// A question is resolved in three stages: the LLM proposes the entity
// keywords it mentions, the graph contributes the neighborhood of those
// entities (plus vector-similar entities when embeddings are enabled),
// and a final synthesis call produces an answer grounded in the
// retrieved triplets. Oversized triplet contexts are reduced in rounds
// before synthesis, so the final call always fits the token budget.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/llm"
	"github.com/c360studio/kgraph/normalize"
)

// Defaults for retrieval and synthesis.
const (
	DefaultMaxHops       = 2
	DefaultTopK          = 5
	DefaultContextBudget = 3000

	// charsPerToken mirrors the chunker's token estimate.
	charsPerToken = 4
)

// Completer is the LLM surface the engine depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Embedder produces text embeddings for similarity retrieval.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Answer is a synthesized response with the graph paths it cites.
type Answer struct {
	Text  string
	Paths []string
}

// Engine answers questions using the graph store and an LLM.
type Engine struct {
	client   Completer
	store    graph.Store
	embedder Embedder

	maxHops       int
	topK          int
	contextBudget int
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables vector similarity retrieval.
func WithEmbedder(e Embedder) Option {
	return func(en *Engine) {
		en.embedder = e
	}
}

// WithMaxHops bounds graph traversal depth.
func WithMaxHops(n int) Option {
	return func(en *Engine) {
		if n > 0 {
			en.maxHops = n
		}
	}
}

// WithTopK sets the vector similarity result count.
func WithTopK(n int) Option {
	return func(en *Engine) {
		if n > 0 {
			en.topK = n
		}
	}
}

// WithContextBudget caps the synthesis context size in estimated tokens.
func WithContextBudget(n int) Option {
	return func(en *Engine) {
		if n > 0 {
			en.contextBudget = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(en *Engine) {
		en.logger = logger
	}
}

// New creates a query Engine.
func New(client Completer, store graph.Store, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("query: client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("query: store is required")
	}

	en := &Engine{
		client:        client,
		store:         store,
		maxHops:       DefaultMaxHops,
		topK:          DefaultTopK,
		contextBudget: DefaultContextBudget,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en, nil
}

// Ask answers a question from the graph.
func (en *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("query: question is empty")
	}

	keywords, err := en.extractKeywords(ctx, question)
	if err != nil {
		return nil, err
	}
	en.logger.Debug("extracted query keywords", "keywords", keywords)

	edges, err := en.retrieve(ctx, question, keywords)
	if err != nil {
		return nil, err
	}

	if len(edges) == 0 {
		return &Answer{
			Text: "The knowledge graph contains no information related to this question.",
		}, nil
	}

	paths := formatPaths(edges)
	contextText, err := en.fitContext(ctx, question, paths)
	if err != nil {
		return nil, err
	}

	text, err := en.synthesize(ctx, question, contextText)
	if err != nil {
		return nil, err
	}

	return &Answer{Text: text, Paths: paths}, nil
}

// extractKeywords asks the LLM which entities the question mentions.
func (en *Engine) extractKeywords(ctx context.Context, question string) ([]string, error) {
	temp := 0.0
	resp, err := en.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You identify the entity names and keywords a question refers to. Respond with a JSON array of strings and nothing else."},
			{Role: "user", Content: fmt.Sprintf("List up to 5 entity names or keywords from this question:\n\n%s", question)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, wrapServiceError("language model", err)
	}

	jsonStr := llm.ExtractJSONArray(resp.Content)
	if jsonStr == "" {
		// Fall back to the raw question as a single keyword
		return []string{normalize.CanonicalName(question)}, nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return []string{normalize.CanonicalName(question)}, nil
	}

	keywords := make([]string, 0, len(raw))
	for _, kw := range raw {
		if canonical := normalize.CanonicalName(kw); canonical != "" {
			keywords = append(keywords, canonical)
		}
	}
	return keywords, nil
}

// retrieve collects the graph neighborhood of the keywords, plus
// vector-similar entities when an embedder is configured.
func (en *Engine) retrieve(ctx context.Context, question string, keywords []string) ([]graph.Edge, error) {
	names := append([]string(nil), keywords...)

	if en.embedder != nil {
		vectors, err := en.embedder.Embed(ctx, []string{question})
		if err != nil {
			// Similarity retrieval is additive; degrade to pure traversal
			en.logger.Warn("embedding lookup failed, using traversal only", "error", err)
		} else if len(vectors) > 0 {
			similar, err := en.store.SimilarEntities(ctx, vectors[0], en.topK)
			if err != nil {
				return nil, wrapServiceError("graph store", err)
			}
			for _, entity := range similar {
				names = append(names, entity.Name)
			}
		}
	}

	edges, err := en.store.Neighborhood(ctx, names, en.maxHops)
	if err != nil {
		return nil, wrapServiceError("graph store", err)
	}
	return edges, nil
}

// fitContext reduces the triplet context in rounds until it fits the
// token budget. Each round summarizes fixed-size groups of lines, and
// rounds repeat on the summaries until one context remains under budget.
func (en *Engine) fitContext(ctx context.Context, question string, paths []string) (string, error) {
	lines := paths
	for estimateTokens(strings.Join(lines, "\n")) > en.contextBudget && len(lines) > 1 {
		groupSize := (len(lines) + 1) / 2
		var reduced []string
		for start := 0; start < len(lines); start += groupSize {
			end := start + groupSize
			if end > len(lines) {
				end = len(lines)
			}
			summary, err := en.summarizeGroup(ctx, question, lines[start:end])
			if err != nil {
				return "", err
			}
			reduced = append(reduced, summary)
		}
		lines = reduced
	}
	return strings.Join(lines, "\n"), nil
}

func (en *Engine) summarizeGroup(ctx context.Context, question string, group []string) (string, error) {
	temp := 0.0
	resp, err := en.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You condense knowledge graph facts, keeping only what is relevant to the question. Respond with a short factual summary."},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nFacts:\n%s", question, strings.Join(group, "\n"))},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", wrapServiceError("language model", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// synthesize produces the final answer from the fitted context.
func (en *Engine) synthesize(ctx context.Context, question, contextText string) (string, error) {
	resp, err := en.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You answer questions using ONLY the provided knowledge graph facts. Cite the facts you rely on. If the facts do not answer the question, say so."},
			{Role: "user", Content: fmt.Sprintf("Facts:\n%s\n\nQuestion: %s", contextText, question)},
		},
	})
	if err != nil {
		return "", wrapServiceError("language model", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// formatPaths renders edges as citable path strings.
func formatPaths(edges []graph.Edge) []string {
	paths := make([]string, 0, len(edges))
	for _, edge := range edges {
		path := fmt.Sprintf("%s (%s) -[%s]-> %s (%s)",
			edge.SubjectName, edge.SubjectType, edge.Relation, edge.ObjectName, edge.ObjectType)
		if edge.DocID != "" {
			path += fmt.Sprintf(" [source: %s]", edge.DocID)
		}
		paths = append(paths, path)
	}
	return paths
}

func estimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}
