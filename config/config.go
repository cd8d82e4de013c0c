// Package config provides configuration loading and management for kgraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/llm"
)

// Config represents the complete kgraph configuration
type Config struct {
	Ontology  OntologyConfig  `yaml:"ontology"`
	Graph     GraphConfig     `yaml:"graph"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Query     QueryConfig     `yaml:"query"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// OntologyConfig points at the ontology source file
type OntologyConfig struct {
	// Path is the ontology YAML file, loaded once at startup
	Path string `yaml:"path"`
}

// GraphConfig selects and configures the graph store backend
type GraphConfig struct {
	// Backend is "neo4j" or "memory"
	Backend string `yaml:"backend"`
	Neo4j   graph.Neo4jConfig `yaml:"neo4j"`
}

// LLMConfig configures the extraction/query LLM endpoint chain
type LLMConfig struct {
	// Endpoints are tried in order; later entries are fallbacks
	Endpoints []llm.EndpointConfig `yaml:"endpoints"`
	// Timeout bounds a single completion call
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures optional entity embeddings
type EmbeddingConfig struct {
	// Enabled turns on embedding generation at ingest time
	Enabled bool `yaml:"enabled"`
	// URL is the embeddings API base URL
	URL string `yaml:"url"`
	// Model is the embedding model name
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size
	Dimensions int `yaml:"dimensions"`
}

// IngestConfig configures the ingestion pipeline
type IngestConfig struct {
	// Workers bounds parallel chunk extraction
	Workers int `yaml:"workers"`
	// MaxTripletsPerChunk caps oracle output per chunk
	MaxTripletsPerChunk int `yaml:"max_triplets_per_chunk"`
	// Include/Exclude are doublestar glob patterns over the data dir
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// Chunk sizing in estimated tokens
	ChunkTargetTokens int `yaml:"chunk_target_tokens"`
	ChunkMaxTokens    int `yaml:"chunk_max_tokens"`
	ChunkMinTokens    int `yaml:"chunk_min_tokens"`
}

// QueryConfig configures question answering
type QueryConfig struct {
	// MaxHops bounds graph traversal depth
	MaxHops int `yaml:"max_hops"`
	// TopK is the vector similarity result count
	TopK int `yaml:"top_k"`
	// ContextTokenBudget caps the synthesis context; larger contexts
	// are reduced tree-style before the final answer call
	ContextTokenBudget int `yaml:"context_token_budget"`
}

// EventsConfig configures graph mutation event publishing
type EventsConfig struct {
	// Enabled turns on NATS publishing after successful commits
	Enabled bool `yaml:"enabled"`
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// Subject is the publish subject
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Ontology: OntologyConfig{
			Path: "ontology.yaml",
		},
		Graph: GraphConfig{
			Backend: "neo4j",
			Neo4j:   graph.DefaultNeo4jConfig(),
		},
		LLM: LLMConfig{
			Endpoints: []llm.EndpointConfig{
				{Provider: "ollama", Model: "llama3.1:8b"},
			},
			Timeout: 2 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Enabled:    false,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Ingest: IngestConfig{
			Workers:             4,
			MaxTripletsPerChunk: 10,
			Include:             []string{"**/*.md", "**/*.txt", "**/*.html", "**/*.pdf"},
			ChunkTargetTokens:   1000,
			ChunkMaxTokens:      1500,
			ChunkMinTokens:      200,
		},
		Query: QueryConfig{
			MaxHops:            2,
			TopK:               5,
			ContextTokenBudget: 3000,
		},
		Events: EventsConfig{
			Enabled: false,
			Subject: "kgraph.document.ingested",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Ontology.Path == "" {
		return fmt.Errorf("ontology.path is required")
	}
	switch c.Graph.Backend {
	case "neo4j":
		if err := c.Graph.Neo4j.Validate(); err != nil {
			return fmt.Errorf("graph.neo4j: %w", err)
		}
	case "memory":
	default:
		return fmt.Errorf("graph.backend must be \"neo4j\" or \"memory\", got %q", c.Graph.Backend)
	}
	if len(c.LLM.Endpoints) == 0 {
		return fmt.Errorf("llm.endpoints must have at least one entry")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive")
	}
	if c.Ingest.MaxTripletsPerChunk <= 0 {
		return fmt.Errorf("ingest.max_triplets_per_chunk must be positive")
	}
	if c.Embedding.Enabled {
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when embedding is enabled")
		}
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions must be positive when embedding is enabled")
		}
	}
	if c.Events.Enabled {
		if c.Events.URL == "" {
			return fmt.Errorf("events.url is required when events are enabled")
		}
		if c.Events.Subject == "" {
			return fmt.Errorf("events.subject is required when events are enabled")
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Ontology
	if other.Ontology.Path != "" {
		c.Ontology.Path = other.Ontology.Path
	}

	// Graph
	if other.Graph.Backend != "" {
		c.Graph.Backend = other.Graph.Backend
	}
	if other.Graph.Neo4j.URI != "" {
		c.Graph.Neo4j.URI = other.Graph.Neo4j.URI
	}
	if other.Graph.Neo4j.Username != "" {
		c.Graph.Neo4j.Username = other.Graph.Neo4j.Username
	}
	if other.Graph.Neo4j.Password != "" {
		c.Graph.Neo4j.Password = other.Graph.Neo4j.Password
	}
	if other.Graph.Neo4j.Database != "" {
		c.Graph.Neo4j.Database = other.Graph.Neo4j.Database
	}
	if other.Graph.Neo4j.EmbeddingDimensions != 0 {
		c.Graph.Neo4j.EmbeddingDimensions = other.Graph.Neo4j.EmbeddingDimensions
	}

	// LLM
	if len(other.LLM.Endpoints) > 0 {
		c.LLM.Endpoints = other.LLM.Endpoints
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}

	// Embedding
	if other.Embedding.Enabled {
		c.Embedding.Enabled = true
	}
	if other.Embedding.URL != "" {
		c.Embedding.URL = other.Embedding.URL
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}

	// Ingest
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.MaxTripletsPerChunk != 0 {
		c.Ingest.MaxTripletsPerChunk = other.Ingest.MaxTripletsPerChunk
	}
	if len(other.Ingest.Include) > 0 {
		c.Ingest.Include = other.Ingest.Include
	}
	if len(other.Ingest.Exclude) > 0 {
		c.Ingest.Exclude = other.Ingest.Exclude
	}
	if other.Ingest.ChunkTargetTokens != 0 {
		c.Ingest.ChunkTargetTokens = other.Ingest.ChunkTargetTokens
	}
	if other.Ingest.ChunkMaxTokens != 0 {
		c.Ingest.ChunkMaxTokens = other.Ingest.ChunkMaxTokens
	}
	if other.Ingest.ChunkMinTokens != 0 {
		c.Ingest.ChunkMinTokens = other.Ingest.ChunkMinTokens
	}

	// Query
	if other.Query.MaxHops != 0 {
		c.Query.MaxHops = other.Query.MaxHops
	}
	if other.Query.TopK != 0 {
		c.Query.TopK = other.Query.TopK
	}
	if other.Query.ContextTokenBudget != 0 {
		c.Query.ContextTokenBudget = other.Query.ContextTokenBudget
	}

	// Events
	if other.Events.Enabled {
		c.Events.Enabled = true
	}
	if other.Events.URL != "" {
		c.Events.URL = other.Events.URL
	}
	if other.Events.Subject != "" {
		c.Events.Subject = other.Events.Subject
	}

	// Metrics
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Listen != "" {
		c.Metrics.Listen = other.Metrics.Listen
	}
}
