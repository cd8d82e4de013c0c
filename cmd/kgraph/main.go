// Package main provides the kgraph binary entry point.
// Kgraph builds an ontology-constrained knowledge graph from documents
// and answers questions over it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/kgraph/llm/providers"

	"github.com/spf13/cobra"

	"github.com/c360studio/kgraph/analysis"
	"github.com/c360studio/kgraph/config"
	"github.com/c360studio/kgraph/events"
	"github.com/c360studio/kgraph/extract"
	"github.com/c360studio/kgraph/graph"
	"github.com/c360studio/kgraph/ingest"
	"github.com/c360studio/kgraph/llm"
	"github.com/c360studio/kgraph/metrics"
	"github.com/c360studio/kgraph/ontology"
	"github.com/c360studio/kgraph/query"
	"github.com/c360studio/kgraph/schema"
	"github.com/c360studio/kgraph/source/chunker"
	"github.com/c360studio/kgraph/source/parser"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kgraph"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "kgraph",
		Short: "Ontology-constrained knowledge graph pipeline",
		Long: `Kgraph extracts schema-conforming knowledge graph triplets from
documents and stores them in a graph database.

The ontology fixes the allowed entity types, relation types, and which
relations each entity type may emit; everything the extraction model
proposes is validated against it before touching the graph.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(ingestCmd(&configPath, &logLevel))
	cmd.AddCommand(queryCmd(&configPath, &logLevel))
	cmd.AddCommand(analyzeCmd(&configPath, &logLevel))
	cmd.AddCommand(statusCmd(&configPath, &logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func ingestCmd(configPath, logLevel *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest [data-directory]",
		Short: "Extract triplets from documents and commit them to the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := setup(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve data directory: %w", err)
			}

			summary, err := app.orchestrator.Run(ctx, dir)
			if err != nil {
				return err
			}
			printSummary(summary)

			if !watch {
				return nil
			}

			watcher, err := ingest.NewWatcher(dir, app.logger)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			onChange := func(ctx context.Context) {
				summary, err := app.orchestrator.Run(ctx, dir)
				if err != nil {
					app.logger.Error("ingestion run failed", "error", err)
					return
				}
				printSummary(summary)
			}
			if err := watcher.Watch(ctx, onChange); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-ingest when files change")
	return cmd
}

func printSummary(summary *ingest.Summary) {
	fmt.Printf("ingested %d, skipped %d, failed %d (run %s)\n",
		summary.Ingested, summary.Skipped, summary.Failed, summary.RunID)
	for _, result := range summary.Results {
		if result.Status == ingest.StatusFailed {
			fmt.Printf("  FAILED %s: %v\n", result.Path, result.Err)
		}
	}
}

func queryCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the knowledge graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := setup(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			question := strings.Join(args, " ")

			engineOpts := []query.Option{
				query.WithMaxHops(app.cfg.Query.MaxHops),
				query.WithTopK(app.cfg.Query.TopK),
				query.WithContextBudget(app.cfg.Query.ContextTokenBudget),
				query.WithLogger(app.logger),
			}
			if app.embedder != nil {
				engineOpts = append(engineOpts, query.WithEmbedder(app.embedder))
			}
			engine, err := query.New(app.llm, app.store, engineOpts...)
			if err != nil {
				return err
			}

			answer, err := engine.Ask(ctx, question)
			if err != nil {
				return err
			}

			fmt.Println(answer.Text)
			if len(answer.Paths) > 0 {
				fmt.Println("\nCited graph paths:")
				for _, path := range answer.Paths {
					fmt.Printf("  %s\n", path)
				}
			}
			return nil
		},
	}
}

func analyzeCmd(configPath, logLevel *string) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run PageRank and community detection over the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := setup(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			runner, err := analysis.New(app.store, analysis.WithLogger(app.logger))
			if err != nil {
				return err
			}

			result, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("analyzed %d nodes, %d relationships; %d communities\n",
				result.Nodes, result.Relationships, result.CommunityCount)

			entities, err := runner.TopEntities(ctx, top)
			if err != nil {
				return err
			}
			if len(entities) > 0 {
				fmt.Println("\nTop entities by PageRank:")
				for _, entity := range entities {
					fmt.Printf("  %-30s %-14s score=%.4f community=%d\n",
						entity.Name, entity.Type, entity.PageRank, entity.Community)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "Number of top-ranked entities to print")
	return cmd
}

func statusCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show graph contents and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := setup(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			stats, err := app.store.Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("backend:   %s\n", app.cfg.Graph.Backend)
			fmt.Printf("ontology:  %s (%s v%s)\n", app.cfg.Ontology.Path, app.ontology.Domain(), app.ontology.Version())
			fmt.Printf("entities:  %d\n", stats.Entities)
			fmt.Printf("edges:     %d\n", stats.Edges)
			fmt.Printf("documents: %d\n", stats.Documents)
			return nil
		},
	}
}

// app holds the wired components shared by the commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	ontology     *ontology.Ontology
	store        graph.Store
	llm          *llm.Client
	embedder     *llm.Embedder
	orchestrator *ingest.Orchestrator
	publisher    *events.Publisher
	metricsStop  context.CancelFunc
}

// setup loads config and builds the component graph for one command.
func setup(ctx context.Context, configPath, logLevel string) (*app, error) {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ont, err := ontology.Load(cfg.Ontology.Path)
	if err != nil {
		return nil, fmt.Errorf("load ontology: %w", err)
	}
	logger.Info("ontology loaded",
		"domain", ont.Domain(),
		"version", ont.Version(),
		"entity_types", len(ont.EntityTypes()),
		"relation_types", len(ont.RelationTypes()))

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.LLM.Endpoints,
		llm.WithLogger(logger),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
	)

	extractor, err := extract.New(client, ont,
		extract.WithMaxTriplets(cfg.Ingest.MaxTripletsPerChunk),
		extract.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	validator, err := schema.New(ont, schema.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(chunker.Config{
		TargetTokens: cfg.Ingest.ChunkTargetTokens,
		MaxTokens:    cfg.Ingest.ChunkMaxTokens,
		MinTokens:    cfg.Ingest.ChunkMinTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chunker config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		ontology: ont,
		store:    store,
		llm:      client,
	}

	if cfg.Embedding.Enabled {
		a.embedder = llm.NewEmbedder(llm.EmbeddingConfig{
			URL:        cfg.Embedding.URL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}, llm.WithEmbedderLogger(logger))
	}

	if cfg.Events.Enabled {
		a.publisher, err = events.Connect(cfg.Events.URL, cfg.Events.Subject, logger)
		if err != nil {
			// Events are best-effort; run without them
			logger.Warn("events disabled: NATS connection failed", "error", err)
			a.publisher = nil
		}
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsCtx, cancel := context.WithCancel(context.Background())
		a.metricsStop = cancel
		go func() {
			if err := m.Serve(metricsCtx, cfg.Metrics.Listen, logger); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	orchestratorOpts := []ingest.Option{
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(logger),
		ingest.WithMetrics(m),
		ingest.WithDiscoverOptions(ingest.DiscoverOptions{
			Include: cfg.Ingest.Include,
			Exclude: cfg.Ingest.Exclude,
		}),
	}
	if a.embedder != nil {
		orchestratorOpts = append(orchestratorOpts, ingest.WithEmbedder(a.embedder))
	}
	if a.publisher != nil {
		orchestratorOpts = append(orchestratorOpts, ingest.WithPublisher(a.publisher))
	}

	a.orchestrator, err = ingest.New(store, extractor, validator, chk, parser.DefaultRegistry, orchestratorOpts...)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.metricsStop != nil {
		a.metricsStop()
	}
	a.publisher.Close()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.store.Close(closeCtx); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (graph.Store, error) {
	switch cfg.Graph.Backend {
	case "memory":
		logger.Info("using in-memory graph store")
		return graph.NewMemoryStore(), nil
	case "neo4j":
		neo4jCfg := cfg.Graph.Neo4j
		if cfg.Embedding.Enabled && neo4jCfg.EmbeddingDimensions == 0 {
			neo4jCfg.EmbeddingDimensions = cfg.Embedding.Dimensions
		}
		store, err := graph.NewNeo4jStore(ctx, neo4jCfg, graph.WithNeo4jLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("connect to graph store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown graph backend: %s", cfg.Graph.Backend)
	}
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg := config.DefaultConfig()
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
