// Package metrics exposes Prometheus counters for the ingestion and
// query pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's counters on a private registry, so tests
// and multiple instances never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsIngested prometheus.Counter
	DocumentsSkipped  prometheus.Counter
	DocumentsFailed   prometheus.Counter
	TripletsExtracted prometheus.Counter
	TripletsAccepted  prometheus.Counter
	TripletsRejected  *prometheus.CounterVec
	OracleCalls       prometheus.Counter
	OracleFailures    prometheus.Counter
}

// New creates and registers the pipeline counters.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		DocumentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_documents_ingested_total",
			Help: "Documents successfully committed to the graph.",
		}),
		DocumentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_documents_skipped_total",
			Help: "Documents skipped because their fingerprint was already recorded.",
		}),
		DocumentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_documents_failed_total",
			Help: "Documents that failed extraction or commit.",
		}),
		TripletsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_triplets_extracted_total",
			Help: "Candidate triplets returned by the extraction oracle.",
		}),
		TripletsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_triplets_accepted_total",
			Help: "Triplets that passed schema validation.",
		}),
		TripletsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgraph_triplets_rejected_total",
			Help: "Triplets rejected by schema validation, by violation kind.",
		}, []string{"reason"}),
		OracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_oracle_calls_total",
			Help: "Extraction oracle calls.",
		}),
		OracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgraph_oracle_failures_total",
			Help: "Extraction oracle calls that failed after retries.",
		}),
	}

	registry.MustRegister(
		m.DocumentsIngested,
		m.DocumentsSkipped,
		m.DocumentsFailed,
		m.TripletsExtracted,
		m.TripletsAccepted,
		m.TripletsRejected,
		m.OracleCalls,
		m.OracleFailures,
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener until the context is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("metrics listener started", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
