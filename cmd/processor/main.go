// Package main is the entry point for the ingestion processor: it wires
// configuration, persistence, external clients, and workers together, then
// blocks until a shutdown signal or the migration worker's completion
// signal arrives.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docforge/ingestproc/internal/chunking"
	"github.com/docforge/ingestproc/internal/config"
	"github.com/docforge/ingestproc/internal/dbpool"
	"github.com/docforge/ingestproc/internal/embedder"
	"github.com/docforge/ingestproc/internal/graphstore"
	"github.com/docforge/ingestproc/internal/health"
	"github.com/docforge/ingestproc/internal/llmclient"
	"github.com/docforge/ingestproc/internal/logging"
	"github.com/docforge/ingestproc/internal/metrics"
	"github.com/docforge/ingestproc/internal/migrate"
	"github.com/docforge/ingestproc/internal/model"
	"github.com/docforge/ingestproc/internal/objectstore"
	"github.com/docforge/ingestproc/internal/parser"
	"github.com/docforge/ingestproc/internal/queue"
	"github.com/docforge/ingestproc/internal/repository"
	"github.com/docforge/ingestproc/internal/tokenizer"
	"github.com/docforge/ingestproc/internal/worker"
)

const (
	metadataSystemPrompt = "Extract a short summary, keywords, and named entities from the " +
		"text. Respond only with a <json_output> tag containing {\"summary\", \"keywords\", \"entities\"}."
	relationSystemPrompt = "Extract subject-relation-object triples from the text. Respond " +
		"only with a JSON array of {subject, subject_type, relation, object, object_type}."
)

func main() {
	logger := logging.New("processor")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger = logger.WithPrefix("processor").With(map[string]interface{}{"log_level": cfg.Log.Level})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := dbpool.Open(ctx, dbpool.DefaultConfig(cfg.DB.DSN()))
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	migrator := migrate.NewManager(db, "file://internal/migrate/sql")
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("apply schema migrations: %v", err)
	}

	docs := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	settings := repository.NewSettingsRepository(db)
	llmlog := repository.NewLLMLogRepository(db)
	taskQueue := queue.New(db)

	objects, err := objectstore.NewS3Store(ctx, objectstore.Config{
		Bucket: cfg.ObjectStore.Bucket, Region: cfg.ObjectStore.Region, Endpoint: cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey, SecretKey: cfg.ObjectStore.SecretKey, UsePathStyle: cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		log.Fatalf("build object store client: %v", err)
	}

	var graph graphstore.GraphStore = graphstore.NoopStore{}
	if cfg.Neo4j.Enabled {
		graph, err = graphstore.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
		if err != nil {
			log.Fatalf("connect to neo4j: %v", err)
		}
	}

	counter, err := tokenizer.New(cfg.Chunker.TokenizerEncoding)
	if err != nil {
		log.Fatalf("build token counter: %v", err)
	}
	chunker := chunking.New(chunking.Config{
		ChunkTokens: cfg.Chunker.ChunkTokens, OverlapTokens: cfg.Chunker.OverlapTokens,
		SectionLimit: cfg.Chunker.SectionLimit, DocLimit: cfg.Chunker.DocLimit,
		ListLimit: cfg.Chunker.ListLimit, TableLimit: cfg.Chunker.TableLimit,
		TableRowGroupTokens: cfg.Chunker.TableRowGroupTokens, TableRowOverlap: cfg.Chunker.TableRowOverlap,
	}, counter)
	dispatcher := parser.NewDispatcher(parser.NoopOCR{}, cfg.OCR.Lang, cfg.Excel.RowBatchSize)

	dialect := "openai"
	if cfg.Embedding.Generator == "ollama" {
		dialect = "ollama"
	}
	rawEmbedder, err := embedder.New(embedder.Mode(cfg.Embedding.Mode), embedder.Config{
		BatchSize: cfg.Embedding.BatchSize, QPSLimit: cfg.Embedding.QPSLimit,
		Dialect: dialect, Endpoint: cfg.Embedding.APIBase,
		Model: cfg.Embedding.ModelName, RequestTimeout: cfg.Embedding.APITimeout,
	})
	if err != nil {
		log.Fatalf("build embedder: %v", err)
	}
	dimension, err := rawEmbedder.Probe(ctx)
	if err != nil {
		log.Fatalf("probe embedding dimension: %v", err)
	}
	adaptiveEmbedder := embedder.NewAdaptiveBatcher(rawEmbedder, cfg.Embedding.BatchSize)

	llmClient := llmclient.New(llmclient.Config{
		Provider: llmclient.Provider(cfg.LLM.Provider), APIBase: cfg.LLM.APIBase, Model: cfg.LLM.Model,
		RequestTimeout: cfg.LLM.RequestTimeout, VLLMPriority: cfg.LLM.VLLMPriority,
	})

	existingConfig, err := settings.GetEmbeddingConfig(ctx)
	if err != nil {
		log.Fatalf("load embedding config: %v", err)
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	if existingConfig != nil && (existingConfig.ModelName != cfg.Embedding.ModelName || existingConfig.Dimension != dimension) {
		migrator := worker.NewMigrationWorker(worker.MigrationWorkerConfig{
			Log: logger.WithPrefix("migration"), DB: db, Chunks: chunkRepo, Settings: settings,
			Embedder: adaptiveEmbedder, TargetVersion: existingConfig.Version + 1,
			ModelName: cfg.Embedding.ModelName, Dimension: dimension, BatchSize: cfg.Worker.MigrationBatchSize,
		})
		if err := migrator.Run(ctx); err != nil {
			log.Fatalf("run embedding migration: %v", err)
		}
		logger.Info("embedding migration complete, exiting for restart into steady state", nil)
		return
	}

	embeddingVersion := 1
	if existingConfig != nil {
		embeddingVersion = existingConfig.Version
	} else {
		if err := settings.UpsertEmbeddingConfig(ctx, model.EmbeddingConfig{
			ModelName: cfg.Embedding.ModelName, Dimension: dimension, Version: embeddingVersion,
			Generator: cfg.Embedding.Generator,
		}); err != nil {
			log.Fatalf("persist initial embedding config: %v", err)
		}
	}

	sup := worker.NewSupervisor(logger.WithPrefix("supervisor"))

	for i := 0; i < cfg.Worker.UploadWorkerCount; i++ {
		sup.Add("upload", worker.NewUploadWorker(worker.UploadWorkerConfig{
			Log: logger.WithPrefix("upload"), Metrics: metricsRegistry, Tasks: taskQueue,
			Docs: docs, Chunks: chunkRepo, Objects: objects, Graph: graph, GraphEnabled: cfg.Neo4j.Enabled,
			Dispatcher: dispatcher, Chunker: chunker, PollEvery: cfg.Worker.PollInterval,
			Operations: []model.Operation{model.OperationCreated, model.OperationUpdated},
			EmbeddingVersion: embeddingVersion,
		}))
	}
	for i := 0; i < cfg.Worker.DeletionWorkerCount; i++ {
		sup.Add("deletion", worker.NewUploadWorker(worker.UploadWorkerConfig{
			Log: logger.WithPrefix("deletion"), Metrics: metricsRegistry, Tasks: taskQueue,
			Docs: docs, Chunks: chunkRepo, Objects: objects, Graph: graph, GraphEnabled: cfg.Neo4j.Enabled,
			Dispatcher: dispatcher, Chunker: chunker, PollEvery: cfg.Worker.PollInterval,
			Operations: []model.Operation{model.OperationDeleted},
			EmbeddingVersion: embeddingVersion,
		}))
	}
	for i := 0; i < cfg.Worker.EnrichmentWorkerCount; i++ {
		sup.Add("enrichment", worker.NewEnrichmentWorker(worker.EnrichmentWorkerConfig{
			Log: logger.WithPrefix("enrichment"), Metrics: metricsRegistry, Tasks: taskQueue,
			Chunks: chunkRepo, LLMLog: llmlog, Embedder: adaptiveEmbedder, LLM: llmClient, Graph: graph,
			GraphEnabled: cfg.Neo4j.Enabled, EmbeddingVersion: embeddingVersion,
			EmbeddingBatchSize: cfg.Embedding.BatchSize, EnrichmentBatchSize: cfg.Worker.EnrichmentBatchSize,
			LLMMaxConcurrency: cfg.Worker.LLMMaxConcurrency, PollEvery: cfg.Worker.PollInterval,
			MetadataSystemPrompt: metadataSystemPrompt, RelationSystemPrompt: relationSystemPrompt,
		}))
	}

	go sup.Run(ctx)

	healthCheckers := []health.Checker{
		{Name: "database", Ping: func(ctx context.Context) error { return db.PingContext(ctx) }},
		{Name: "object_store", Ping: objects.Ping},
		{Name: "llm", Ping: llmClient.Ping},
	}
	if cfg.Neo4j.Enabled {
		healthCheckers = append(healthCheckers, health.Checker{Name: "graph_store", Ping: graph.Ping})
	}
	healthChecker := health.New(5*time.Second, healthCheckers...)
	mux := http.NewServeMux()
	mux.Handle("/health", healthChecker.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health/metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	sig := <-sigCh
	logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
