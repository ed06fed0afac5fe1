// Package main implements the knowledged daemon: the knowledge base HTTP
// API backed by a SQLite record store, a Qdrant vector store and an
// embedding service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embedding"
	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/index"
	"github.com/fyrsmithlabs/knowledged/internal/ingest"
	"github.com/fyrsmithlabs/knowledged/internal/llm"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/qdrant"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/recordstore"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "knowledged",
	Short:   "Knowledge base daemon with retrieval-augmented query answering",
	Version: version,
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knowledged HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	records, err := recordstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer records.Close()

	embedService, err := embedding.NewService(embedding.Config{
		BaseURL:          cfg.Embedding.BaseURL,
		Model:            cfg.Embedding.Model,
		DefaultDimension: cfg.Embedding.DefaultDimension,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	embedder := embedding.NewLazy(embedService, logger.Named("embedding"))
	defer embedder.Close()

	// The vector store is an optional enhancement. When it is disabled or
	// unreachable the daemon still serves the record store endpoints;
	// ingestion degrades to a no-op and queries report unavailable.
	var vectorClient qdrant.Client
	if cfg.Qdrant.Enabled {
		client, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey,
			RequestTimeout: cfg.Qdrant.RequestTimeout,
		}, logger.Named("qdrant"))
		if err != nil {
			logger.Warn("vector store unavailable, running without retrieval", zap.Error(err))
		} else {
			vectorClient = client
			defer client.Close()
		}
	}

	var (
		indexes   *index.Manager
		reindexer httpserver.Reindexer
	)
	if vectorClient != nil {
		indexes = index.NewManager(vectorClient, logger.Named("index"))
		reindexer = indexes
	}
	ingestor := ingest.NewIngestor(vectorClient, indexes, embedder, logger.Named("ingest"))
	retriever := retrieval.NewRetriever(vectorClient, embedder, logger.Named("retrieval"))

	generator := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})

	ragService := rag.NewService(retriever, generator, cfg.Retrieval.Collections, logger.Named("rag"))

	server, err := httpserver.NewServer(&httpserver.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Collections: cfg.Retrieval.Collections,
		DefaultTopK: cfg.Retrieval.TopK,
	}, ragService, reindexer, embedder, ingestor, records, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
