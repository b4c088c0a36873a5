// Command loom runs the memory service: the hybrid memory manager and the
// system-config snapshot store behind an HTTP/JSON façade, grounded on
// cmd/agentd/main.go, wired in godotenv/config/logger/otel order.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ImitationGameLabs/ephemera-ai/internal/config"
	"github.com/ImitationGameLabs/ephemera-ai/internal/loomapi"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, observability.ServiceInfo{
		Name:         firstNonEmpty(cfg.ServiceName, "loom"),
		Version:      cfg.ServiceVersion,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	pool, err := memory.OpenPool(ctx, cfg.RelationalDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open relational store")
	}
	defer pool.Close()

	relational := memory.NewPostgresRelationalStore(pool)
	if err := relational.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize relational schema")
	}

	vector, err := memory.NewQdrantVectorStore(ctx, cfg.VectorDSN, "memory_fragments", cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vector store")
	}

	embedding := memory.NewHTTPEmbeddingEngine(memory.HTTPEmbeddingConfig{
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.URL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	}, observability.NewHTTPClient(nil))

	hybrid := memory.NewHybridManager(relational, vector, embedding, &log.Logger)

	configs := memory.NewPostgresConfigSnapshotStore(pool, relational)
	if err := configs.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize system config schema")
	}

	srv := loomapi.NewServer(hybrid, configs)

	addr := fmt.Sprintf(":%d", cfg.LoomServicePort)
	log.Info().Str("addr", addr).Msg("loom listening")
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatal().Err(err).Msg("loom server failed")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
