// Command ephemera runs the agent runtime: a state machine driving a
// round-by-round perceive/recall/reason/output cycle against the hybrid
// memory engine and Atrium's dialogue transport, grounded on
// cmd/agentd/main.go's wiring order and cmd/orchestrator's
// signal.NotifyContext shutdown pattern.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/ImitationGameLabs/ephemera-ai/internal/agentloop"
	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
	"github.com/ImitationGameLabs/ephemera-ai/internal/config"
	"github.com/ImitationGameLabs/ephemera-ai/internal/contextwindow"
	"github.com/ImitationGameLabs/ephemera-ai/internal/dialogue"
	"github.com/ImitationGameLabs/ephemera-ai/internal/loomclient"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
	"github.com/ImitationGameLabs/ephemera-ai/internal/recallcache"
	"github.com/ImitationGameLabs/ephemera-ai/internal/statemachine"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observability.InitOTel(ctx, observability.ServiceInfo{
		Name:         firstNonEmpty(cfg.ServiceName, "ephemera"),
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

	// Ephemera shares Loom's relational/vector stores directly rather than
	// proxying every recall through Loom's HTTP façade, so memory_recall
	// stays a single round-trip-free call per spec.md §5's latency shape.
	pool, err := memory.OpenPool(ctx, cfg.RelationalDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open relational store")
	}
	defer pool.Close()
	relational := memory.NewPostgresRelationalStore(pool)

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

	machine := statemachine.New()
	states, err := statemachine.LoadStatesFromDir(cfg.StatesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load states")
	}
	for _, st := range states {
		if err := machine.Register(st); err != nil {
			log.Fatal().Err(err).Msg("failed to register state")
		}
	}

	httpPersister := loomclient.NewHTTPClient(cfg.LoomServiceURL, "", observability.NewHTTPClient(nil))
	window := contextwindow.New(contextwindow.DefaultTokenLimit, newFragmentPersister(ctx, cfg, httpPersister), &log.Logger)

	cache := recallcache.New()

	transport := dialogue.NewHTTPClient(cfg.AtriumServiceURL, observability.NewHTTPClient(nil))
	creds := dialogue.Credentials{Username: cfg.AtriumUsername, Password: cfg.AtriumPassword}

	registries := map[string]*agentloop.Registry{
		"perception": perceptionRegistry(transport, creds),
		"recall":     recallRegistry(hybrid, cache, window),
		"reasoning":  reasoningRegistry(machine),
		"output":     outputRegistry(transport, creds),
	}

	provider := completion.NewChat(cfg.Completion, observability.NewHTTPClient(nil))
	executor := agentloop.NewExecutor(machine, window, provider, registries, &log.Logger)

	log.Info().Msg("ephemera starting agent loop")
	for {
		if ctx.Err() != nil {
			log.Info().Msg("ephemera shutting down")
			return
		}
		if err := executor.RunRound(ctx); err != nil {
			log.Error().Err(err).Msg("round failed")
		}
	}
}

// newFragmentPersister routes the context window's fire-and-forget fragment
// persistence through a durable Kafka topic when KAFKA_BROKERS is
// configured, falling back to persisting straight to Loom's HTTP façade
// otherwise. The Kafka path runs its own consumer goroutine for the
// process's lifetime, forwarding decoded fragments to the same HTTP
// persister direct mode would have used.
func newFragmentPersister(ctx context.Context, cfg config.Config, direct loomclient.FragmentPersister) loomclient.FragmentPersister {
	brokers := strings.TrimSpace(cfg.KafkaBrokers)
	if brokers == "" {
		return direct
	}

	brokerList := strings.Split(brokers, ",")
	for i, b := range brokerList {
		brokerList[i] = strings.TrimSpace(b)
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokerList...),
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList,
		GroupID:  "ephemera-context-window",
		Topic:    cfg.KafkaPersistTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	consumer := contextwindow.NewKafkaPersistConsumer(reader, direct, &log.Logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("kafka persist consumer stopped")
		}
		_ = reader.Close()
	}()

	return contextwindow.NewKafkaPersister(writer, cfg.KafkaPersistTopic)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func perceptionRegistry(transport dialogue.Transport, creds dialogue.Credentials) *agentloop.Registry {
	r := agentloop.NewRegistry()
	r.Register("get_messages", &agentloop.GetMessagesTool{Transport: transport, Creds: creds})
	return r
}

func recallRegistry(hybrid *memory.HybridManager, cache *recallcache.Cache, window *contextwindow.Window) *agentloop.Registry {
	r := agentloop.NewRegistry()
	r.Register("memory_recall", &agentloop.MemoryRecallTool{Manager: hybrid, Cache: cache})
	r.Register("select_memories", &agentloop.SelectMemoriesTool{Cache: cache, Window: window})
	return r
}

func reasoningRegistry(machine *statemachine.Machine) *agentloop.Registry {
	r := agentloop.NewRegistry()
	r.Register("state_transition", &agentloop.StateTransitionTool{Machine: machine})
	return r
}

func outputRegistry(transport dialogue.Transport, creds dialogue.Credentials) *agentloop.Registry {
	r := agentloop.NewRegistry()
	r.Register("send_message", &agentloop.SendMessageTool{Transport: transport, Creds: creds})
	return r
}
