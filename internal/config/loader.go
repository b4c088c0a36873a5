package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ImitationGameLabs/ephemera-ai/internal/completion"
)

const (
	defaultLoomServicePort   = 8080
	defaultAtriumServicePort = 3000
	defaultStatesDir         = "states"
	defaultKafkaPersistTopic = "ephemera.context.persist"
)

// Load reads every recognized environment variable from spec.md §6, applying
// the documented defaults, grounded on the teacher's loader.go os.Getenv
// pattern.
func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.LoomServicePort, err = intEnv("LOOM_SERVICE_PORT", defaultLoomServicePort)
	if err != nil {
		return Config{}, err
	}
	cfg.AtriumServicePort, err = intEnv("ATRIUM_SERVICE_PORT", defaultAtriumServicePort)
	if err != nil {
		return Config{}, err
	}

	cfg.LoomServiceURL = strings.TrimSpace(os.Getenv("LOOM_SERVICE_URL"))
	if cfg.LoomServiceURL == "" {
		cfg.LoomServiceURL = fmt.Sprintf("http://localhost:%d", cfg.LoomServicePort)
	}
	cfg.AtriumServiceURL = strings.TrimSpace(os.Getenv("ATRIUM_SERVICE_URL"))
	if cfg.AtriumServiceURL == "" {
		cfg.AtriumServiceURL = fmt.Sprintf("http://localhost:%d", cfg.AtriumServicePort)
	}

	cfg.RelationalDSN = strings.TrimSpace(os.Getenv("PSYCHE_LOOM_MYSQL_URL"))
	cfg.VectorDSN = strings.TrimSpace(os.Getenv("EPHA_MEMORY_QDRANT_URL"))

	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL"))
	cfg.Embedding.URL = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_URL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_DIMENSIONS")); v != "" {
		cfg.Embedding.Dimensions, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("EMBEDDING_MODEL_DIMENSIONS: %w", err)
		}
	}

	cfg.Completion = completion.Config{
		Model:   strings.TrimSpace(os.Getenv("MODEL_NAME")),
		APIKey:  strings.TrimSpace(os.Getenv("API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("BASE_URL")),
	}

	cfg.AtriumUsername = strings.TrimSpace(os.Getenv("ATRIUM_USERNAME"))
	cfg.AtriumPassword = strings.TrimSpace(os.Getenv("ATRIUM_PASSWORD"))

	cfg.StatesDir = strings.TrimSpace(os.Getenv("EPHEMERA_STATES_DIR"))
	if cfg.StatesDir == "" {
		cfg.StatesDir = defaultStatesDir
	}

	cfg.KafkaBrokers = strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaPersistTopic = strings.TrimSpace(os.Getenv("KAFKA_PERSIST_TOPIC"))
	if cfg.KafkaPersistTopic == "" {
		cfg.KafkaPersistTopic = defaultKafkaPersistTopic
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	cfg.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}
