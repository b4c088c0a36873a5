package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, hadOld := os.LookupEnv(key)
	t.Cleanup(func() {
		if hadOld {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
	_ = os.Setenv(key, value)
}

func TestLoad_DefaultsPortsWhenUnset(t *testing.T) {
	_ = os.Unsetenv("LOOM_SERVICE_PORT")
	_ = os.Unsetenv("ATRIUM_SERVICE_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LoomServicePort != defaultLoomServicePort {
		t.Fatalf("expected default loom port %d, got %d", defaultLoomServicePort, cfg.LoomServicePort)
	}
	if cfg.AtriumServicePort != defaultAtriumServicePort {
		t.Fatalf("expected default atrium port %d, got %d", defaultAtriumServicePort, cfg.AtriumServicePort)
	}
}

func TestLoad_ReadsAllRecognizedVariables(t *testing.T) {
	withEnv(t, "LOOM_SERVICE_PORT", "9090")
	withEnv(t, "ATRIUM_SERVICE_PORT", "4000")
	withEnv(t, "PSYCHE_LOOM_MYSQL_URL", "postgres://localhost/loom")
	withEnv(t, "EPHA_MEMORY_QDRANT_URL", "http://localhost:6334")
	withEnv(t, "EMBEDDING_MODEL", "text-embed-3")
	withEnv(t, "EMBEDDING_MODEL_URL", "http://localhost:11434/embeddings")
	withEnv(t, "EMBEDDING_MODEL_API_KEY", "embed-key")
	withEnv(t, "EMBEDDING_MODEL_DIMENSIONS", "768")
	withEnv(t, "MODEL_NAME", "gpt-test")
	withEnv(t, "API_KEY", "completion-key")
	withEnv(t, "BASE_URL", "http://localhost:8081")
	withEnv(t, "ATRIUM_USERNAME", "agent")
	withEnv(t, "ATRIUM_PASSWORD", "hunter2")
	withEnv(t, "LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LoomServicePort != 9090 || cfg.AtriumServicePort != 4000 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
	if cfg.RelationalDSN != "postgres://localhost/loom" {
		t.Fatalf("unexpected relational dsn: %q", cfg.RelationalDSN)
	}
	if cfg.VectorDSN != "http://localhost:6334" {
		t.Fatalf("unexpected vector dsn: %q", cfg.VectorDSN)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Fatalf("unexpected dimensions: %d", cfg.Embedding.Dimensions)
	}
	if cfg.Completion.Model != "gpt-test" || cfg.Completion.APIKey != "completion-key" {
		t.Fatalf("unexpected completion config: %+v", cfg.Completion)
	}
	if cfg.AtriumUsername != "agent" || cfg.AtriumPassword != "hunter2" {
		t.Fatalf("unexpected atrium creds: %+v", cfg)
	}
}

func TestLoad_InvalidPortReturnsError(t *testing.T) {
	withEnv(t, "LOOM_SERVICE_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid LOOM_SERVICE_PORT")
	}
}

func TestLoad_InvalidDimensionsReturnsError(t *testing.T) {
	withEnv(t, "EMBEDDING_MODEL_DIMENSIONS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid EMBEDDING_MODEL_DIMENSIONS")
	}
}
