// Package config loads Loom's and Ephemera's runtime configuration from
// environment variables, grounded on the teacher's internal/config
// config.go/loader.go split (types here, os.Getenv parsing in loader.go).
package config

import "github.com/ImitationGameLabs/ephemera-ai/internal/completion"

// EmbeddingConfig configures the embedding engine Loom's hybrid manager
// depends on.
type EmbeddingConfig struct {
	Model      string
	URL        string
	APIKey     string
	Dimensions int
}

// Config is the full set of environment variables spec.md §6 recognizes,
// plus a small number of ambient additions (marked below) needed to wire
// Ephemera to Loom and Atrium over the network; spec.md §6 leaves those
// wire addresses unspecified, so they get reasonable names rather than no
// name at all.
type Config struct {
	LoomServicePort   int
	AtriumServicePort int

	// LoomServiceURL and AtriumServiceURL are Ephemera's view of where its
	// two collaborators live (ambient addition; spec.md §6 does not name
	// these since it treats the wire format as unspecified).
	LoomServiceURL   string
	AtriumServiceURL string

	RelationalDSN string // PSYCHE_LOOM_MYSQL_URL
	VectorDSN     string // EPHA_MEMORY_QDRANT_URL

	Embedding  EmbeddingConfig
	Completion completion.Config

	AtriumUsername string
	AtriumPassword string

	// StatesDir points at the directory of state markdown files
	// statemachine.LoadStatesFromDir reads (ambient addition).
	StatesDir string

	// KafkaBrokers, when non-empty, routes the context window's
	// fire-and-forget fragment persistence through a durable Kafka topic
	// instead of persisting straight to Loom's HTTP façade (ambient
	// addition; spec.md §5.1 leaves the persist queue's transport
	// unspecified beyond "fire-and-forget").
	KafkaBrokers      string
	KafkaPersistTopic string

	LogLevel string
	LogPath  string

	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}
