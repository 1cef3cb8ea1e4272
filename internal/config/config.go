package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// ProviderConfig describes the completion/embedding provider. The default
// base URL targets the Gemini OpenAI-compatible endpoint; any provider
// speaking the same surface works.
type ProviderConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	Timeout    string // Go duration string, per external call
	MaxRetries int    // transient-failure retries per call
}

type RetrievalConfig struct {
	TopK     int
	MinScore float64 // passages scoring below this floor are dropped
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Provider: ProviderConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta/openai",
			ChatModel:  "gemini-1.5-flash",
			EmbedModel: "text-embedding-004",
			Timeout:    "30s",
			MaxRetries: 2,
		},
		Retrieval: RetrievalConfig{
			TopK:     4,
			MinScore: 0.3,
		},
		Ingest: IngestConfig{
			ChunkSize:    300,
			ChunkOverlap: 30,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "deskflow-data"
		}
	}
	return filepath.Join(dir, "deskflow")
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/deskflow/config.json) with DESKFLOW_* environment
// variables taking precedence. The provider API key is required: a missing
// key is a startup-time fatal condition, never a per-turn error.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: provider API key. " +
			"Set it via environment variable DESKFLOW_PROVIDER_API_KEY")
	}

	return cfg, nil
}
