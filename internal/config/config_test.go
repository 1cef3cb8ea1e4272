package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{"provider.api_key": "test-key"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("Retrieval.TopK = %d, want 4", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinScore != 0.3 {
		t.Errorf("Retrieval.MinScore = %v, want 0.3", cfg.Retrieval.MinScore)
	}
	if cfg.Ingest.ChunkSize != 300 || cfg.Ingest.ChunkOverlap != 30 {
		t.Errorf("Ingest = %d/%d, want 300/30", cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Provider.ChatModel != "gemini-1.5-flash" {
		t.Errorf("Provider.ChatModel = %q", cfg.Provider.ChatModel)
	}
}

func TestLoad_BackendOverridesDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{
		"provider.api_key":    "test-key",
		"server.port":         9100,
		"retrieval.min_score": 0.5,
		"provider.chat_model": "gemini-2.0-flash",
	})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Retrieval.MinScore != 0.5 {
		t.Errorf("Retrieval.MinScore = %v, want 0.5", cfg.Retrieval.MinScore)
	}
	if cfg.Provider.ChatModel != "gemini-2.0-flash" {
		t.Errorf("Provider.ChatModel = %q", cfg.Provider.ChatModel)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	t.Setenv("DESKFLOW_SERVER_PORT", "7777")
	t.Setenv("DESKFLOW_RETRIEVAL_TOP_K", "8")

	cfg, err := loadWith(mapBackend{
		"provider.api_key": "test-key",
		"server.port":      9100,
	})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env wins over backend)", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("Retrieval.TopK = %d, want 8", cfg.Retrieval.TopK)
	}
}

func TestLoad_EnvAPIKey(t *testing.T) {
	t.Setenv("DESKFLOW_PROVIDER_API_KEY", "env-key")

	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("Provider.APIKey = %q, want env-key", cfg.Provider.APIKey)
	}
}

func TestLoad_MissingAPIKeyFatal(t *testing.T) {
	_, err := loadWith(mapBackend{})
	if err == nil {
		t.Fatal("loadWith() error = nil, want error for missing API key")
	}
	if !strings.Contains(err.Error(), "DESKFLOW_PROVIDER_API_KEY") {
		t.Errorf("error %q should mention the env variable", err)
	}
}

func TestGetAPIToken_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("GetAPIToken returned empty token")
	}

	second, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if first != second {
		t.Errorf("token changed across calls: %q vs %q", first, second)
	}
}
