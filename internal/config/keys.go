package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DESKFLOW_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "provider.base_url", typ: kString, env: "DESKFLOW_PROVIDER_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Provider.BaseURL = v.(string) },
	},
	{
		key: "provider.api_key", typ: kString, env: "DESKFLOW_PROVIDER_API_KEY",
		apply: func(cfg *Config, v any) { cfg.Provider.APIKey = v.(string) },
	},
	{
		key: "provider.chat_model", typ: kString, env: "DESKFLOW_PROVIDER_CHAT_MODEL",
		apply: func(cfg *Config, v any) { cfg.Provider.ChatModel = v.(string) },
	},
	{
		key: "provider.embed_model", typ: kString, env: "DESKFLOW_PROVIDER_EMBED_MODEL",
		apply: func(cfg *Config, v any) { cfg.Provider.EmbedModel = v.(string) },
	},
	{
		key: "provider.timeout", typ: kString, env: "DESKFLOW_PROVIDER_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Provider.Timeout = v.(string) },
	},
	{
		key: "provider.max_retries", typ: kInt, env: "DESKFLOW_PROVIDER_MAX_RETRIES",
		apply: func(cfg *Config, v any) { cfg.Provider.MaxRetries = v.(int) },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "DESKFLOW_RETRIEVAL_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "DESKFLOW_RETRIEVAL_MIN_SCORE",
		apply: func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
	},
	{
		key: "ingest.chunk_size", typ: kInt, env: "DESKFLOW_INGEST_CHUNK_SIZE",
		apply: func(cfg *Config, v any) { cfg.Ingest.ChunkSize = v.(int) },
	},
	{
		key: "ingest.chunk_overlap", typ: kInt, env: "DESKFLOW_INGEST_CHUNK_OVERLAP",
		apply: func(cfg *Config, v any) { cfg.Ingest.ChunkOverlap = v.(int) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DESKFLOW_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "DESKFLOW_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] ignoring invalid integer in %s: %q\n", s.env, raw)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] ignoring invalid float in %s: %q\n", s.env, raw)
			}
		}
	}
}
