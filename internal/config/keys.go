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
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ADOPS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "ADOPS_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "meta.base_url", typ: kString, env: "ADOPS_META_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Meta.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Meta.BaseURL },
	},
	{
		key: "ai.openai_api_key", typ: kString, env: "ADOPS_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenAIAPIKey },
	},
	{
		key: "ai.gemini_api_key", typ: kString, env: "ADOPS_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.GeminiAPIKey },
	},
	{
		key: "ai.openai_model", typ: kString, env: "ADOPS_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.OpenAIModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenAIModel },
	},
	{
		key: "ai.gemini_model", typ: kString, env: "ADOPS_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.GeminiModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ADOPS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "optimizer.interval_minutes", typ: kInt, env: "ADOPS_OPTIMIZER_INTERVAL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Optimizer.IntervalMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Optimizer.IntervalMinutes },
	},
	{
		key: "log.level", typ: kString, env: "ADOPS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
