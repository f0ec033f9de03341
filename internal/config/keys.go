package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
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
		key: "server.port", typ: kInt, env: "LISTKEEP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LISTKEEP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.backend", typ: kString, env: "LISTKEEP_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.ollama.base_url", typ: kString, env: "LISTKEEP_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Ollama.BaseURL },
	},
	{
		key: "llm.ollama.model", typ: kString, env: "LISTKEEP_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Ollama.Model },
	},
	{
		key: "llm.gemini.model", typ: kString, env: "LISTKEEP_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Gemini.Model },
	},
	{
		key: "llm.gemini.api_key", typ: kString, env: "GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Gemini.APIKey },
	},
	{
		key: "auth.session_ttl", typ: kDuration, env: "LISTKEEP_AUTH_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SessionTTL },
	},
	{
		key: "auth.sweep_interval", typ: kDuration, env: "LISTKEEP_AUTH_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SweepInterval },
	},
	{
		key: "rate_limit.rps", typ: kFloat, env: "LISTKEEP_RATE_LIMIT_RPS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.RateLimit.RPS },
	},
	{
		key: "rate_limit.burst", typ: kInt, env: "LISTKEEP_RATE_LIMIT_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Burst },
	},
	{
		key: "mcp.enabled", typ: kBool, env: "LISTKEEP_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.MCP.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.MCP.Enabled },
	},
	{
		key: "mcp.owner_email", typ: kString, env: "LISTKEEP_MCP_OWNER_EMAIL",
		apply:   func(cfg *Config, v any) { cfg.MCP.OwnerEmail = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.OwnerEmail },
	},
	{
		key: "log.level", typ: kString, env: "LISTKEEP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if _, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, raw)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
