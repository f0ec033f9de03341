package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LLMConfig struct {
	Backend string       `yaml:"backend"`
	Ollama  OllamaConfig `yaml:"ollama"`
	Gemini  GeminiConfig `yaml:"gemini"`
}

type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GeminiConfig struct {
	Model string `yaml:"model"`
	// APIKey comes from the GEMINI_API_KEY environment variable only; it is
	// never read from or written to the config file.
	APIKey string `yaml:"-"`
}

type AuthConfig struct {
	SessionTTL    string `yaml:"session_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// SessionLifetime returns the parsed session TTL.
func (c AuthConfig) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 720 * time.Hour
	}
	return d
}

// SweepEvery returns the parsed interval between expired-session sweeps.
func (c AuthConfig) SweepEvery() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OwnerEmail string `yaml:"owner_email"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4500,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Backend: "ollama",
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3.2",
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Auth: AuthConfig{
			SessionTTL:    "720h",
			SweepInterval: "1h",
		},
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
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
			return "listkeep-data"
		}
	}
	return filepath.Join(dir, "listkeep")
}

// DefaultPath returns where the config file lives when --config is not given.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads configuration from the YAML file at path (DefaultPath when path
// is empty), applies LISTKEEP_* environment overrides on top, and validates
// the result. A missing file is not an error; defaults apply.
//
// The Gemini API key is taken from GEMINI_API_KEY only.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fine, run on defaults.
	default:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	switch cfg.LLM.Backend {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("invalid config: llm.backend %q (want ollama or gemini)", cfg.LLM.Backend)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn, or error)", cfg.Log.Level)
	}
	for key, val := range map[string]string{
		"auth.session_ttl":    cfg.Auth.SessionTTL,
		"auth.sweep_interval": cfg.Auth.SweepInterval,
	} {
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid config: %s %q is not a positive duration", key, val)
		}
	}
	if cfg.RateLimit.RPS < 0 {
		return fmt.Errorf("invalid config: rate_limit.rps must not be negative")
	}
	if cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("invalid config: rate_limit.burst must not be negative")
	}
	if cfg.MCP.Enabled && cfg.MCP.OwnerEmail == "" {
		return fmt.Errorf("invalid config: mcp.enabled requires mcp.owner_email")
	}
	return nil
}
