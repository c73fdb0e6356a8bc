package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration for coursebot. It is built once at startup
// and handed to each component by value or through a narrower struct.
type Config struct {
	General     GeneralConfig             `json:"general"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Generation  GenerationConfig          `json:"generation"`
	Search      SearchConfig              `json:"search"`
	Session     SessionConfig             `json:"session"`
	VectorStore VectorStoreConfig         `json:"vectorStore"`
	Embedding   EmbeddingConfig           `json:"embedding"`
	Knowledge   KnowledgeConfig           `json:"knowledge"`
	Metrics     MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	DataDir             string   `json:"dataDir"`
	LogLevel            string   `json:"logLevel"`
	LogFile             string   `json:"logFile,omitempty"`
	DefaultProvider     string   `json:"defaultProvider"`
	FailoverChain       []string `json:"failoverChain,omitempty"`
	QueryTimeoutSeconds int      `json:"queryTimeoutSeconds"`
}

// QueryTimeout returns the per-query deadline.
func (g GeneralConfig) QueryTimeout() time.Duration {
	return time.Duration(g.QueryTimeoutSeconds) * time.Second
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// GenerationConfig holds the fixed model parameters for every request.
type GenerationConfig struct {
	Model       string  `json:"model,omitempty"` // empty: provider default
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type SearchConfig struct {
	MaxResults int `json:"maxResults"`
}

type SessionConfig struct {
	MaxTurns int `json:"maxTurns"` // completed user/assistant exchanges kept per session
}

type VectorStoreConfig struct {
	Backend            string  `json:"backend"` // "memory" | "sqlite"
	DBPath             string  `json:"dbPath,omitempty"`
	ResolveMaxDistance float64 `json:"resolveMaxDistance"`
}

type EmbeddingConfig struct {
	Provider   string `json:"provider"` // "ollama" | "hash"
	APIBase    string `json:"apiBase,omitempty"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"` // hash embedder only
}

// KnowledgeConfig controls how lesson text is chunked during ingestion.
// Paths are loaded at startup when the index lives in memory.
type KnowledgeConfig struct {
	ChunkSize    int      `json:"chunkSize"`    // words per chunk
	ChunkOverlap int      `json:"chunkOverlap"` // overlapping words
	Paths        []string `json:"paths,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.coursebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coursebot"
	}
	return filepath.Join(home, ".coursebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.VectorStore.DBPath = ExpandPath(cfg.VectorStore.DBPath)
	for i, p := range cfg.Knowledge.Paths {
		cfg.Knowledge.Paths[i] = ExpandPath(p)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.QueryTimeoutSeconds < 1 {
		errs = append(errs, "general.queryTimeoutSeconds must be >= 1")
	}
	if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok && len(cfg.General.FailoverChain) == 0 {
		errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
	}
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for name, pc := range cfg.Providers {
		if pc.Enabled && name == "claude" && pc.APIKey == "" {
			errs = append(errs, "providers.claude: apiKey is required when enabled")
		}
	}

	if cfg.Generation.MaxTokens < 1 {
		errs = append(errs, "generation.maxTokens must be >= 1")
	}
	if cfg.Generation.Temperature < 0 || cfg.Generation.Temperature > 2 {
		errs = append(errs, "generation.temperature must be between 0 and 2")
	}

	// A zero limit used to be accepted and silently produced empty searches.
	if cfg.Search.MaxResults < 1 {
		errs = append(errs, "search.maxResults must be >= 1")
	}
	if cfg.Session.MaxTurns < 0 {
		errs = append(errs, "session.maxTurns must be >= 0")
	}

	switch cfg.VectorStore.Backend {
	case "memory":
		// Nothing survives the process, so the catalog must be rebuilt on start.
		if len(cfg.Knowledge.Paths) == 0 {
			errs = append(errs, "vectorStore.backend memory requires knowledge.paths")
		}
	case "sqlite":
		if cfg.VectorStore.DBPath == "" {
			errs = append(errs, "vectorStore.dbPath is required for the sqlite backend")
		}
	default:
		errs = append(errs, "vectorStore.backend must be one of: memory, sqlite")
	}
	if cfg.VectorStore.ResolveMaxDistance <= 0 || cfg.VectorStore.ResolveMaxDistance > 2 {
		errs = append(errs, "vectorStore.resolveMaxDistance must be in (0, 2]")
	}

	switch cfg.Embedding.Provider {
	case "ollama":
	case "hash":
		if cfg.Embedding.Dimensions < 16 {
			errs = append(errs, "embedding.dimensions must be >= 16 for the hash embedder")
		}
	default:
		errs = append(errs, "embedding.provider must be one of: ollama, hash")
	}

	if cfg.Knowledge.ChunkSize < 1 {
		errs = append(errs, "knowledge.chunkSize must be >= 1")
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0 and smaller than chunkSize")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
