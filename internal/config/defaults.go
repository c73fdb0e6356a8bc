package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:             "~/.coursebot",
			LogLevel:            "info",
			DefaultProvider:     "ollama",
			QueryTimeoutSeconds: 120,
		},
		Providers: map[string]ProviderConfig{
			"claude": {
				Enabled:      false,
				APIKey:       "",
				DefaultModel: "claude-sonnet-4-20250514",
			},
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Generation: GenerationConfig{
			MaxTokens:   800,
			Temperature: 0,
		},
		Search: SearchConfig{
			MaxResults: 5,
		},
		Session: SessionConfig{
			MaxTurns: 2,
		},
		VectorStore: VectorStoreConfig{
			Backend:            "sqlite",
			DBPath:             "~/.coursebot/index.db",
			ResolveMaxDistance: 0.85,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			APIBase:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 512,
		},
		Knowledge: KnowledgeConfig{
			ChunkSize:    160,
			ChunkOverlap: 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
