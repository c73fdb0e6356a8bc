package main

import (
	"context"
	"database/sql"
	"fmt"

	"coursebot/internal/agent"
	"coursebot/internal/config"
	"coursebot/internal/domain"
	"coursebot/internal/embedding"
	"coursebot/internal/knowledge"
	"coursebot/internal/provider"
	"coursebot/internal/tool"
	"coursebot/internal/vectorstore"
)

// app holds the wired components. Commands build only what they need:
// ingest and mcp never touch a generative provider.
type app struct {
	cfg      *config.Config
	store    *vectorstore.Store
	registry *tool.Registry
	db       *sql.DB
}

func newEmbedder(cfg config.EmbeddingConfig) (domain.Embedder, error) {
	if cfg.Provider == "hash" {
		return embedding.NewHash(cfg.Dimensions), nil
	}
	emb, err := embedding.NewOllama(embedding.OllamaConfig{
		APIBase: cfg.APIBase,
		Model:   cfg.Model,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// embedderFingerprint identifies the vector space an index was built in.
func embedderFingerprint(cfg config.EmbeddingConfig) string {
	if cfg.Provider == "hash" {
		return fmt.Sprintf("hash:%d", cfg.Dimensions)
	}
	return "ollama:" + cfg.Model
}

// openApp builds the vector store and tool registry. rebuild accepts an
// index built by a different embedder; the caller must then clear it.
func openApp(ctx context.Context, cfg *config.Config, rebuild bool) (*app, error) {
	a := &app{cfg: cfg}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	var catalog, content vectorstore.Collection
	switch cfg.VectorStore.Backend {
	case "memory":
		catalog = vectorstore.NewMemoryCollection("catalog")
		content = vectorstore.NewMemoryCollection("content")
	default:
		db, err := vectorstore.OpenSQLite(cfg.VectorStore.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		a.db = db
		if err := vectorstore.CheckEmbedder(ctx, db, embedderFingerprint(cfg.Embedding), rebuild); err != nil {
			db.Close()
			return nil, err
		}
		c, err := vectorstore.NewSQLiteCollection(ctx, db, "catalog")
		if err != nil {
			db.Close()
			return nil, err
		}
		t, err := vectorstore.NewSQLiteCollection(ctx, db, "content")
		if err != nil {
			db.Close()
			return nil, err
		}
		catalog, content = c, t
	}

	a.store = vectorstore.NewStore(vectorstore.StoreConfig{
		Catalog:            catalog,
		Content:            content,
		Embedder:           embedder,
		ResolveMaxDistance: cfg.VectorStore.ResolveMaxDistance,
		Logger:             logger,
	})

	a.registry = tool.NewRegistry(logger)
	a.registry.Register(tool.NewCourseSearchTool(tool.CourseSearchConfig{
		Index:      a.store,
		MaxResults: cfg.Search.MaxResults,
		Logger:     logger,
	}))
	a.registry.Register(tool.NewCourseOutlineTool(a.store, logger))

	if cfg.VectorStore.Backend == "memory" {
		if err := a.loadKnowledgePaths(ctx); err != nil {
			return nil, err
		}
	}

	logger.Debug("index opened", "backend", cfg.VectorStore.Backend, "tools", a.registry.Names())
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("close index", "error", err)
		}
	}
}

func (a *app) engine() *knowledge.Engine {
	return knowledge.NewEngine(knowledge.EngineConfig{
		Store:     a.store,
		ChunkSize: a.cfg.Knowledge.ChunkSize,
		Overlap:   a.cfg.Knowledge.ChunkOverlap,
		Logger:    logger,
	})
}

// loadKnowledgePaths fills an in-memory index from knowledge.paths.
func (a *app) loadKnowledgePaths(ctx context.Context) error {
	courses, err := knowledge.LoadPaths(a.cfg.Knowledge.Paths, logger)
	if err != nil {
		return fmt.Errorf("load knowledge.paths: %w", err)
	}
	report, err := a.engine().Ingest(ctx, courses, knowledge.IngestOptions{})
	if err != nil {
		return fmt.Errorf("ingest knowledge.paths: %w", err)
	}
	logger.Info("loaded courses into memory index", "courses", len(report.Courses), "chunks", report.Chunks)
	return nil
}

// coordinator wires the generative side on top of the index.
func (a *app) coordinator() (*agent.Coordinator, error) {
	prov, err := provider.NewFactory(a.cfg, logger).Build()
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	gen := agent.NewGenerator(agent.GeneratorConfig{
		Provider:    prov,
		Tools:       a.registry,
		Prompt:      agent.NewPromptBuilder(""),
		Model:       a.cfg.Generation.Model,
		MaxTokens:   a.cfg.Generation.MaxTokens,
		Temperature: a.cfg.Generation.Temperature,
		Logger:      logger,
	})
	return agent.NewCoordinator(agent.CoordinatorConfig{
		Generator: gen,
		Sessions:  agent.NewSessionManager(a.cfg.Session.MaxTurns, logger),
		Catalog:   a.store,
		Timeout:   a.cfg.General.QueryTimeout(),
		Logger:    logger,
	}), nil
}
