package main

import (
	"context"

	"github.com/sandevgo/docqa/internal/config"
	"github.com/sandevgo/docqa/internal/providers/embed"
	"github.com/sandevgo/docqa/internal/providers/llm"
	"github.com/sandevgo/docqa/internal/providers/loader"
	"github.com/sandevgo/docqa/internal/service/answer"
	"github.com/sandevgo/docqa/internal/service/ingest"
	"github.com/sandevgo/docqa/internal/service/session"
	"github.com/sandevgo/docqa/internal/storage/sqlite"
	httptransport "github.com/sandevgo/docqa/internal/transport/http"
	"github.com/sandevgo/docqa/internal/vectorstore"
	"github.com/sandevgo/docqa/pkg/log"
	"github.com/sandevgo/docqa/pkg/srv"
)

func NewServices(ctx context.Context) ([]srv.Service, error) {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	embCfg := config.NewEmbeddingConfig(ctx)

	// 2. Session storage
	db, err := sqlite.NewDB(ctx, appCfg.SessionDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize session storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	store := sqlite.NewSessionStore(db, appCfg.SessionDBPath, appCfg.SessionTTL())

	// 3. Embedder and vector store
	embedder := embed.NewEmbedder(embCfg.BaseURL, embCfg.APIKey, embCfg.Model)

	registry, err := vectorstore.NewRegistry(appCfg.VectorStorePath, embedder)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vector store")
	}

	// 4. LLM provider
	aiProvider, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 5. Session lifecycle manager and background sweeper
	sessions := session.NewManager(store, appCfg.SessionTTL(), appCfg.MaxCachedSessions, appCfg.ContextWindowSize)
	services = append(services, session.NewSweeper(sessions, appCfg.CleanupInterval()))

	// 6. Ingestion
	tok, err := loader.NewTiktokenTokenizer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tokenizer")
	}
	ingestor := ingest.NewIngestor(loader.NewFileLoader(), tok, registry)

	// 7. Answer orchestrator
	orchestrator := answer.NewOrchestrator(registry, sessions, aiProvider, appCfg.RetrievalTopK, llmCfg.Timeout())

	// 8. HTTP transport
	handler := httptransport.NewHandler(orchestrator, ingestor, sessions, registry)
	services = append(services, httptransport.NewServer(appCfg.HTTPAddr, handler))

	return services, nil
}
