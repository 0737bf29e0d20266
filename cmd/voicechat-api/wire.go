package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/PabloGalante/voicechat/internal/adapters/llm"
	boltstore "github.com/PabloGalante/voicechat/internal/adapters/storage/bolt"
	firestorestore "github.com/PabloGalante/voicechat/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/voicechat/internal/adapters/storage/memory"
	"github.com/PabloGalante/voicechat/internal/adapters/vectorstore"
	"github.com/PabloGalante/voicechat/internal/app/agentflow"
	"github.com/PabloGalante/voicechat/internal/app/completion"
	"github.com/PabloGalante/voicechat/internal/app/conversation"
	"github.com/PabloGalante/voicechat/internal/app/retrieval"
	"github.com/PabloGalante/voicechat/internal/app/session"
	"github.com/PabloGalante/voicechat/internal/config"
	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

// app holds everything serve needs, built once from config.
type app struct {
	registry *session.Registry
	service  *conversation.Service
	metrics  *prometheus.Registry
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(a.metrics)

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	backend, err := buildCompleter(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var retriever agentflow.Retriever
	if cfg.Retrieval.Backend != "none" {
		embedder, err := buildEmbedder(cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		searcher, closeSearcher, err := buildSearcher(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, closeSearcher)
		retriever = retrieval.NewClient(embedder, searcher, cfg.Retrieval.TopK)
	}

	a.registry = session.NewRegistry(store, cfg.Session.TTL)
	observability.RegisterSessionGauge(a.metrics, a.registry.Len)

	orch := agentflow.NewOrchestrator(agentflow.Deps{
		Sessions:  a.registry,
		Store:     store,
		LLM:       completion.NewClient(backend, metrics),
		Retriever: retriever,
		Metrics:   metrics,
	}, agentflow.Config{
		Models: agentflow.Models{
			Rewrite: cfg.Models.Rewrite,
			Opener:  cfg.Models.Opener,
			Answer:  cfg.Models.Answer,
		},
		Query:            cfg.Retrieval.Query,
		RetrievalOptions: cfg.Retrieval.Options,
		TopK:             cfg.Retrieval.TopK,
		MaxHistoryItems:  cfg.Chat.MaxHistoryItems,
	})

	a.service = conversation.NewService(a.registry, orch)
	return a, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (domain.ConversationStore, func() error, error) {
	log := observability.Logger().With("component", "storage")

	switch cfg.Storage.Backend {
	case "firestore":
		log.Info("using firestore storage", "project", cfg.Storage.GCPProject)
		s, err := firestorestore.NewStore(ctx, cfg.Storage.GCPProject)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "bolt":
		log.Info("using bolt storage", "path", cfg.Storage.BoltPath)
		s, err := boltstore.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		log.Info("using in-memory storage")
		return memstore.NewConversationStore(), func() error { return nil }, nil
	}
}

func buildCompleter(ctx context.Context, cfg *config.Config) (domain.Completer, error) {
	log := observability.Logger().With("component", "llm")

	switch cfg.LLM.Provider {
	case "openai":
		log.Info("using openai completions", "base_url", cfg.LLM.BaseURL)
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL})
	case "vertex":
		log.Info("using vertex completions", "project", cfg.LLM.GCPProject, "location", cfg.LLM.GCPLocation)
		return llm.NewVertexClient(ctx, llm.VertexConfig{Project: cfg.LLM.GCPProject, Location: cfg.LLM.GCPLocation})
	default:
		log.Info("using mock completions")
		return llm.NewMockLLM(), nil
	}
}

func buildEmbedder(cfg *config.Config) (domain.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return llm.NewOpenAIEmbedder(llm.EmbedderConfig{
			OpenAIConfig: llm.OpenAIConfig{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL},
			Model:        cfg.Embedding.Model,
			CacheSize:    cfg.Embedding.CacheSize,
		})
	default:
		return llm.NewHashEmbedder(cfg.Embedding.Dimensions), nil
	}
}

func buildSearcher(ctx context.Context, cfg *config.Config) (domain.Searcher, func() error, error) {
	switch cfg.Retrieval.Backend {
	case "neo4j":
		s, err := vectorstore.NewNeo4jSearcher(ctx, vectorstore.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return s.Close(context.Background()) }, nil
	case "chromem":
		s, err := openChromem(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
	}
}

func openChromem(cfg *config.Config) (*vectorstore.ChromemSearcher, error) {
	return vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{
		PersistPath: cfg.Chromem.Path,
		Collection:  cfg.Chromem.Collection,
	})
}
