package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/cognigraph/internal/api"
	"github.com/nidhogg/cognigraph/internal/config"
	"github.com/nidhogg/cognigraph/internal/embedding"
	"github.com/nidhogg/cognigraph/internal/engine"
	"github.com/nidhogg/cognigraph/internal/eventlog"
	"github.com/nidhogg/cognigraph/internal/index"
	"github.com/nidhogg/cognigraph/internal/kgraph"
	"github.com/nidhogg/cognigraph/internal/memory"
	"github.com/nidhogg/cognigraph/internal/simulation"
	"github.com/nidhogg/cognigraph/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Cognigraph...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/cognigraph.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx := context.Background()

	// Memory store: Neo4j when reachable, in-memory otherwise.
	var store memory.Store
	var graphStore *memory.GraphStore
	gs, err := memory.NewGraphStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
	if err != nil {
		logger.Warn("Neo4j unavailable, using volatile in-memory store", zap.Error(err))
		store = memory.NewInMemoryStore()
	} else {
		if err := gs.InitConstraints(ctx); err != nil {
			logger.Fatal("constraint setup failed", zap.Error(err))
		}
		graphStore = gs
		store = gs
	}
	manager := memory.NewManager(store, logger)

	// PostgreSQL ingestion event log
	var audit *eventlog.Store
	if cfg.Database.Postgres.DSN != "" {
		ev, pgErr := eventlog.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without ingestion log", zap.Error(pgErr))
		} else {
			if mErr := ev.Migrate(ctx, "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			audit = ev
		}
	}

	// Embedding provider, optionally behind a Redis cache.
	var provider embedding.Provider
	if cfg.Embedding.Provider != "" {
		p, embErr := embedding.New(embedding.Config{
			Provider:  cfg.Embedding.Provider,
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
		if embErr != nil {
			logger.Warn("embedding provider misconfigured, similarity search disabled", zap.Error(embErr))
		} else {
			provider = p
			if cfg.Database.Redis.URL != "" {
				ttl, _ := time.ParseDuration(cfg.Embedding.CacheTTL)
				cached, cacheErr := embedding.NewCachedProvider(p, cfg.Database.Redis.URL, ttl, logger)
				if cacheErr != nil {
					logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(cacheErr))
				} else {
					provider = cached
					defer cached.Close()
				}
			}
		}
	}

	// Embedding index with optional Qdrant mirror
	var idx *index.Index
	if provider != nil {
		idx = index.New(store, provider, logger)
		if cfg.Database.Qdrant.Host != "" {
			qc, qErr := vectorstore.NewClient(vectorstore.Config{
				Host: cfg.Database.Qdrant.Host,
				Port: cfg.Database.Qdrant.Port,
			})
			if qErr != nil {
				logger.Warn("Qdrant unavailable, running without vector mirror", zap.Error(qErr))
			} else {
				idx.SetMirror(qc)
				if err := idx.InitMirror(ctx); err != nil {
					logger.Warn("Qdrant collection setup failed", zap.Error(err))
				}
				defer qc.Close()
			}
		}
	}

	// Entity graph: hydrate from Neo4j when available, then write through so
	// simulated and extracted entities survive restarts.
	var graph *kgraph.Graph
	if graphStore != nil {
		g, loadErr := kgraph.LoadFromNeo4j(ctx, graphStore.Driver(), logger)
		if loadErr != nil {
			logger.Warn("entity graph load failed, starting empty", zap.Error(loadErr))
			graph = kgraph.NewGraph()
		} else {
			graph = g
		}
		graph.AttachPersister(kgraph.NewNeo4jPersister(graphStore.Driver()), logger)
	} else {
		graph = kgraph.NewGraph()
	}

	reasoner := kgraph.NewReasoner(graph, logger)
	if cfg.Reasoner.MaxDepth > 0 {
		reasoner.SetMaxDepth(cfg.Reasoner.MaxDepth)
	}

	// Keyword extraction service
	var extractor engine.Extractor
	if cfg.Extractor.Endpoint != "" {
		ex := engine.NewHTTPExtractor(cfg.Extractor.Endpoint, logger)
		ex.AttachGraph(graph)
		extractor = ex
	}

	var recorder engine.Recorder
	if audit != nil {
		recorder = audit
	}
	eng := engine.New(manager, idx, extractor, recorder, logger)

	simulator := simulation.New(time.Now().UnixNano(), logger)

	// Build HTTP handler
	handler := api.NewHandler(eng, manager, idx, graph, reasoner, simulator, audit, logger)

	// Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Cognigraph listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Cognigraph...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if graphStore != nil {
		graphStore.Close(shutdownCtx)
	}
	if audit != nil {
		audit.Close()
	}
}
