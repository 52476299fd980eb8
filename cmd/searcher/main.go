package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/retrieval"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/metadata"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/cache"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/federator"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/handler"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/config"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/health"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/logger"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/middleware"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/postgres"
	pkgredis "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"data_dir", cfg.Index.DataDir,
		"workers", cfg.Search.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	queryCache := cache.New(redisClient, cfg.Redis.CacheTTL, m)

	var store *metadata.Store
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, metadata enrichment disabled", "error", err)
	} else {
		defer db.Close()
		store = metadata.NewStore(db)
	}

	engine := retrieval.NewEngine(cfg.Index.DataDir)
	fed := federator.New(engine, cfg.Search.Workers, m)
	h := handler.New(fed, queryCache, store, cfg.Search, m)

	checker := health.NewChecker()
	checker.Register("index_files", func(ctx context.Context) health.ComponentHealth {
		if _, err := os.Stat(cfg.Index.DataDir); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.Register(mux)
	// Method-qualified ServeMux patterns need Go 1.22+; guard the method
	// explicitly so the routes work on the Go 1.21 toolchain.
	mux.HandleFunc("/health/live", requireGet(checker.LiveHandler()))
	mux.HandleFunc("/health/ready", requireGet(checker.ReadyHandler()))

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID()(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func requireGet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
