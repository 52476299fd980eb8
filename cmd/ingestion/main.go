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

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/blob"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/ingestion"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/metadata"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/config"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/health"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/kafka"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/logger"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/middleware"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := metadata.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure metadata schema", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	uploadedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentUploaded)
	defer uploadedProducer.Close()
	rebuildProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ShardRebuild)
	defer rebuildProducer.Close()

	publisher := ingestion.NewPublisher(
		store,
		blob.NewFSStore(cfg.Blob.Root),
		tokens.NewFileSource(cfg.Index.TokensDir),
		uploadedProducer,
		m,
	)
	h := ingestion.NewHandler(publisher, rebuildProducer)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("blob_store", func(ctx context.Context) health.ComponentHealth {
		if err := os.MkdirAll(cfg.Blob.Root, 0o755); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
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

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion service stopped")
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
