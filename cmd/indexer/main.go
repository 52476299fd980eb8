package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/consumer"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/cache"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/config"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/kafka"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/logger"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	pkgredis "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	rebuild := flag.String("rebuild", "", "rebuild one shard (MM-YYYY) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	m := metrics.New()
	source := tokens.NewFileSource(cfg.Index.TokensDir)
	b := builder.New(cfg.Index.DataDir, source, m)

	if *rebuild != "" {
		id, err := shard.Parse(*rebuild)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid shard %q: %v\n", *rebuild, err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		stats, err := b.Build(ctx, id)
		if err != nil {
			slog.Error("rebuild failed", "shard", id.String(), "error", err)
			os.Exit(1)
		}
		slog.Info("rebuild complete",
			"shard", stats.Shard.String(),
			"documents", stats.Documents,
			"distinct_terms", stats.DistinctTerms,
			"postings", stats.Postings,
			"duration", stats.Elapsed)
		return
	}

	slog.Info("starting indexer service",
		"data_dir", cfg.Index.DataDir,
		"tokens_dir", cfg.Index.TokensDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, cache invalidation disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	appender := docmap.NewAppender(cfg.Index.DataDir)
	uploadedConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentUploaded, consumer.HandleUploaded(appender, m))
	var invalidator consumer.Invalidator
	if queryCache != nil {
		invalidator = queryCache
	}
	rebuildConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ShardRebuild, consumer.HandleRebuild(b, invalidator))

	slog.Info("indexer service ready, consuming from kafka",
		"uploaded_topic", cfg.Kafka.Topics.DocumentUploaded,
		"rebuild_topic", cfg.Kafka.Topics.ShardRebuild,
		"group", cfg.Kafka.ConsumerGroup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return uploadedConsumer.Start(gctx) })
	g.Go(func() error { return rebuildConsumer.Start(gctx) })
	if err := g.Wait(); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexer service stopped")
}
