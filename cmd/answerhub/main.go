package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prompt-general/answerhub/internal/answer"
	"github.com/prompt-general/answerhub/internal/api"
	"github.com/prompt-general/answerhub/internal/cache"
	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/internal/dispatch"
	"github.com/prompt-general/answerhub/internal/events"
	"github.com/prompt-general/answerhub/internal/health"
	"github.com/prompt-general/answerhub/internal/knowledge"
	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/internal/pipeline"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/internal/ratelimit"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("answerhub version %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	log.Printf("Starting answerhub v%s (commit: %s, built: %s)", version, commit, date)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := knowledge.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open knowledge store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureSchema(ctx, cfg.OpenAI.EmbeddingDimension); err != nil {
		cancel()
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	cancel()

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.TokensPerMinute)
	openAI := provider.NewOpenAI(cfg.OpenAI, limiter)

	var embeddingCache *cache.EmbeddingCache
	if cfg.Redis.Enabled {
		embeddingCache = cache.NewEmbeddingCache(cfg.Redis)
		defer embeddingCache.Close()
	}

	publisher := events.NewNoop()
	if cfg.Kafka.Enabled {
		p, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to initialize kafka publisher: %v", err)
		}
		publisher = p
	}
	defer publisher.Close()

	pool := dispatch.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)

	runner := pipeline.NewRunner(store, openAI, pool, publisher, pipeline.Config{
		BatchSize:        cfg.Pipeline.BatchSize,
		FailureTolerance: *cfg.Pipeline.FailureTolerance,
		JobTimeout:       cfg.Pipeline.JobTimeout,
	})

	var matchCache matcher.EmbeddingCache
	if embeddingCache != nil {
		matchCache = embeddingCache
	}
	match := matcher.New(openAI, store, matchCache, cfg.Matching.TopK)
	answering := answer.NewService(match, openAI, publisher, *cfg.Matching.SimilarityThreshold)

	checker := health.NewChecker()
	checker.Register(&health.PingCheck{CheckName: "database", Target: store, SlowAfter: 100 * time.Millisecond})
	if embeddingCache != nil {
		checker.Register(&health.PingCheck{CheckName: "redis", Target: embeddingCache, SlowAfter: 100 * time.Millisecond})
	}
	if cfg.Kafka.Enabled {
		checker.Register(&health.PingCheck{CheckName: "kafka", Target: publisher, SlowAfter: 500 * time.Millisecond})
	}

	gateway := api.NewGateway(cfg.API, answering, store, runner, limiter, checker)

	errCh := make(chan error, 1)
	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("API gateway failed: %v", err)
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("Gateway shutdown error: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("Worker pool shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
}
