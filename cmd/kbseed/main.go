package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/internal/dispatch"
	"github.com/prompt-general/answerhub/internal/events"
	"github.com/prompt-general/answerhub/internal/knowledge"
	"github.com/prompt-general/answerhub/internal/pipeline"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/internal/ratelimit"
	"github.com/prompt-general/answerhub/pkg/models"
)

type seedFile struct {
	Collection string `yaml:"collection"`
	Entries    []struct {
		Question string `yaml:"question"`
		Answer   string `yaml:"answer"`
	} `yaml:"entries"`
}

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		seedPath   = flag.String("seed", "config/seed.yaml", "Seed data file path")
		embed      = flag.Bool("embed", true, "Run an embedding maintenance pass after seeding")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		log.Fatalf("Failed to read seed file: %v", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.Fatalf("Failed to parse seed file: %v", err)
	}
	if seed.Collection == "" {
		seed.Collection = models.DefaultCollection
	}

	store, err := knowledge.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open knowledge store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx, cfg.OpenAI.EmbeddingDimension); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	created := 0
	for _, e := range seed.Entries {
		if e.Question == "" || e.Answer == "" {
			log.Printf("Skipping entry with empty question or answer")
			continue
		}
		entry := &models.Entry{
			Collection: seed.Collection,
			Question:   e.Question,
			Answer:     e.Answer,
		}
		if err := store.CreateEntry(ctx, entry); err != nil {
			log.Fatalf("Failed to create entry %q: %v", e.Question, err)
		}
		created++
	}
	log.Printf("Seeded %d entries into collection %q", created, seed.Collection)

	if !*embed {
		return
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.TokensPerMinute)
	openAI := provider.NewOpenAI(cfg.OpenAI, limiter)
	pool := dispatch.NewPool(1, 1)

	runner := pipeline.NewRunner(store, openAI, pool, events.NewNoop(), pipeline.Config{
		BatchSize:        cfg.Pipeline.BatchSize,
		FailureTolerance: *cfg.Pipeline.FailureTolerance,
		JobTimeout:       cfg.Pipeline.JobTimeout,
	})

	job, err := runner.Run(seed.Collection)
	if err != nil {
		log.Fatalf("Failed to start embedding job: %v", err)
	}

	for !job.Status.Terminal() {
		time.Sleep(500 * time.Millisecond)
		job, err = runner.JobStatus(job.ID)
		if err != nil {
			log.Fatalf("Failed to poll embedding job: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool.Shutdown(shutdownCtx)

	if job.Status == models.JobFailed {
		log.Fatalf("Embedding job failed: %s", job.Error)
	}
	log.Printf("Embedding job %s %s: processed=%d failed=%d", job.ID, job.Status, job.ProcessedCount, job.FailedCount)
}
