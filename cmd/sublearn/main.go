package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/cinefluent/sublearn/internal/cache"
	"github.com/cinefluent/sublearn/internal/config"
	"github.com/cinefluent/sublearn/internal/enrich"
	"github.com/cinefluent/sublearn/internal/persistence"
	"github.com/cinefluent/sublearn/internal/provider"
	"github.com/cinefluent/sublearn/internal/resolver"
	"github.com/cinefluent/sublearn/pkg/log"
)

func main() {
	// .env is optional; environment variables win
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	store, err := persistence.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open subtitle store: %v", err)
	}
	defer store.Close()

	cacheManager := cache.NewManager(cache.Config{
		Store:          store,
		MaxMemoryItems: cfg.Cache.MaxMemoryItems,
		DefaultTTL:     time.Duration(cfg.Cache.TTLHours) * time.Hour,
		ExternalTTL:    time.Duration(cfg.Cache.ExternalTTLHours) * time.Hour,
	})

	var externalProvider resolver.Provider
	if cfg.Provider.Enabled() {
		client, err := provider.NewClient(provider.Config{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.APIURL,
			UserAgent:   cfg.Provider.UserAgent,
			Timeout:     time.Duration(cfg.Provider.Timeout) * time.Second,
			MinInterval: time.Duration(cfg.Provider.MinIntervalMS) * time.Millisecond,
		})
		if err != nil {
			log.Fatal("Failed to build provider client: %v", err)
		}
		externalProvider = client
	} else {
		log.Warn("OPENSUBTITLES_API_KEY not set, external subtitle lookups disabled")
	}

	enricher, err := enrich.NewEnricher(enrich.Config{
		FrequencyFile: cfg.Process.FrequencyFile,
	})
	if err != nil {
		log.Fatal("Failed to build enricher: %v", err)
	}

	svc, err := resolver.New(resolver.Config{
		Store:           store,
		Cache:           cacheManager,
		Provider:        externalProvider,
		Enricher:        enricher,
		SegmentDuration: cfg.Process.SegmentDuration,
		FetchTimeout:    time.Duration(cfg.Provider.Timeout) * time.Second,
	})
	if err != nil {
		log.Fatal("Failed to build resolver: %v", err)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Cache.CleanupCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cacheManager.Cleanup(ctx)
	})
	if err != nil {
		log.Fatal("Invalid cache cleanup cron %q: %v", cfg.Cache.CleanupCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	health := svc.Health()
	log.Info("sublearn started, status=%s provider_available=%t db=%s",
		health.Status, health.ProviderAvailable, cfg.Database.Path)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stats := svc.Stats()
	log.Info("Shutting down, searches=%d downloads=%d processings=%d cache_hit_ratio=%.1f%%",
		stats.SearchesPerformed, stats.DownloadsCompleted, stats.ProcessingsCompleted, stats.Cache.HitRatio)
}
