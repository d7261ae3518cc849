package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"imovelworker/config"
	"imovelworker/internal/checkpoint"
	"imovelworker/internal/engine"
	"imovelworker/internal/export"
	"imovelworker/internal/extractor"
	"imovelworker/internal/fetcher"
	"imovelworker/logger"
	"imovelworker/services/cache"
	"imovelworker/services/publisher"

	"github.com/joho/godotenv"
)

func main() {
	reset := flag.Bool("reset", false, "discard the run's checkpoint and start over")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("portal", cfg.Portal).
		Str("run_id", cfg.RunID).
		Int("max_pages", cfg.MaxPages).
		Msg("Starting collection run")

	store := checkpoint.NewFileStore(cfg.CheckpointDir, cfg.RunID)
	if *reset {
		if err := store.Reset(); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset checkpoint")
		}
		log.Info().Str("run_id", cfg.RunID).Msg("Checkpoint discarded, starting over")
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Assemble the portal pipeline
	portalCfg, err := fetcher.PortalConfigFor(cfg.Portal, cfg.PortalURL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure portal")
	}
	f := fetcher.NewPortalFetcher(portalCfg, services.Cache, cfg.PageDelayMin, cfg.PageDelayMax)
	ext := extractor.New(portalCfg.ExtractorConfig())

	eng := engine.New(f, ext, store, services.Publisher, engine.Options{
		MaxPages:       cfg.MaxPages,
		TargetListings: cfg.TargetListings,
		EmptyPageLimit: cfg.EmptyPageLimit,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})

	// Start the run in a goroutine
	runDone := make(chan error, 1)
	go func() {
		_, err := eng.Run(ctx)
		runDone <- err
	}()

	// Wait for shutdown signal or run end
	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal, pausing after current page")
		cancel()
		runErr = <-runDone
	case runErr = <-runDone:
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("Run failed")
	}

	// Export whatever was collected, regardless of outcome
	writer := export.NewWriter(cfg.DataDir)
	results := eng.Results()
	if err := writer.WriteJSON(cfg.RunID+"_listings.json", results); err != nil {
		log.Error().Err(err).Msg("JSON export failed")
	}
	if err := writer.WriteCSV(cfg.RunID+"_listings.csv", results); err != nil {
		log.Error().Err(err).Msg("CSV export failed")
	}

	if eng.State() == engine.StateFailed {
		os.Exit(1)
	}
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Rate-limit block cache; falls back to process memory without memcache
	if cfg.MemcacheAddr != "" {
		cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if cacheService == nil {
			return nil, fmt.Errorf("failed to create cache service")
		}
		services.Cache = cacheService
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	} else {
		services.Cache = cache.NewMemoryService()
	}

	// Downstream publishing is optional
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if redisPublisher == nil {
			return nil, fmt.Errorf("failed to create redis publisher")
		}
		services.Publisher = redisPublisher
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}
