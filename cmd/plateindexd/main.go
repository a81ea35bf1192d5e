// Package main wires together the restaurant indexing service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/adapters"
	"github.com/plateindex/plateindex/internal/adapters/foursquare"
	"github.com/plateindex/plateindex/internal/adapters/yelp"
	"github.com/plateindex/plateindex/internal/api"
	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/clock/system"
	"github.com/plateindex/plateindex/internal/config"
	"github.com/plateindex/plateindex/internal/id/uuid"
	"github.com/plateindex/plateindex/internal/indexer"
	"github.com/plateindex/plateindex/internal/jobs"
	"github.com/plateindex/plateindex/internal/logging"
	"github.com/plateindex/plateindex/internal/metrics"
	memorypublisher "github.com/plateindex/plateindex/internal/publisher/memory"
	pubsubpublisher "github.com/plateindex/plateindex/internal/publisher/pubsub"
	"github.com/plateindex/plateindex/internal/ratelimit"
	memorystorage "github.com/plateindex/plateindex/internal/storage/memory"
	"github.com/plateindex/plateindex/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.NewGenerator()

	var (
		restaurantStore catalog.RestaurantStore
		rateStore       catalog.RateStore
	)
	if cfg.DB.DSN != "" {
		pgRestaurants, err := postgres.NewRestaurantStore(ctx, postgres.Config{DSN: cfg.DB.DSN}, idGen)
		if err != nil {
			logger.Fatal("postgres restaurant store init failed", zap.Error(err))
		}
		defer pgRestaurants.Close()
		pgRates, err := postgres.NewRateStore(ctx, postgres.Config{DSN: cfg.DB.DSN})
		if err != nil {
			logger.Fatal("postgres rate store init failed", zap.Error(err))
		}
		defer pgRates.Close()
		restaurantStore = pgRestaurants
		rateStore = pgRates
		logger.Info("using postgres storage")
	} else {
		restaurantStore = memorystorage.NewRestaurantStore()
		rateStore = memorystorage.NewRateStore()
		logger.Warn("no db.dsn configured, using in-memory storage")
	}

	tracker := ratelimit.NewTracker(rateStore, clock)
	pacer := ratelimit.NewPacer(ratelimit.PacerConfig{
		DefaultRPS:   cfg.Adapters.RPS,
		DefaultBurst: cfg.Adapters.Burst,
	})

	sourceAdapters := buildAdapters(cfg, pacer, tracker, logger)

	ix := indexer.New(
		sourceAdapters,
		nil,
		restaurantStore,
		clock,
		idGen,
		indexer.Config{
			CandidateDelta:   cfg.Indexing.CandidateDelta,
			ReverseNameLimit: cfg.Indexing.ReverseNameLimit,
		},
		logging.Named(logger, "indexer"),
	)

	runner := jobs.NewRunner(idGen, clock, jobs.Config{
		Workers:    cfg.Jobs.Workers,
		QueueDepth: cfg.Jobs.QueueDepth,
	}, logging.Named(logger, "jobs"))
	runner.Start()

	var publisher catalog.Publisher
	if cfg.PubSub.ProjectID != "" {
		psPublisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() { _ = psPublisher.Close() }()
		publisher = psPublisher
	} else {
		publisher = memorypublisher.New()
		logger.Warn("no pubsub.project_id configured, completion events stay local")
	}

	apiServer := api.NewServer(ix, runner, tracker, publisher, cfg, logging.Named(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("job runner shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildAdapters constructs source adapters in configured priority order,
// skipping sources without credentials.
func buildAdapters(
	cfg config.Config,
	pacer *ratelimit.Pacer,
	tracker *ratelimit.Tracker,
	logger *zap.Logger,
) []catalog.Adapter {
	timeout := time.Duration(cfg.Adapters.Timeout) * time.Second
	newClient := func(source string) *adapters.Client {
		return adapters.NewClient(adapters.ClientConfig{
			Source:     source,
			Timeout:    timeout,
			MaxRetries: cfg.Adapters.MaxRetries,
			Pacer:      pacer,
			Tracker:    tracker,
		})
	}

	var out []catalog.Adapter
	for _, source := range cfg.Adapters.Priority {
		var adapter catalog.Adapter
		switch source {
		case yelp.Source:
			adapter = yelp.New(yelp.Config{
				APIKey:   cfg.Adapters.Yelp.APIKey,
				BaseURL:  cfg.Adapters.Yelp.BaseURL,
				PageSize: cfg.Adapters.PageSize,
			}, newClient(yelp.Source))
		case foursquare.Source:
			adapter = foursquare.New(foursquare.Config{
				APIKey:   cfg.Adapters.Foursquare.APIKey,
				BaseURL:  cfg.Adapters.Foursquare.BaseURL,
				PageSize: cfg.Adapters.PageSize,
			}, newClient(foursquare.Source))
		default:
			continue
		}
		if !adapter.Configured() {
			logger.Warn("source not configured, skipping", zap.String("source", source))
		}
		out = append(out, adapter)
	}
	return out
}
