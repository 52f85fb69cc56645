package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/ai"
	"github.com/xxxsen/bizdir/internal/cache"
	"github.com/xxxsen/bizdir/internal/config"
	"github.com/xxxsen/bizdir/internal/embedcache"
	"github.com/xxxsen/bizdir/internal/geo"
	"github.com/xxxsen/bizdir/internal/handler"
	"github.com/xxxsen/bizdir/internal/job"
	"github.com/xxxsen/bizdir/internal/middleware"
	"github.com/xxxsen/bizdir/internal/queue"
	"github.com/xxxsen/bizdir/internal/ratelimit"
	"github.com/xxxsen/bizdir/internal/repo"
	"github.com/xxxsen/bizdir/internal/schedule"
	"github.com/xxxsen/bizdir/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "bizdir",
		Short: "bizdir business discovery server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run bizdir server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "enqueue regeneration for every business missing a current-version embedding",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runResync(cfg)
		},
	}
	resyncCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(runCmd, resyncCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

type deps struct {
	businesses *repo.BusinessRepo
	embeddings *repo.EmbeddingRepo
	statuses   *repo.StatusRepo
	embedder   *service.EmbeddingService
	queue      *queue.Service
}

func buildDeps(cfg *config.Config) (*deps, error) {
	db, err := repo.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	businessRepo := repo.NewBusinessRepo(db)
	embeddingRepo := repo.NewEmbeddingRepo(db)
	statusRepo := repo.NewStatusRepo(db)

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	if cfg.AI.MinIntervalMS > 0 {
		provider = ai.WrapRateLimit(provider, ratelimit.New(time.Duration(cfg.AI.MinIntervalMS)*time.Millisecond))
	}

	genericCache := cache.NewMemory(4096, 24*time.Hour)
	queryCache := embedcache.NewQueryCache(genericCache, cfg.AI.Model,
		time.Duration(cfg.AI.QueryCacheTTL)*time.Second)

	embedder := service.NewEmbeddingService(provider, cfg.AI.Model, cfg.AI.Version,
		embeddingRepo, statusRepo, queryCache)

	q, err := queue.NewService(queue.Options{
		Version:     cfg.AI.Version,
		Interval:    time.Duration(cfg.Queue.IntervalSeconds) * time.Second,
		BatchSize:   cfg.Queue.BatchSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Queue.RetryDelaySeconds) * time.Second,
		Workers:     cfg.Queue.Workers,
	}, embedder, businessRepo, statusRepo, genericCache)
	if err != nil {
		return nil, fmt.Errorf("init embedding queue: %w", err)
	}

	return &deps{
		businesses: businessRepo,
		embeddings: embeddingRepo,
		statuses:   statusRepo,
		embedder:   embedder,
		queue:      q,
	}, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.String("embedding_version", cfg.AI.Version),
	)

	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}

	geocoder := geo.NewGeocoder(cfg.Geo.GeocodeBaseURL, ratelimit.New(time.Second))
	iplocator := geo.NewIPLocator(cfg.Geo.IPBaseURL)
	locationService := service.NewLocationService(geocoder, iplocator, cfg.Geo)
	ranker := service.NewRanker(cfg.Search.MaxCandidates)
	searchService := service.NewSearchService(d.embedder, ranker, locationService,
		d.businesses, d.embeddings, d.statuses)

	routerDeps := handler.RouterDeps{
		Businesses: handler.NewBusinessHandler(d.businesses, d.queue),
		Search:     handler.NewSearchHandler(searchService, locationService),
		Embeddings: handler.NewEmbeddingHandler(d.embedder, d.queue),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, routerDeps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(),
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.queue.Start(ctx)

	scheduler := schedule.New()
	if err := scheduler.AddJob(job.NewReconcileJob(d.queue, d.businesses, d.statuses, cfg.AI.Version), "*/10 * * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewQueuePruneJob(d.queue), "0 * * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	d.queue.Stop()
	return nil
}

// runResync performs one reconciliation pass and drains the queue before
// exiting. Used after a model-version bump to rebuild the catalog offline.
func runResync(cfg *config.Config) error {
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	reconcile := job.NewReconcileJob(d.queue, d.businesses, d.statuses, cfg.AI.Version)
	if err := reconcile.Run(ctx); err != nil {
		return err
	}
	d.queue.Start(ctx)
	for {
		stats := d.queue.Stats()
		pending := stats["pending"] + stats["processing"] + stats["retrying"]
		if pending == 0 {
			break
		}
		logutil.GetLogger(ctx).Info("resync in progress", zap.Any("queue", stats))
		time.Sleep(5 * time.Second)
	}
	d.queue.Stop()
	logutil.GetLogger(ctx).Info("resync finished", zap.Any("queue", d.queue.Stats()))
	return nil
}
