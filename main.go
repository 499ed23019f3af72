package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrops-br/catalog-api/internal/app/service"
	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/config"
	"github.com/mrops-br/catalog-api/internal/infrastructure/http"
	"github.com/mrops-br/catalog-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/catalog-api/internal/infrastructure/http/middleware"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/cached"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/memory"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/mongodb"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/postgres"
	"github.com/mrops-br/catalog-api/internal/infrastructure/storage/disk"
	"github.com/mrops-br/catalog-api/internal/infrastructure/storage/jetstream"
	"github.com/mrops-br/catalog-api/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// closer releases a backend connection during shutdown
type closer struct {
	name  string
	close func(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	telem, err := telemetry.NewTelemetry(&cfg.OTLP, &cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	tracer := telem.TracerProvider.Tracer("catalog-api")
	meter := telem.MeterProvider.Meter("catalog-api")
	logger := telem.Logger

	logger.Info("Starting Catalog API",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("assets", cfg.Assets.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(shutdownCtx); err != nil {
				logger.Error("Failed to close backend",
					slog.String("backend", closers[i].name),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}

	repo, repoClosers, err := newRepository(ctx, cfg, tracer, meter, logger)
	closers = append(closers, repoClosers...)
	if err != nil {
		logger.Error("Failed to initialize product repository", slog.String("error", err.Error()))
		shutdown()
		os.Exit(1)
	}

	assets, assetClosers, err := newAssetStore(ctx, &cfg.Assets, tracer, logger)
	closers = append(closers, assetClosers...)
	if err != nil {
		logger.Error("Failed to initialize asset store", slog.String("error", err.Error()))
		shutdown()
		os.Exit(1)
	}

	productService := service.NewProductService(repo, assets, tracer, meter, logger)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
		go limiter.Run(ctx)
	}

	server := http.NewServer(&cfg.Server,
		handler.NewProductHandler(productService, cfg.Server.MaxUploadBytes, logger),
		handler.NewAssetHandler(assets, logger),
		limiter,
		telem.MeterProvider,
		logger,
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", slog.String("error", err.Error()))
	}
	cancel()

	shutdown()
	logger.Info("Server stopped")
}

// newRepository opens the configured storage backend and optionally puts the Redis cache in front of it
func newRepository(ctx context.Context, cfg *config.Config, tracer trace.Tracer, meter metric.Meter, logger *slog.Logger) (domain.ProductRepository, []closer, error) {
	var (
		repo    domain.ProductRepository
		closers []closer
	)

	switch cfg.Storage.Driver {
	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.Storage.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, closer{"mongo", client.Disconnect})

		collection := client.Database(cfg.Storage.MongoDatabase).Collection(cfg.Storage.MongoCollection)
		repo = mongodb.NewProductRepository(collection, cfg.Storage.QueryTimeout, tracer, logger)

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, closer{"postgres", func(context.Context) error {
			pool.Close()
			return nil
		}})

		pg := postgres.NewProductRepository(pool, cfg.Storage.QueryTimeout, tracer, logger)
		if err := pg.Migrate(ctx); err != nil {
			return nil, closers, fmt.Errorf("failed to migrate products table: %w", err)
		}
		repo = pg

	default:
		repo = memory.NewProductRepository(tracer, logger)
	}

	if !cfg.Cache.Enabled {
		return repo, closers, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	closers = append(closers, closer{"redis", func(context.Context) error {
		return client.Close()
	}})
	if err := client.Ping(ctx).Err(); err != nil {
		// reads fall through to storage while Redis is down
		logger.Warn("Redis not reachable, cache starts cold",
			slog.String("addr", cfg.Cache.RedisAddr),
			slog.String("error", err.Error()),
		)
	}

	return cached.NewProductRepository(repo, client, cfg.Cache.Prefix, cfg.Cache.TTL, meter, logger), closers, nil
}

func newAssetStore(ctx context.Context, cfg *config.AssetsConfig, tracer trace.Tracer, logger *slog.Logger) (domain.AssetStore, []closer, error) {
	if cfg.Driver == "jetstream" {
		store, err := jetstream.NewAssetStore(ctx, cfg.NatsURL, cfg.Bucket, cfg.PublicBaseURL, tracer, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, []closer{{"nats", func(context.Context) error { return store.Close() }}}, nil
	}

	store, err := disk.NewAssetStore(cfg.UploadDir, cfg.PublicBaseURL, tracer, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}
