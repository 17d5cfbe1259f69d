package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/config"
	"bodyconsumer/internal/db"
	"bodyconsumer/internal/httpapi"
	"bodyconsumer/internal/service"
	"bodyconsumer/internal/storage"
	"bodyconsumer/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		defer pool.Close()
	}

	blobStore, err := newBlobStorage(ctx, cfg, pool)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	var catalog *store.Store
	if pool != nil {
		catalog = store.New(pool)
		if err := catalog.EnsureSchema(ctx); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	svc := service.New(service.Options{
		Storage:       blobStore,
		Catalog:       catalog,
		MaxConcurrent: cfg.MaxConcurrentConsumes,
		Logger:        logger,
	})

	authn := auth.NewAuthenticator(catalog, cfg.AdminToken)
	api := httpapi.New(cfg, svc, authn)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewEcho(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s (storage: %s)", cfg.ListenAddr, cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Stop accepting requests first so no consumption starts after the
		// service is closed.
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown http: %v", err)
		}
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}

func newBlobStorage(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (storage.BlobStorage, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemoryStorage(cfg.MemoryBlobLimit, os.TempDir()), nil
	case config.BackendLocal:
		return storage.NewLocalBlobStore(cfg.StorageRoot)
	case config.BackendS3:
		client, err := storage.NewS3Client(ctx, storage.S3ClientOptions{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3BlobStore(storage.S3Options{
			Client: client,
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
		}), nil
	case config.BackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres storage requires DATABASE_URL")
		}
		return storage.NewPGBlobStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
