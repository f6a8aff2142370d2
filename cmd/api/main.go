package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/stockyard/api/internal/handlers"
	"github.com/stockyard/api/internal/platform/auth"
	"github.com/stockyard/api/internal/platform/config"
	pfirestore "github.com/stockyard/api/internal/platform/firestore"
	"github.com/stockyard/api/internal/platform/jobs"
	"github.com/stockyard/api/internal/platform/observability"
	"github.com/stockyard/api/internal/platform/secrets"
	platformstorage "github.com/stockyard/api/internal/platform/storage"
	firestoreRepo "github.com/stockyard/api/internal/repositories/firestore"
	"github.com/stockyard/api/internal/services"
	"github.com/stockyard/api/internal/unleashed"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	var loadOpts []config.Option
	if fetcher != nil {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		loadOpts = append(loadOpts, config.WithSecretResolver(fetcher))
	}

	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	artifacts, err := platformstorage.NewGCSArtifactStore(storageClient, cfg.Storage.ArtifactsBucket)
	if err != nil {
		logger.Fatal("failed to initialise artifact store", zap.Error(err))
	}

	publisher, pubsubClient, err := newSyncPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise sync publisher", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator, err := auth.NewAuthenticator(firebaseVerifier)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	warehouseRepo, err := firestoreRepo.NewWarehouseRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise warehouse repository", zap.Error(err))
	}
	syncStatusRepo, err := firestoreRepo.NewSyncStatusRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise sync status repository", zap.Error(err))
	}
	palletRepo, err := firestoreRepo.NewPalletRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise pallet repository", zap.Error(err))
	}

	unleashedClient, err := unleashed.NewClient(cfg.Unleashed)
	if err != nil {
		if !errors.Is(err, unleashed.ErrNotConfigured) {
			logger.Fatal("failed to initialise catalog api client", zap.Error(err))
		}
		// Sync stays unavailable until credentials are configured; the rest
		// of the API still serves.
		logger.Warn("catalog api credentials not configured; sync disabled")
	}

	syncService, err := services.NewCatalogSyncService(services.CatalogSyncServiceDeps{
		Fetcher:    fetcherOrUnavailable(unleashedClient),
		Products:   productRepo,
		Warehouses: warehouseRepo,
		Status:     syncStatusRepo,
		Publisher:  publisher,
		Config:     cfg.Sync,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog sync service", zap.Error(err))
	}
	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   productRepo,
		Warehouses: warehouseRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}
	importService, err := services.NewCSVImportService(services.CSVImportServiceDeps{
		Products: productRepo,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise csv import service", zap.Error(err))
	}
	palletService, err := services.NewPalletService(services.PalletServiceDeps{
		Pallets:   palletRepo,
		Products:  productRepo,
		Artifacts: artifacts,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise pallet service", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(authenticator, catalogService, syncService, importService)
	palletHandlers := handlers.NewPalletHandlers(authenticator, palletService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessChecks(handlers.ReadinessCheck{
			Name: "firestore",
			Probe: func(ctx context.Context) error {
				_, err := firestoreProvider.Client(ctx)
				return err
			},
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithPalletRoutes(palletHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("stockyard api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newSecretFetcher builds the Secret Manager resolver when a project is
// configured. Without one, secret:// references in the environment fail at
// config load.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	projectID := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if projectID == "" {
		return nil, nil
	}
	return secrets.NewFetcher(ctx, projectID, secrets.WithLogger(logger.Named("secrets")))
}

// newSyncPublisher wires the Pub/Sub topic when configured. Publishing is
// optional; with no topic the orchestrator simply skips events.
func newSyncPublisher(ctx context.Context, cfg config.Config) (services.SyncEventPublisher, *pubsub.Client, error) {
	topicID := strings.TrimSpace(cfg.PubSub.SyncTopic)
	if topicID == "" {
		return nil, nil, nil
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubSyncPublisher(client.Topic(topicID))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

// fetcherOrUnavailable substitutes a fetcher that fails fast when the catalog
// api client could not be configured.
func fetcherOrUnavailable(client *unleashed.Client) services.PageFetcher {
	if client != nil {
		return client
	}
	return unavailableFetcher{}
}

type unavailableFetcher struct{}

func (unavailableFetcher) FetchPage(context.Context, unleashed.Endpoint, unleashed.QueryParams) (unleashed.Page, error) {
	return unleashed.Page{}, unleashed.ErrNotConfigured
}
