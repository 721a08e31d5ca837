package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/maplemarket/api/internal/di"
	"github.com/maplemarket/api/internal/handlers"
	"github.com/maplemarket/api/internal/platform/auth"
	"github.com/maplemarket/api/internal/platform/config"
	pfirestore "github.com/maplemarket/api/internal/platform/firestore"
	"github.com/maplemarket/api/internal/platform/idempotency"
	"github.com/maplemarket/api/internal/platform/jobs"
	"github.com/maplemarket/api/internal/platform/observability"
	"github.com/maplemarket/api/internal/platform/secrets"
	firestorerepo "github.com/maplemarket/api/internal/repositories/firestore"
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(os.Getenv(config.EnvEnvironment)),
	)
	if err != nil {
		return fmt.Errorf("init secret fetcher: %w", err)
	}
	defer func() {
		_ = fetcher.Close()
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("events_enabled", cfg.Events.Enabled),
	)

	provider := pfirestore.NewProvider(cfg.Firestore)
	fsClient, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("connect firestore: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close failed", zap.Error(err))
		}
	}()

	registry, err := firestorerepo.NewRegistry(provider)
	if err != nil {
		return fmt.Errorf("init repositories: %w", err)
	}

	containerOpts := []di.ContainerOption{di.WithLogger(logger)}

	var pubsubClient *pubsub.Client
	if cfg.Events.Enabled {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		defer func() {
			_ = pubsubClient.Close()
		}()

		topic := pubsubClient.Topic(cfg.Events.ReviewTopic)
		defer topic.Stop()

		publisher, err := jobs.NewPubSubReviewPublisher(topic)
		if err != nil {
			return fmt.Errorf("init review publisher: %w", err)
		}
		containerOpts = append(containerOpts, di.WithReviewPublisher(publisher))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		return fmt.Errorf("init container: %w", err)
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return fmt.Errorf("init jwt verifier: %w", err)
	}
	authenticator := auth.NewAuthenticator(verifier)

	idemLogger := logger.Named("idempotency")
	idemStore := idempotency.NewFirestoreStore(fsClient)
	idemMiddleware := idempotency.Middleware(idemStore, idempotency.WithEventLogger(
		func(_ context.Context, event string, fields map[string]any) {
			idemLogger.Warn(event, zap.Any("fields", fields))
		},
	))

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, container.Services.Checkout)
	discountHandlers := handlers.NewDiscountHandlers(authenticator, container.Services.Discounts,
		handlers.WithCreateIdempotency(idemMiddleware),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthEnvironment(cfg.Environment),
		handlers.WithReadinessProbe("firestore", func(ctx context.Context) error {
			_, err := provider.Client(ctx)
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithDiscountRoutes(discountHandlers.Routes),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("server stopped")
	return <-serveErr
}
