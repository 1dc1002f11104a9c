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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/lepax/api/internal/di"
	"github.com/lepax/api/internal/handlers"
	"github.com/lepax/api/internal/payments"
	"github.com/lepax/api/internal/platform/auth"
	"github.com/lepax/api/internal/platform/config"
	"github.com/lepax/api/internal/platform/events"
	pfirestore "github.com/lepax/api/internal/platform/firestore"
	"github.com/lepax/api/internal/platform/observability"
	"github.com/lepax/api/internal/repositories"
	firestoreRepo "github.com/lepax/api/internal/repositories/firestore"
	"github.com/lepax/api/internal/repositories/memory"
	"github.com/lepax/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var (
		publisher      services.AnalyticsPublisher
		analyticsTopic *pubsub.Topic
	)
	if topicID := strings.TrimSpace(cfg.Analytics.TopicID); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Analytics.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		analyticsTopic = pubsubClient.Topic(topicID)
		publisher, err = events.NewPubSubAnalyticsPublisher(analyticsTopic)
		if err != nil {
			logger.Fatal("failed to initialise analytics publisher", zap.Error(err))
		}
	} else {
		logger.Info("analytics topic not configured; add-to-cart events stay local")
	}

	verifier, err := auth.NewSessionVerifier(auth.SessionVerifierConfig{
		Secret:   cfg.Auth.SessionSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		logger.Fatal("failed to initialise session verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	paymentManager, err := newPaymentManager(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	analyticsRepo, err := firestoreRepo.NewAnalyticsEventRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise analytics repository", zap.Error(err))
	}
	cartRepo := memory.NewCartSessionRepository()

	healthRepo, err := newHealthRepository(firestoreClient, analyticsTopic)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	container, err := di.NewContainer(di.ContainerDeps{
		Config: cfg,
		Repositories: di.Repositories{
			CartSessions:    cartRepo,
			Orders:          orderRepo,
			AnalyticsEvents: analyticsRepo,
			Health:          healthRepo,
		},
		Publisher: publisher,
		Logger:    logger,
		Build:     buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(handlers.CheckoutHandlersConfig{
		Authenticator:    authenticator,
		Checkout:         container.Services.Checkout,
		Carts:            container.Services.Cart,
		Payments:         paymentManager,
		ConfirmPerMinute: cfg.RateLimits.ConfirmPerMinute,
		DefaultCurrency:  cfg.Store.DefaultCurrency,
	})
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	analyticsHandlers := handlers.NewAnalyticsHandlers(handlers.AnalyticsHandlersConfig{
		Authenticator:  authenticator,
		Analytics:      container.Services.Analytics,
		TrackPerMinute: cfg.RateLimits.TrackPerMinute,
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceContextMiddleware(),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithTrackRoutes(analyticsHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			orderHandlers.AdminRoutes(r)
			analyticsHandlers.AdminRoutes(r)
		}),
		handlers.WithAdminMiddlewares(authenticator.RequireRole(auth.RoleAdmin)),
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
		serverLogger.Info("lepax api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if analyticsTopic != nil {
		analyticsTopic.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: observability.ServiceLogFunc(logger.Named("payments")),
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers["stripe"] = stripeProvider
	}

	if id := strings.TrimSpace(cfg.PSP.PayPalClientID); id != "" {
		paypalProvider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
			ClientID: id,
			Secret:   cfg.PSP.PayPalSecret,
			BaseURL:  cfg.PSP.PayPalBaseURL,
			Logger:   observability.ServiceLogFunc(logger.Named("payments")),
		})
		if err != nil {
			return nil, fmt.Errorf("paypal provider: %w", err)
		}
		providers["paypal"] = paypalProvider
	}

	if len(providers) == 0 {
		return nil, errors.New("at least one payment provider must be configured")
	}

	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.PSP.DefaultProvider))
}

func newHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}

	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}

	return repositories.NewDependencyHealthRepository(checks)
}
