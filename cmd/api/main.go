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
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/bourseville/listings-api/internal/commerce"
	"github.com/bourseville/listings-api/internal/di"
	"github.com/bourseville/listings-api/internal/handlers"
	"github.com/bourseville/listings-api/internal/platform/auth"
	"github.com/bourseville/listings-api/internal/platform/captoken"
	"github.com/bourseville/listings-api/internal/platform/config"
	"github.com/bourseville/listings-api/internal/platform/events"
	pfirestore "github.com/bourseville/listings-api/internal/platform/firestore"
	"github.com/bourseville/listings-api/internal/platform/observability"
	"github.com/bourseville/listings-api/internal/platform/secrets"
	"github.com/bourseville/listings-api/internal/platform/session"
	platformstorage "github.com/bourseville/listings-api/internal/platform/storage"
	firestoreRepo "github.com/bourseville/listings-api/internal/repositories/firestore"
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
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

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

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	storageClient := newStorageClient(logger, cfg)

	stripeLogger := logger.Named("stripe")
	stripeProvider, err := commerce.NewStripeProvider(commerce.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			stripeLogger.Debug("stripe log", zFields...)
		},
		Clock: time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	sessionStore := session.NewFirestoreStore(firestoreClient)

	eventsPublisher, pubsubClient := newLifecyclePublisher(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	containerDeps := di.Deps{
		Config:   cfg,
		Registry: registry,
		Storage:  storageClient,
		Commerce: stripeProvider,
		Sessions: sessionStore,
		Logger:   logger.Named("services"),
	}
	if eventsPublisher != nil {
		containerDeps.Events = eventsPublisher
	}
	container, err := di.NewContainer(ctx, containerDeps)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	tokenIssuer, err := captoken.NewIssuer(captoken.Config{
		Secret: cfg.Security.Captoken.Secret,
		TTL:    cfg.Security.Captoken.TTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise capability token issuer", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	listingHandlers, err := handlers.NewListingHandlers(container.Services.Queries)
	if err != nil {
		logger.Fatal("failed to initialise listing handlers", zap.Error(err))
	}
	meHandlers, err := handlers.NewMeHandlers(handlers.MeHandlersDeps{
		Authenticator: authenticator,
		Drafts:        container.Services.Drafts,
		Checkout:      container.Services.Checkout,
		Visibility:    container.Services.Visibility,
		Queries:       container.Services.Queries,
		Tokens:        tokenIssuer,
	})
	if err != nil {
		logger.Fatal("failed to initialise account handlers", zap.Error(err))
	}
	checkoutHandlers, err := handlers.NewCheckoutHandlers(handlers.CheckoutHandlersDeps{
		Authenticator: authenticator,
		Reconciler:    container.Services.Reconciler,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout handlers", zap.Error(err))
	}
	webhookHandlers, err := handlers.NewWebhookHandlers(handlers.WebhookHandlersDeps{
		Provider:   stripeProvider,
		Reconciler: container.Services.Reconciler,
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook handlers", zap.Error(err))
	}
	internalHandlers, err := handlers.NewInternalHandlers(container.Services.Reconciler)
	if err != nil {
		logger.Fatal("failed to initialise internal handlers", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithListingRoutes(listingHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("listings api listening")
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

// newStorageClient builds the signed-URL client backing attachment
// uploads. Without signing credentials the API still runs; attachment
// uploads answer unavailable.
func newStorageClient(logger *zap.Logger, cfg config.Config) *platformstorage.Client {
	credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile)
	if credentials == "" {
		logger.Warn("storage: no signing credentials configured; attachment uploads disabled")
		return nil
	}
	signer, err := platformstorage.NewServiceAccountSignerFromFile(credentials)
	if err != nil {
		logger.Warn("storage: failed to load signer credentials", zap.Error(err))
		return nil
	}
	client, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Warn("storage: failed to initialise signed url client", zap.Error(err))
		return nil
	}
	return client
}

// newLifecyclePublisher wires the Pub/Sub topic carrying lifecycle
// events. The topic is optional; without it transitions simply skip the
// notification fan-out.
func newLifecyclePublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (*events.PubSubLifecyclePublisher, *pubsub.Client) {
	topicName := strings.TrimSpace(cfg.Events.Topic)
	if topicName == "" {
		logger.Warn("events: no lifecycle topic configured; notifications disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Warn("events: failed to initialise pubsub client", zap.Error(err))
		return nil, nil
	}
	publisher, err := events.NewPubSubLifecyclePublisher(client.Topic(topicName))
	if err != nil {
		logger.Warn("events: failed to initialise lifecycle publisher", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
