package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bourseville/listings-api/internal/commerce"
	"github.com/bourseville/listings-api/internal/platform/config"
	"github.com/bourseville/listings-api/internal/platform/session"
	"github.com/bourseville/listings-api/internal/platform/storage"
	"github.com/bourseville/listings-api/internal/repositories"
	"github.com/bourseville/listings-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Drafts     services.DraftService
	Checkout   services.CheckoutService
	Reconciler services.ReconcilerService
	Visibility services.VisibilityService
	Queries    services.ListingQueryService
	System     services.SystemService
}

// Deps carries the external collaborators the container wires into the
// services. Registry is required; the rest degrade gracefully so tests
// can assemble partial containers.
type Deps struct {
	Config   config.Config
	Registry repositories.Registry
	Storage  *storage.Client
	Commerce commerce.Provider
	Sessions session.Store
	Events   services.LifecycleEventPublisher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients and other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps Deps) (Services, error) {
	var svc Services

	reg := deps.Registry
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	listings := reg.Listings()
	if listings == nil {
		return Services{}, errors.New("listing repository is required")
	}
	orders := reg.PaymentOrders()
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}

	draftDeps := services.DraftServiceDeps{
		Listings:          listings,
		AttachmentsBucket: deps.Config.Storage.AttachmentsBucket,
		UploadURLTTL:      deps.Config.Storage.UploadURLTTL,
		Clock:             clock,
		Logger:            serviceLogger(logger.Named("drafts")),
	}
	if deps.Storage != nil {
		draftDeps.Storage = deps.Storage
	}
	drafts, err := services.NewDraftService(draftDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build draft service: %w", err)
	}
	svc.Drafts = drafts

	if deps.Commerce != nil && orders != nil {
		checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Listings:   listings,
			Orders:     orders,
			Provider:   deps.Commerce,
			Sessions:   sessions,
			Products:   deps.Config.Listings.Products,
			Currency:   deps.Config.Listings.Currency,
			SuccessURL: deps.Config.Stripe.SuccessURL,
			CancelURL:  deps.Config.Stripe.CancelURL,
			SlotTTL:    deps.Config.Session.SlotTTL,
			Clock:      clock,
			Logger:     serviceLogger(logger.Named("checkout")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkout
	}

	if orders != nil {
		reconciler, err := services.NewReconcilerService(services.ReconcilerServiceDeps{
			Listings: listings,
			Orders:   orders,
			Sessions: sessions,
			Events:   deps.Events,
			Clock:    clock,
			Logger:   serviceLogger(logger.Named("reconciler")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build reconciler service: %w", err)
		}
		svc.Reconciler = reconciler
	}

	visibility, err := services.NewVisibilityService(services.VisibilityServiceDeps{
		Listings: listings,
		Events:   deps.Events,
		Clock:    clock,
		Logger:   serviceLogger(logger.Named("visibility")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build visibility service: %w", err)
	}
	svc.Visibility = visibility

	queries, err := services.NewListingQueryService(services.ListingQueryServiceDeps{
		Listings: listings,
		Logger:   serviceLogger(logger.Named("queries")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build listing query service: %w", err)
	}
	svc.Queries = queries

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

// serviceLogger adapts a zap logger to the event-map logging closure the
// services accept.
func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
