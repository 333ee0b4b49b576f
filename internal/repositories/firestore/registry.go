package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/bourseville/listings-api/internal/platform/firestore"
	"github.com/bourseville/listings-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	listings      *ListingRepository
	paymentOrders *PaymentOrderRepository
	health        repositories.HealthRepository
}

// RegistryOption customises the registry wiring.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	extraChecks []repositories.DependencyCheck
}

// WithHealthChecks appends dependency probes evaluated alongside the
// Firestore probe during readiness checks.
func WithHealthChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(opts *registryOptions) {
		opts.extraChecks = append(opts.extraChecks, checks...)
	}
}

// NewRegistry wires the Firestore repositories against a shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}

	options := registryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	listings, err := NewListingRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("repository registry: listings: %w", err)
	}
	paymentOrders, err := NewPaymentOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("repository registry: payment orders: %w", err)
	}

	checks := []repositories.DependencyCheck{{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			_, err := provider.Client(ctx)
			return err
		},
	}}
	checks = append(checks, options.extraChecks...)

	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("repository registry: health: %w", err)
	}

	return &Registry{
		provider:      provider,
		listings:      listings,
		paymentOrders: paymentOrders,
		health:        health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Listings returns the listing repository.
func (r *Registry) Listings() repositories.ListingRepository {
	return r.listings
}

// PaymentOrders returns the payment order repository.
func (r *Registry) PaymentOrders() repositories.PaymentOrderRepository {
	return r.paymentOrders
}

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

var _ repositories.Registry = (*Registry)(nil)
