package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

// Factory builds a validated provider from tenant settings.
type Factory func(settings *domain.PaymentSettings) (Provider, error)

// SettingsSource loads a tenant's payment configuration. A missing row
// must surface as domain.ErrNoProviderConfigured.
type SettingsSource interface {
	PaymentSettings(ctx context.Context, tenantID uuid.UUID) (*domain.PaymentSettings, error)
}

// Registry resolves a tenant's configured provider name into a
// constructed, validated Provider. It is built explicitly at startup;
// there is no global registration.
type Registry struct {
	settings  SettingsSource
	factories map[string]Factory
}

func NewRegistry(settings SettingsSource) *Registry {
	return &Registry{
		settings:  settings,
		factories: make(map[string]Factory),
	}
}

// Register maps a provider name to its factory. Later registrations for
// the same name win, which tests use to swap in fakes.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve loads the tenant's settings and constructs the configured
// provider. Setup failure means no provider is returned: callers never
// see a partially usable instance.
func (r *Registry) Resolve(ctx context.Context, tenantID uuid.UUID) (Provider, error) {
	p, _, err := r.ResolveWithSettings(ctx, tenantID)
	return p, err
}

// ResolveWithSettings also hands back the settings the provider was built
// from, for callers that capture tenant currency alongside the provider.
func (r *Registry) ResolveWithSettings(ctx context.Context, tenantID uuid.UUID) (Provider, *domain.PaymentSettings, error) {
	settings, err := r.settings.PaymentSettings(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if settings.Provider == "" {
		return nil, nil, domain.ErrNoProviderConfigured
	}

	factory, ok := r.factories[settings.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, settings.Provider)
	}

	p, err := factory(settings)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("setup %s provider: %w", settings.Provider, err)
	}
	return p, settings, nil
}

// DefaultRegistry wires up every shipped provider integration.
func DefaultRegistry(settings SettingsSource) *Registry {
	r := NewRegistry(settings)
	r.Register(StripeName, func(s *domain.PaymentSettings) (Provider, error) {
		return NewStripeProvider(s)
	})
	r.Register(PaystackName, func(s *domain.PaymentSettings) (Provider, error) {
		return NewPaystackProvider(s, nil)
	})
	return r
}
