package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

// CheckoutIntent carries the client-supplied redirect metadata for one
// initiation.
type CheckoutIntent struct {
	PurchaseID uuid.UUID
	BuyerEmail string
	SuccessURL string
	CancelURL  string
	SourceURL  string
}

// Checkout is the opaque handle a provider returns at initiation. The
// caller redirects the buyer to RedirectURL; ProviderRef is persisted on
// the purchase and correlates the later webhook.
type Checkout struct {
	ProviderRef string
	RedirectURL string
}

// Provider is the contract every payment integration satisfies. Setup
// happens in the constructor: a provider value only exists if its tenant
// settings validated. The purchase id is embedded as provider-side
// metadata during Initiate so the webhook can be correlated back.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, course *domain.Course, purchase *domain.Purchase, intent CheckoutIntent) (*Checkout, error)

	// VerifyWebhook reports whether the payload is authentic and
	// represents a successfully completed payment. It must return false,
	// never panic, on any malformed or unexpected payload.
	VerifyWebhook(payload []byte, headers http.Header) bool

	// PurchaseIDFromWebhook extracts the purchase id embedded at
	// initiation. Only meaningful after VerifyWebhook returned true.
	PurchaseIDFromWebhook(payload []byte) (uuid.UUID, error)
}

// StatusChecker is implemented by providers that can be polled for the
// outcome of a checkout, used by reconciliation when the webhook never
// arrived.
type StatusChecker interface {
	CheckStatus(ctx context.Context, providerRef string) (paid bool, err error)
}

// ConfigError names the exact settings field a tenant administrator has
// to fix. These surface verbatim in the dashboard, so the message must be
// specific, never a generic failure.
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s not set", e.Provider, e.Field)
}
