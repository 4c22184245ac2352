package domain

import "github.com/google/uuid"

// PaymentSettings is a tenant's payment configuration, owned by the tenant
// configuration store and read-only from this service's perspective. An
// absent or incomplete configuration is a first-class error, never a
// default.
type PaymentSettings struct {
	TenantID       uuid.UUID
	Provider       string
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Currency       string
}
