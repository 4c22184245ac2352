package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

// SettingsRepo reads tenant payment configuration. The table is owned by
// the tenant configuration store; this subsystem never writes it.
type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) PaymentSettings(ctx context.Context, tenantID uuid.UUID) (*domain.PaymentSettings, error) {
	var s domain.PaymentSettings
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, provider, secret_key, publishable_key, webhook_secret, currency
		 FROM payment_settings WHERE tenant_id = $1`,
		tenantID,
	).Scan(&s.TenantID, &s.Provider, &s.SecretKey, &s.PublishableKey, &s.WebhookSecret, &s.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoProviderConfigured
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
