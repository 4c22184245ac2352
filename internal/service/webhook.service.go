package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"coursepay/internal/domain"
	"coursepay/internal/metrics"
	"coursepay/internal/provider"
	"coursepay/internal/repo"
)

// WebhookOutcome tells the transport layer how to answer the provider.
type WebhookOutcome int

const (
	// WebhookConfirmed: first-time confirmation, enrollment granted.
	WebhookConfirmed WebhookOutcome = iota
	// WebhookDuplicate: the purchase was already SUCCESS; acknowledged.
	WebhookDuplicate
	// WebhookIgnored: payload failed verification or is an event type we
	// do not act on; acknowledged so the provider stops retrying.
	WebhookIgnored
	// WebhookAnomaly: verified payload referencing an unknown or FAILED
	// purchase; logged for operators and acknowledged, never retried.
	WebhookAnomaly
)

// WebhookService receives asynchronous provider callbacks and advances
// the ledger idempotently. The tenant comes from request routing; the
// payload's authenticity is established solely by the provider's own
// signature check.
type WebhookService struct {
	registry    *provider.Registry
	purchases   repo.PurchaseRepo
	fulfillment *FulfillmentService
	log         *slog.Logger
}

func NewWebhookService(registry *provider.Registry, purchases repo.PurchaseRepo, fulfillment *FulfillmentService, log *slog.Logger) *WebhookService {
	return &WebhookService{
		registry:    registry,
		purchases:   purchases,
		fulfillment: fulfillment,
		log:         log,
	}
}

// Handle processes one delivery. A returned error means the provider
// should retry (transport 5xx): either tenant resolution failed, which an
// admin may fix within the retry window, or a persistence step failed.
func (s *WebhookService) Handle(ctx context.Context, tenantID uuid.UUID, providerName string, payload []byte, headers http.Header) (WebhookOutcome, error) {
	prov, err := s.registry.Resolve(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("resolve provider for webhook: %w", err)
	}
	if prov.Name() != providerName {
		// A webhook URL for a provider the tenant no longer uses. The
		// configured provider cannot verify it, so drop it. The metric is
		// labeled with the configured name: the URL segment is arbitrary
		// caller input and would mint unbounded label values.
		s.log.Warn("webhook for unconfigured provider",
			slog.String("tenant_id", tenantID.String()),
			slog.String("url_provider", providerName),
			slog.String("configured_provider", prov.Name()),
		)
		metrics.WebhooksReceived.WithLabelValues(prov.Name(), "mismatch").Inc()
		return WebhookIgnored, nil
	}

	if !prov.VerifyWebhook(payload, headers) {
		// Providers push many event types; only completed payments matter
		// here. Acknowledging avoids retry storms for the rest.
		metrics.WebhooksReceived.WithLabelValues(providerName, "unverified").Inc()
		return WebhookIgnored, nil
	}

	purchaseID, err := prov.PurchaseIDFromWebhook(payload)
	if err != nil {
		s.log.Warn("verified webhook without usable purchase id",
			slog.String("provider", providerName),
			slog.Any("error", err),
		)
		metrics.WebhooksReceived.WithLabelValues(providerName, "ignored").Inc()
		return WebhookIgnored, nil
	}

	purchase, err := s.purchases.FindByID(ctx, tenantID, purchaseID)
	if errors.Is(err, domain.ErrPurchaseNotFound) {
		// A purchase id that will never materialize; retrying forever
		// helps nobody. Ack and surface for operator review.
		s.log.Error("webhook references unknown purchase",
			slog.String("tenant_id", tenantID.String()),
			slog.String("purchase_id", purchaseID.String()),
			slog.String("provider", providerName),
		)
		metrics.AnomalousConfirmations.Inc()
		metrics.WebhooksReceived.WithLabelValues(providerName, "anomaly").Inc()
		return WebhookAnomaly, nil
	}
	if err != nil {
		return 0, err
	}

	first, err := s.fulfillment.ConfirmSuccess(ctx, purchase, "webhook")
	if errors.Is(err, domain.ErrAnomalousConfirmation) {
		metrics.WebhooksReceived.WithLabelValues(providerName, "anomaly").Inc()
		return WebhookAnomaly, nil
	}
	if err != nil {
		return 0, err
	}

	if first {
		metrics.WebhooksReceived.WithLabelValues(providerName, "confirmed").Inc()
		return WebhookConfirmed, nil
	}
	metrics.WebhooksReceived.WithLabelValues(providerName, "duplicate").Inc()
	return WebhookDuplicate, nil
}
