package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/client"
	"github.com/stripe/stripe-go/v83/webhook"

	"coursepay/internal/domain"
)

const StripeName = "stripe"

const metadataPurchaseID = "purchase_id"

// StripeProvider drives Stripe hosted Checkout. Each tenant gets its own
// instance carrying its own keys; the global stripe.Key is never touched.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
	currency      string
}

func NewStripeProvider(settings *domain.PaymentSettings) (*StripeProvider, error) {
	switch {
	case settings.SecretKey == "":
		return nil, &ConfigError{Provider: StripeName, Field: "secret key"}
	case settings.WebhookSecret == "":
		return nil, &ConfigError{Provider: StripeName, Field: "webhook secret"}
	case settings.Currency == "":
		return nil, &ConfigError{Provider: StripeName, Field: "currency"}
	}

	sc := &client.API{}
	sc.Init(settings.SecretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: settings.WebhookSecret,
		currency:      settings.Currency,
	}, nil
}

func (p *StripeProvider) Name() string { return StripeName }

func (p *StripeProvider) Initiate(ctx context.Context, course *domain.Course, purchase *domain.Purchase, intent CheckoutIntent) (*Checkout, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(course.Title),
	}
	if course.ImageURL != "" {
		product.Images = []*string{stripe.String(course.ImageURL)}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(intent.SuccessURL),
		CancelURL:  stripe.String(intent.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(purchase.Currency),
				UnitAmount:  stripe.Int64(purchase.AmountCents),
				ProductData: product,
			},
		}},
		ClientReferenceID: stripe.String(purchase.ID.String()),
	}
	if intent.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(intent.BuyerEmail)
	}
	// The session metadata is echoed back inside the webhook event and is
	// the correlation key for confirmation.
	params.AddMetadata(metadataPurchaseID, purchase.ID.String())
	params.Context = ctx

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create stripe checkout session: %v", domain.ErrProviderUnavailable, err)
	}

	return &Checkout{ProviderRef: sess.ID, RedirectURL: sess.URL}, nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, headers http.Header) bool {
	event, err := webhook.ConstructEvent(payload, headers.Get("Stripe-Signature"), p.webhookSecret)
	if err != nil {
		return false
	}
	if event.Type != "checkout.session.completed" {
		return false
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return false
	}
	return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
}

func (p *StripeProvider) PurchaseIDFromWebhook(payload []byte) (uuid.UUID, error) {
	var event struct {
		Data struct {
			Object struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return uuid.Nil, fmt.Errorf("parse stripe event: %w", err)
	}
	raw, ok := event.Data.Object.Metadata[metadataPurchaseID]
	if !ok {
		return uuid.Nil, fmt.Errorf("stripe event missing %s metadata", metadataPurchaseID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse purchase id %q: %w", raw, err)
	}
	return id, nil
}

// CheckStatus asks Stripe for the session outcome; used by reconciliation
// for purchases whose webhook never arrived.
func (p *StripeProvider) CheckStatus(ctx context.Context, providerRef string) (bool, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.client.CheckoutSessions.Get(providerRef, params)
	if err != nil {
		return false, fmt.Errorf("%w: get stripe checkout session: %v", domain.ErrProviderUnavailable, err)
	}
	return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}
