package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

const PaystackName = "paystack"

const paystackBaseURL = "https://api.paystack.co"

// PaystackProvider integrates Paystack's transaction API. Paystack has no
// official Go SDK, so this is a thin REST client; webhooks are
// authenticated with an HMAC-SHA512 of the raw body under the secret key.
type PaystackProvider struct {
	secretKey string
	currency  string
	baseURL   string
	http      *http.Client
}

func NewPaystackProvider(settings *domain.PaymentSettings, httpClient *http.Client) (*PaystackProvider, error) {
	switch {
	case settings.SecretKey == "":
		return nil, &ConfigError{Provider: PaystackName, Field: "secret key"}
	case settings.Currency == "":
		return nil, &ConfigError{Provider: PaystackName, Field: "currency"}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PaystackProvider{
		secretKey: settings.SecretKey,
		currency:  strings.ToUpper(settings.Currency),
		baseURL:   paystackBaseURL,
		http:      httpClient,
	}, nil
}

func (p *PaystackProvider) Name() string { return PaystackName }

type paystackInitRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (p *PaystackProvider) Initiate(ctx context.Context, course *domain.Course, purchase *domain.Purchase, intent CheckoutIntent) (*Checkout, error) {
	body, err := json.Marshal(paystackInitRequest{
		Email:       intent.BuyerEmail,
		Amount:      purchase.AmountCents,
		Currency:    p.currency,
		Reference:   purchase.ID.String(),
		CallbackURL: intent.SuccessURL,
		Metadata:    map[string]string{metadataPurchaseID: purchase.ID.String()},
	})
	if err != nil {
		return nil, err
	}

	var resp paystackInitResponse
	if err := p.post(ctx, "/transaction/initialize", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack rejected initialization: %s", resp.Message)
	}

	return &Checkout{
		ProviderRef: resp.Data.Reference,
		RedirectURL: resp.Data.AuthorizationURL,
	}, nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string            `json:"reference"`
		Status    string            `json:"status"`
		Metadata  map[string]string `json:"metadata"`
	} `json:"data"`
}

func (p *PaystackProvider) VerifyWebhook(payload []byte, headers http.Header) bool {
	signature := headers.Get("X-Paystack-Signature")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return false
	}

	var event paystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return false
	}
	return event.Event == "charge.success" && event.Data.Status == "success"
}

func (p *PaystackProvider) PurchaseIDFromWebhook(payload []byte) (uuid.UUID, error) {
	var event paystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return uuid.Nil, fmt.Errorf("parse paystack event: %w", err)
	}
	raw := event.Data.Metadata[metadataPurchaseID]
	if raw == "" {
		// The transaction reference is the purchase id we set at
		// initiation, so it doubles as the correlation key.
		raw = event.Data.Reference
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse purchase id %q: %w", raw, err)
	}
	return id, nil
}

type paystackVerifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"`
	} `json:"data"`
}

func (p *PaystackProvider) CheckStatus(ctx context.Context, providerRef string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transaction/verify/"+providerRef, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: verify paystack transaction: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	var verify paystackVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verify); err != nil {
		return false, fmt.Errorf("decode paystack verify response: %w", err)
	}
	return verify.Status && verify.Data.Status == "success", nil
}

func (p *PaystackProvider) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: call paystack: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: paystack returned %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paystack response: %w", err)
	}
	return nil
}
