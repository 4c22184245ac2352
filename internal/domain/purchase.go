package domain

import (
	"time"

	"github.com/google/uuid"
)

type PurchaseStatus string

const (
	PurchaseInitiated PurchaseStatus = "INITIATED"
	PurchaseSucceeded PurchaseStatus = "SUCCESS"
	PurchaseFailed    PurchaseStatus = "FAILED"
)

// Purchase is the ledger record of one attempt to buy one course by one
// buyer. Amount and currency are captured at initiation time and never
// change afterwards. Rows are never deleted; SUCCESS and FAILED are sinks.
type Purchase struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CourseID     uuid.UUID
	BuyerID      uuid.UUID
	ProviderName string
	// ProviderRef is the provider-side checkout handle, set once the
	// provider has accepted the initiation. Empty only on failure paths.
	ProviderRef string
	AmountCents int64
	Currency    string
	Status      PurchaseStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseSucceeded || s == PurchaseFailed
}
