package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"coursepay/internal/domain"
	"coursepay/internal/metrics"
	"coursepay/internal/provider"
	"coursepay/internal/repo"
)

// Buyer is the authenticated principal on whose behalf a checkout runs.
// Authentication itself happens upstream; this subsystem only consumes
// the result.
type Buyer struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Email    string
}

// RedirectURLs is the client-supplied metadata for one initiation.
type RedirectURLs struct {
	SuccessURL string
	CancelURL  string
	SourceURL  string
}

type CheckoutStatus string

const (
	// CheckoutGranted covers both the zero-cost fast path and a course the
	// buyer already owned: either way the buyer ends up enrolled with no
	// redirect needed.
	CheckoutGranted CheckoutStatus = "success"
	// CheckoutInitiated means a purchase was created and the buyer must be
	// redirected into the provider's hosted checkout.
	CheckoutInitiated CheckoutStatus = "initiated"
)

type CheckoutResult struct {
	Status      CheckoutStatus
	PurchaseID  uuid.UUID
	RedirectURL string
}

// CheckoutService orchestrates "buyer wants course X" into either an
// immediate enrollment or a provider checkout handoff.
type CheckoutService struct {
	courses         repo.CourseRepo
	enrollments     repo.EnrollmentRepo
	purchases       repo.PurchaseRepo
	registry        *provider.Registry
	enrollment      *EnrollmentService
	providerTimeout time.Duration
	log             *slog.Logger
}

func NewCheckoutService(
	courses repo.CourseRepo,
	enrollments repo.EnrollmentRepo,
	purchases repo.PurchaseRepo,
	registry *provider.Registry,
	enrollment *EnrollmentService,
	providerTimeout time.Duration,
	log *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		courses:         courses,
		enrollments:     enrollments,
		purchases:       purchases,
		registry:        registry,
		enrollment:      enrollment,
		providerTimeout: providerTimeout,
		log:             log,
	}
}

// Initiate runs the purchase initiation flow. The INITIATED row is
// committed before the provider is called, so a provider failure leaves
// an inspectable row that reconciliation resolves rather than an
// ambiguous error.
func (s *CheckoutService) Initiate(ctx context.Context, buyer Buyer, courseID uuid.UUID, urls RedirectURLs) (*CheckoutResult, error) {
	course, err := s.courses.FindPublished(ctx, buyer.TenantID, courseID)
	if err != nil {
		return nil, err
	}

	owned, err := s.enrollments.Has(ctx, buyer.TenantID, buyer.UserID, courseID)
	if err != nil {
		return nil, err
	}
	if owned {
		// Purchasing is not re-entrant for an owned course: no purchase
		// row, no provider call.
		return &CheckoutResult{Status: CheckoutGranted}, nil
	}

	if course.Free() {
		if err := s.enrollment.Finalize(ctx, buyer.TenantID, buyer.UserID, courseID); err != nil {
			return nil, err
		}
		metrics.FreeEnrollments.Inc()
		return &CheckoutResult{Status: CheckoutGranted}, nil
	}

	// Resolve the provider before creating the ledger row so that a
	// misconfigured tenant never accumulates purchases it cannot process.
	// Configuration errors propagate verbatim; they are actionable by the
	// tenant admin.
	prov, settings, err := s.registry.ResolveWithSettings(ctx, buyer.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	purchase := &domain.Purchase{
		ID:           uuid.New(),
		TenantID:     buyer.TenantID,
		CourseID:     course.ID,
		BuyerID:      buyer.UserID,
		ProviderName: prov.Name(),
		AmountCents:  course.PriceCents,
		Currency:     settings.Currency,
		Status:       domain.PurchaseInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	checkout, err := prov.Initiate(pctx, course, purchase, provider.CheckoutIntent{
		PurchaseID: purchase.ID,
		BuyerEmail: buyer.Email,
		SuccessURL: urls.SuccessURL,
		CancelURL:  urls.CancelURL,
		SourceURL:  urls.SourceURL,
	})
	metrics.ProviderInitiateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// The INITIATED row stays behind on purpose. A timed-out call may
		// still have created a provider-side session carrying our
		// purchase id, so the webhook can still resolve it; otherwise the
		// reconciliation worker fails it after the cutoff.
		s.log.Warn("provider initiation failed, purchase left for reconciliation",
			slog.String("purchase_id", purchase.ID.String()),
			slog.String("provider", prov.Name()),
			slog.Any("error", err),
		)
		return nil, err
	}

	if err := s.purchases.SetProviderRef(ctx, purchase.ID, checkout.ProviderRef); err != nil {
		return nil, err
	}

	metrics.CheckoutsInitiated.WithLabelValues(prov.Name()).Inc()
	s.log.Info("checkout initiated",
		slog.String("purchase_id", purchase.ID.String()),
		slog.String("provider", prov.Name()),
		slog.String("provider_ref", checkout.ProviderRef),
		slog.Int64("amount_cents", purchase.AmountCents),
	)

	return &CheckoutResult{
		Status:      CheckoutInitiated,
		PurchaseID:  purchase.ID,
		RedirectURL: checkout.RedirectURL,
	}, nil
}

// Verify reports the current state of a purchase. The UI polls this after
// the provider redirects the buyer back; it converges on the same
// terminal state as the webhook without assuming any ordering between
// the two.
func (s *CheckoutService) Verify(ctx context.Context, tenantID, purchaseID uuid.UUID) (domain.PurchaseStatus, error) {
	p, err := s.purchases.FindByID(ctx, tenantID, purchaseID)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}
