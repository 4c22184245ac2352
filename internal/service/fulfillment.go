package service

import (
	"context"
	"fmt"
	"log/slog"

	"coursepay/internal/domain"
	"coursepay/internal/metrics"
	"coursepay/internal/repo"
)

// FulfillmentService advances a purchase to a terminal state. It is
// shared by the webhook flow and the reconciliation worker so both paths
// converge through the same conditional transition and the same
// enrollment side effect.
type FulfillmentService struct {
	purchases   repo.PurchaseRepo
	enrollments repo.EnrollmentRepo
	finalizer   *EnrollmentService
	log         *slog.Logger
}

func NewFulfillmentService(purchases repo.PurchaseRepo, enrollments repo.EnrollmentRepo, finalizer *EnrollmentService, log *slog.Logger) *FulfillmentService {
	return &FulfillmentService{
		purchases:   purchases,
		enrollments: enrollments,
		finalizer:   finalizer,
		log:         log,
	}
}

// ConfirmSuccess transitions the purchase INITIATED -> SUCCESS and grants
// enrollment on the genuine first confirmation. A purchase already in
// SUCCESS is a duplicate delivery and performs no side effects. A
// purchase already FAILED is an integrity anomaly: it is surfaced, never
// promoted.
//
// The transition is a single conditional write, so concurrent duplicate
// deliveries for the same purchase collapse to exactly one transition and
// one enrollment grant.
func (s *FulfillmentService) ConfirmSuccess(ctx context.Context, p *domain.Purchase, path string) (first bool, err error) {
	if p.Status == domain.PurchaseFailed {
		return false, s.anomalousConfirmation(p)
	}

	first, err = s.purchases.MarkSucceeded(ctx, p.ID)
	if err != nil {
		return false, err
	}
	if !first {
		// The transition was refused, so the purchase went terminal by
		// some other path since the caller's read. Re-read to learn
		// which: a concurrent failure (a reconciliation sweep racing a
		// late webhook) is the same anomaly as a stale FAILED snapshot,
		// not a benign duplicate.
		current, err := s.purchases.FindByID(ctx, p.TenantID, p.ID)
		if err != nil {
			return false, err
		}
		if current.Status == domain.PurchaseFailed {
			return false, s.anomalousConfirmation(current)
		}
		// Duplicate delivery. The enrollment normally already exists; if
		// a crash between the transition and the grant left it missing,
		// converge on the invariant here instead of dropping it forever.
		return false, s.repairEnrollment(ctx, current)
	}

	if err := s.finalizer.Finalize(ctx, p.TenantID, p.BuyerID, p.CourseID); err != nil {
		// The ledger row is already SUCCESS. Surfacing the error makes
		// the provider redeliver, and the repair branch above completes
		// the grant then.
		return true, fmt.Errorf("finalize enrollment for purchase %s: %w", p.ID, err)
	}

	metrics.PurchasesConfirmed.WithLabelValues(path).Inc()
	s.log.Info("purchase confirmed",
		slog.String("purchase_id", p.ID.String()),
		slog.String("provider", p.ProviderName),
		slog.String("path", path),
	)
	return true, nil
}

func (s *FulfillmentService) anomalousConfirmation(p *domain.Purchase) error {
	s.log.Error("provider confirmed a purchase previously marked failed",
		slog.String("purchase_id", p.ID.String()),
		slog.String("provider", p.ProviderName),
	)
	metrics.AnomalousConfirmations.Inc()
	return fmt.Errorf("%w: purchase %s is FAILED", domain.ErrAnomalousConfirmation, p.ID)
}

func (s *FulfillmentService) repairEnrollment(ctx context.Context, p *domain.Purchase) error {
	enrolled, err := s.enrollments.Has(ctx, p.TenantID, p.BuyerID, p.CourseID)
	if err != nil || enrolled {
		return err
	}
	s.log.Warn("succeeded purchase missing its enrollment, repairing",
		slog.String("purchase_id", p.ID.String()),
	)
	return s.finalizer.Finalize(ctx, p.TenantID, p.BuyerID, p.CourseID)
}

// ConfirmFailure marks the purchase FAILED unless it already reached a
// terminal state.
func (s *FulfillmentService) ConfirmFailure(ctx context.Context, p *domain.Purchase) error {
	if p.Status.Terminal() {
		return nil
	}
	transitioned, err := s.purchases.MarkFailed(ctx, p.ID)
	if err != nil {
		return err
	}
	if transitioned {
		s.log.Info("purchase marked failed",
			slog.String("purchase_id", p.ID.String()),
			slog.String("provider", p.ProviderName),
		)
	}
	return nil
}
