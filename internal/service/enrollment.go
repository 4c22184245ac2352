package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"coursepay/internal/repo"
)

// EnrollmentService holds the single idempotent operation that grants
// course access. Both the free fast path and the paid confirmation path
// end here, so free and paid courses get identical enrollment semantics.
type EnrollmentService struct {
	enrollments repo.EnrollmentRepo
	log         *slog.Logger
}

func NewEnrollmentService(enrollments repo.EnrollmentRepo, log *slog.Logger) *EnrollmentService {
	return &EnrollmentService{enrollments: enrollments, log: log}
}

// Finalize adds the course to the buyer's enrollment set. Calling it for
// an already-enrolled pair is a no-op.
func (s *EnrollmentService) Finalize(ctx context.Context, tenantID, buyerID, courseID uuid.UUID) error {
	if err := s.enrollments.Grant(ctx, tenantID, buyerID, courseID); err != nil {
		return err
	}
	s.log.Info("enrollment granted",
		slog.String("tenant_id", tenantID.String()),
		slog.String("buyer_id", buyerID.String()),
		slog.String("course_id", courseID.String()),
	)
	return nil
}
