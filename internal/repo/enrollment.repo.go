package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// EnrollmentRepo is the buyer/enrollment contract this subsystem produces
// to. Grant is idempotent at the storage level so the finalizer can be
// invoked any number of times for the same pair.
type EnrollmentRepo interface {
	Has(ctx context.Context, tenantID, userID, courseID uuid.UUID) (bool, error)
	Grant(ctx context.Context, tenantID, userID, courseID uuid.UUID) error
}

type enrollmentRepo struct {
	db *sql.DB
}

func NewEnrollmentRepo(db *sql.DB) EnrollmentRepo {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) Has(ctx context.Context, tenantID, userID, courseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE tenant_id = $1 AND user_id = $2 AND course_id = $3
		 )`,
		tenantID, userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (r *enrollmentRepo) Grant(ctx context.Context, tenantID, userID, courseID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (tenant_id, user_id, course_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		tenantID, userID, courseID,
	)
	if err != nil {
		return fmt.Errorf("grant enrollment: %w", err)
	}
	return nil
}
