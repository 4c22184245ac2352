package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

type CourseRepo interface {
	// FindPublished returns the course only if it is visible to buyers.
	// Unpublished and missing courses are indistinguishable to a buyer.
	FindPublished(ctx context.Context, tenantID, id uuid.UUID) (*domain.Course, error)
}

type courseRepo struct {
	db *sql.DB
}

func NewCourseRepo(db *sql.DB) CourseRepo {
	return &courseRepo{db: db}
}

func (r *courseRepo) FindPublished(ctx context.Context, tenantID, id uuid.UUID) (*domain.Course, error) {
	var c domain.Course
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, title, price_cents, image_url, published, created_at
		 FROM courses WHERE tenant_id = $1 AND id = $2 AND published`,
		tenantID, id,
	).Scan(&c.ID, &c.TenantID, &c.Title, &c.PriceCents, &c.ImageURL, &c.Published, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
