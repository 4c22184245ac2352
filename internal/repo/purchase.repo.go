package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coursepay/internal/domain"
)

// PurchaseRepo is the persistence behind the purchase ledger. The two
// Mark transitions are single conditional writes: the UPDATE only matches
// rows still in INITIATED, so concurrent duplicate confirmations collapse
// to exactly one transition.
type PurchaseRepo interface {
	Create(ctx context.Context, purchase *domain.Purchase) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Purchase, error)
	SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error

	// MarkSucceeded reports whether this call performed the
	// INITIATED -> SUCCESS transition. False means the purchase was
	// already terminal.
	MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)

	// FindStuck returns INITIATED purchases older than the cutoff, for
	// reconciliation.
	FindStuck(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Purchase, error)
}

type purchaseRepo struct {
	db *sql.DB
}

func NewPurchaseRepo(db *sql.DB) PurchaseRepo {
	return &purchaseRepo{db: db}
}

const purchaseColumns = `id, tenant_id, course_id, buyer_id, provider, provider_ref, amount_cents, currency, status, created_at, updated_at`

func (r *purchaseRepo) Create(ctx context.Context, p *domain.Purchase) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO purchases (`+purchaseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TenantID, p.CourseID, p.BuyerID, p.ProviderName, p.ProviderRef,
		p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Purchase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *purchaseRepo) SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE purchases SET provider_ref = $2, updated_at = now() WHERE id = $1`,
		id, ref,
	)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	return nil
}

func (r *purchaseRepo) MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, domain.PurchaseSucceeded)
}

func (r *purchaseRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, domain.PurchaseFailed)
}

func (r *purchaseRepo) transition(ctx context.Context, id uuid.UUID, to domain.PurchaseStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchases SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, to, domain.PurchaseInitiated,
	)
	if err != nil {
		return false, fmt.Errorf("transition purchase to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *purchaseRepo) FindStuck(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at LIMIT $3`,
		domain.PurchaseInitiated, time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find stuck purchases: %w", err)
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row scanner) (*domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(
		&p.ID, &p.TenantID, &p.CourseID, &p.BuyerID, &p.ProviderName, &p.ProviderRef,
		&p.AmountCents, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
