package repo

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"coursepay/internal/database"
	"coursepay/internal/domain"
)

// startPostgres spins up a throwaway postgres container, applies the
// schema and returns a ready pool. Skipped when docker is unavailable.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("coursepay_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func seedPurchase(t *testing.T, purchases PurchaseRepo, status domain.PurchaseStatus) *domain.Purchase {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.Purchase{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		CourseID:     uuid.New(),
		BuyerID:      uuid.New(),
		ProviderName: "stripe",
		AmountCents:  4900,
		Currency:     "usd",
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, purchases.Create(context.Background(), p))
	return p
}

func TestPurchaseRepoLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	purchases := NewPurchaseRepo(db)
	ctx := context.Background()

	p := seedPurchase(t, purchases, domain.PurchaseInitiated)

	got, err := purchases.FindByID(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, domain.PurchaseInitiated, got.Status)
	assert.Equal(t, int64(4900), got.AmountCents)

	// Lookups are tenant scoped.
	_, err = purchases.FindByID(ctx, uuid.New(), p.ID)
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)

	require.NoError(t, purchases.SetProviderRef(ctx, p.ID, "cs_test_42"))
	got, err = purchases.FindByID(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_42", got.ProviderRef)

	first, err := purchases.MarkSucceeded(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, first)

	// Terminal rows never transition again, in either direction.
	again, err := purchases.MarkSucceeded(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, again)
	failed, err := purchases.MarkFailed(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, failed)

	got, err = purchases.FindByID(ctx, p.TenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseSucceeded, got.Status)
}

func TestPurchaseTransitionIsExactlyOnceUnderConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	purchases := NewPurchaseRepo(db)

	p := seedPurchase(t, purchases, domain.PurchaseInitiated)

	const workers = 16
	var wg sync.WaitGroup
	var transitions atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := purchases.MarkSucceeded(context.Background(), p.ID)
			assert.NoError(t, err)
			if first {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
}

func TestFindStuckReturnsOnlyOldInitiated(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	purchases := NewPurchaseRepo(db)
	ctx := context.Background()

	stuck := seedPurchase(t, purchases, domain.PurchaseInitiated)
	fresh := seedPurchase(t, purchases, domain.PurchaseInitiated)
	done := seedPurchase(t, purchases, domain.PurchaseInitiated)
	_, err := purchases.MarkSucceeded(ctx, done.ID)
	require.NoError(t, err)

	// Age the stuck row past the cutoff.
	_, err = db.ExecContext(ctx,
		`UPDATE purchases SET updated_at = now() - interval '2 hours' WHERE id = $1`, stuck.ID)
	require.NoError(t, err)

	found, err := purchases.FindStuck(ctx, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stuck.ID, found[0].ID)
	assert.NotEqual(t, fresh.ID, found[0].ID)
}

func TestProviderRefUniquePerProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	purchases := NewPurchaseRepo(db)
	ctx := context.Background()

	a := seedPurchase(t, purchases, domain.PurchaseInitiated)
	b := seedPurchase(t, purchases, domain.PurchaseInitiated)
	c := seedPurchase(t, purchases, domain.PurchaseInitiated)

	require.NoError(t, purchases.SetProviderRef(ctx, a.ID, "cs_dup"))
	assert.Error(t, purchases.SetProviderRef(ctx, b.ID, "cs_dup"))

	// Empty refs are exempt: many purchases may be awaiting handoff.
	require.NoError(t, purchases.SetProviderRef(ctx, c.ID, ""))
}

func TestEnrollmentGrantIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	enrollments := NewEnrollmentRepo(db)
	ctx := context.Background()

	tenantID, userID, courseID := uuid.New(), uuid.New(), uuid.New()

	has, err := enrollments.Has(ctx, tenantID, userID, courseID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, enrollments.Grant(ctx, tenantID, userID, courseID))
	require.NoError(t, enrollments.Grant(ctx, tenantID, userID, courseID))

	has, err = enrollments.Has(ctx, tenantID, userID, courseID)
	require.NoError(t, err)
	assert.True(t, has)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM enrollments WHERE tenant_id = $1 AND user_id = $2 AND course_id = $3`,
		tenantID, userID, courseID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCourseRepoFindPublished(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	courses := NewCourseRepo(db)
	ctx := context.Background()

	tenantID := uuid.New()
	published, hidden := uuid.New(), uuid.New()
	_, err := db.ExecContext(ctx,
		`INSERT INTO courses (id, tenant_id, title, price_cents, published) VALUES
		 ($1, $3, 'Published', 2500, TRUE),
		 ($2, $3, 'Draft', 2500, FALSE)`,
		published, hidden, tenantID)
	require.NoError(t, err)

	c, err := courses.FindPublished(ctx, tenantID, published)
	require.NoError(t, err)
	assert.Equal(t, "Published", c.Title)
	assert.False(t, c.Free())

	_, err = courses.FindPublished(ctx, tenantID, hidden)
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)

	_, err = courses.FindPublished(ctx, uuid.New(), published)
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestSettingsRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := startPostgres(t)
	settings := NewSettingsRepo(db)
	ctx := context.Background()

	tenantID := uuid.New()
	_, err := settings.PaymentSettings(ctx, tenantID)
	assert.ErrorIs(t, err, domain.ErrNoProviderConfigured)

	_, err = db.ExecContext(ctx,
		`INSERT INTO payment_settings (tenant_id, provider, secret_key, webhook_secret, currency)
		 VALUES ($1, 'stripe', 'sk_test', 'whsec_test', 'usd')`, tenantID)
	require.NoError(t, err)

	got, err := settings.PaymentSettings(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "stripe", got.Provider)
	assert.Equal(t, "usd", got.Currency)
}
