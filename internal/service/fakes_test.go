package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"coursepay/internal/domain"
	"coursepay/internal/provider"
)

// In-memory collaborators mirroring the Postgres repositories, including
// the conditional-write semantics of the purchase transitions.

type memPurchases struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Purchase
}

func newMemPurchases() *memPurchases {
	return &memPurchases{rows: make(map[uuid.UUID]*domain.Purchase)}
}

func (m *memPurchases) Create(_ context.Context, p *domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPurchases) FindByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.TenantID != tenantID {
		return nil, domain.ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPurchases) SetProviderRef(_ context.Context, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		p.ProviderRef = ref
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memPurchases) MarkSucceeded(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, domain.PurchaseSucceeded), nil
}

func (m *memPurchases) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, domain.PurchaseFailed), nil
}

func (m *memPurchases) transition(id uuid.UUID, to domain.PurchaseStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Status != domain.PurchaseInitiated {
		return false
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return true
}

func (m *memPurchases) FindStuck(_ context.Context, olderThan time.Duration, limit int) ([]domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Purchase
	for _, p := range m.rows {
		if p.Status == domain.PurchaseInitiated && p.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPurchases) get(id uuid.UUID) domain.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memPurchases) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type enrollKey struct {
	tenant, user, course uuid.UUID
}

type memEnrollments struct {
	mu   sync.Mutex
	rows map[enrollKey]bool
	// adds counts actual set insertions, not grant calls, so tests can
	// assert the exactly-once property.
	adds int
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{rows: make(map[enrollKey]bool)}
}

func (m *memEnrollments) Has(_ context.Context, tenantID, userID, courseID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[enrollKey{tenantID, userID, courseID}], nil
}

func (m *memEnrollments) Grant(_ context.Context, tenantID, userID, courseID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := enrollKey{tenantID, userID, courseID}
	if !m.rows[k] {
		m.rows[k] = true
		m.adds++
	}
	return nil
}

func (m *memEnrollments) addCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds
}

type memCourses struct {
	rows map[uuid.UUID]*domain.Course
}

func newMemCourses(courses ...*domain.Course) *memCourses {
	m := &memCourses{rows: make(map[uuid.UUID]*domain.Course)}
	for _, c := range courses {
		m.rows[c.ID] = c
	}
	return m
}

func (m *memCourses) FindPublished(_ context.Context, tenantID, id uuid.UUID) (*domain.Course, error) {
	c, ok := m.rows[id]
	if !ok || c.TenantID != tenantID || !c.Published {
		return nil, domain.ErrCourseNotFound
	}
	return c, nil
}

type memSettings struct {
	rows map[uuid.UUID]*domain.PaymentSettings
}

func (m *memSettings) PaymentSettings(_ context.Context, tenantID uuid.UUID) (*domain.PaymentSettings, error) {
	s, ok := m.rows[tenantID]
	if !ok {
		return nil, domain.ErrNoProviderConfigured
	}
	return s, nil
}

// fakeProvider scripts provider behavior for flow tests.
type fakeProvider struct {
	providerName string
	checkout     *provider.Checkout
	initiateErr  error
	verifyOK     bool
	purchaseID   uuid.UUID
	paid         bool
	checkErr     error

	mu        sync.Mutex
	initiated int
}

func (f *fakeProvider) Name() string {
	if f.providerName == "" {
		return "fakepay"
	}
	return f.providerName
}

func (f *fakeProvider) Initiate(_ context.Context, _ *domain.Course, _ *domain.Purchase, _ provider.CheckoutIntent) (*provider.Checkout, error) {
	f.mu.Lock()
	f.initiated++
	f.mu.Unlock()
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return f.checkout, nil
}

func (f *fakeProvider) VerifyWebhook(_ []byte, _ http.Header) bool {
	return f.verifyOK
}

func (f *fakeProvider) PurchaseIDFromWebhook(_ []byte) (uuid.UUID, error) {
	return f.purchaseID, nil
}

func (f *fakeProvider) CheckStatus(_ context.Context, _ string) (bool, error) {
	return f.paid, f.checkErr
}

// newFakeRegistry builds a registry whose "fakepay" provider resolves to
// the given fake for the given tenant.
func newFakeRegistry(tenantID uuid.UUID, fake *fakeProvider) *provider.Registry {
	settings := &memSettings{rows: map[uuid.UUID]*domain.PaymentSettings{
		tenantID: {
			TenantID:  tenantID,
			Provider:  fake.Name(),
			SecretKey: "sk_test_123",
			Currency:  "usd",
		},
	}}
	r := provider.NewRegistry(settings)
	r.Register(fake.Name(), func(_ *domain.PaymentSettings) (provider.Provider, error) {
		return fake, nil
	})
	return r
}
