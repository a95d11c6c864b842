package application

import (
	"context"
	"sync"
	"time"

	"vertex/internal/service/checkout/domain"
)

// 手写桩实现，覆盖 CheckoutService 的全部出站端口。

type mockCatalog struct {
	products map[string]domain.Product
	err      error
}

func (m *mockCatalog) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type mockPromotions struct {
	promo         *domain.Promotion
	findErr       error
	globalCount   int64
	identityCount int64
}

func (m *mockPromotions) FindByCode(_ context.Context, code string) (*domain.Promotion, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.promo == nil || m.promo.Code != code {
		return nil, domain.ErrNotFound
	}
	return m.promo, nil
}

func (m *mockPromotions) GlobalUsageCount(_ context.Context, _ int64) (int64, error) {
	return m.globalCount, nil
}

func (m *mockPromotions) IdentityUsageCount(_ context.Context, _ int64, _ string) (int64, error) {
	return m.identityCount, nil
}

type mockOrders struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	usages  []*domain.UsageRecord
	byRef   map[string]*domain.Order
	nextErr error // 下一次 Create 返回的错误，消费后清零
}

func newMockOrders() *mockOrders {
	return &mockOrders{
		orders: make(map[string]*domain.Order),
		byRef:  make(map[string]*domain.Order),
	}
}

func (m *mockOrders) Create(_ context.Context, order *domain.Order, usage *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		return err
	}
	if order.ExternalPaymentRef != "" {
		if _, exists := m.byRef[order.ExternalPaymentRef]; exists {
			return domain.ErrDuplicateOrderRef
		}
		m.byRef[order.ExternalPaymentRef] = order
	}
	m.orders[order.ID] = order
	if usage != nil {
		m.usages = append(m.usages, usage)
	}
	return nil
}

func (m *mockOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockOrders) FindByExternalRef(_ context.Context, ref string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byRef[ref]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockOrders) UpdateStatus(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// mockReservations 在内存里复刻条件状态迁移的语义。
type mockReservations struct {
	mu    sync.Mutex
	store map[string]*domain.Reservation
}

func newMockReservations() *mockReservations {
	return &mockReservations{store: make(map[string]*domain.Reservation)}
}

func (m *mockReservations) Create(_ context.Context, r *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.store[r.ExternalPaymentRef] = &cp
	return nil
}

func (m *mockReservations) Get(_ context.Context, ref string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.store[ref]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockReservations) MarkPaid(_ context.Context, ref, paymentRef, signature string, _ time.Time) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[ref]
	if !ok {
		return "", domain.ErrNotFound
	}
	switch r.Status {
	case domain.ReservationCreated, domain.ReservationPaymentPending:
		r.Status = domain.ReservationPaid
		r.PaymentRef = paymentRef
		r.Signature = signature
		return domain.TransitionApplied, nil
	case domain.ReservationPaid, domain.ReservationConverted:
		return domain.TransitionNoop, nil
	default:
		return domain.TransitionRejected, nil
	}
}

func (m *mockReservations) MarkPaymentFailed(_ context.Context, ref string) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[ref]
	if !ok {
		return "", domain.ErrNotFound
	}
	if r.Pending() {
		r.Status = domain.ReservationPaymentFailed
		return domain.TransitionApplied, nil
	}
	if r.Status == domain.ReservationPaymentFailed {
		return domain.TransitionNoop, nil
	}
	return domain.TransitionRejected, nil
}

func (m *mockReservations) MarkConverted(_ context.Context, ref, orderID string) (domain.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[ref]
	if !ok {
		return "", domain.ErrNotFound
	}
	switch r.Status {
	case domain.ReservationPaid:
		r.Status = domain.ReservationConverted
		r.LinkedOrderRef = orderID
		return domain.TransitionApplied, nil
	case domain.ReservationConverted:
		return domain.TransitionNoop, nil
	default:
		return domain.TransitionRejected, nil
	}
}

func (m *mockReservations) ExpireDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cancelled []string
	for ref, r := range m.store {
		if len(cancelled) >= limit {
			break
		}
		if r.Pending() && r.Expired(now) {
			r.Status = domain.ReservationCancelled
			cancelled = append(cancelled, ref)
		}
	}
	return cancelled, nil
}

type mockGateway struct {
	intentID string
	err      error
	calls    int
}

func (m *mockGateway) CreateIntent(_ context.Context, _ int64, _ string, _ map[string]string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.intentID, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []*domain.OrderPlacedEvent
}

func (m *mockNotifier) OrderPlaced(_ context.Context, ev *domain.OrderPlacedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type mockAudit struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func (m *mockAudit) Write(_ context.Context, ev *domain.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockAudit) kinds() []domain.AuditKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditKind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

type mockLimiter struct {
	allow bool
	err   error
}

func (m *mockLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return m.allow, m.err
}

type mockRules struct {
	ok  bool
	err error
}

func (m *mockRules) Evaluate(_ string, _ domain.Fact) (bool, error) {
	return m.ok, m.err
}

type mockPricing struct {
	cfg domain.PricingConfig
}

func (m *mockPricing) Current(_ context.Context) (domain.PricingConfig, error) {
	return m.cfg, nil
}
