package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mieledautore/shop-backend/internal/domain/coupon"
	"github.com/mieledautore/shop-backend/internal/domain/order"
	"github.com/mieledautore/shop-backend/internal/domain/product"
	"github.com/mieledautore/shop-backend/internal/ledger"
	"github.com/mieledautore/shop-backend/internal/payment"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, id string, qty int) (int, string, error) {
	p, ok := m.byID[id]
	if !ok || p.Stock < qty {
		return 0, "", product.ErrNotFound
	}
	p.Stock -= qty
	return p.Stock, p.Name, nil
}

func (m *mockProductRepo) Deactivate(_ context.Context, id string) error {
	if p, ok := m.byID[id]; ok {
		p.Active = false
	}
	return nil
}

type mockCouponRepo struct {
	rule        *coupon.Rule
	incremented []string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	if m.rule == nil || m.rule.Code != code {
		return nil, coupon.ErrNotFound
	}
	return m.rule, nil
}

func (m *mockCouponRepo) IncrementUsage(_ context.Context, code string) error {
	m.incremented = append(m.incremented, code)
	return nil
}

type mockOrderRepo struct {
	created   []*order.Order
	createErr error
	sessions  map[string][2]string
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrderRepo) SetPaymentSession(_ context.Context, orderID, sessionID, piID string) error {
	if m.sessions == nil {
		m.sessions = make(map[string][2]string)
	}
	m.sessions[orderID] = [2]string{sessionID, piID}
	return nil
}

func (m *mockOrderRepo) FindBySessionID(context.Context, string) (*order.Order, error) {
	return nil, errors.New("not implemented")
}

func (m *mockOrderRepo) FindByPaymentIntentID(context.Context, string) (*order.Order, error) {
	return nil, errors.New("not implemented")
}

func (m *mockOrderRepo) Items(context.Context, string) ([]order.LineItem, error) {
	return nil, nil
}

func (m *mockOrderRepo) Transition(context.Context, string, order.Status, order.Status) (bool, error) {
	return false, nil
}

func (m *mockOrderRepo) SetConfirmedDetails(context.Context, string, order.Address, order.Address) error {
	return nil
}

func (m *mockOrderRepo) AppendAdminNote(context.Context, string, string) error {
	return nil
}

type mockPaymentClient struct {
	session *payment.Session
	err     error
	lastReq payment.SessionRequest
}

func (m *mockPaymentClient) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

// --- Helpers ---

func testConfig() Config {
	return Config{
		FreeShippingThreshold: decimal.RequireFromString("50.00"),
		FlatShippingFee:       decimal.RequireFromString("5.99"),
		MaxTotal:              decimal.RequireFromString("999999.99"),
		Currency:              "eur",
		SuccessURL:            "https://shop.example/success",
		CancelURL:             "https://shop.example/cart",
		RateLimit:             5,
		RateWindow:            time.Minute,
	}
}

func newTestProduct(id, name, price string, stock int) *product.Product {
	return &product.Product{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}

type fixture struct {
	svc      *Service
	products *mockProductRepo
	coupons  *mockCouponRepo
	orders   *mockOrderRepo
	payments *mockPaymentClient
}

func newFixture(products ...*product.Product) *fixture {
	byID := make(map[string]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	f := &fixture{
		products: &mockProductRepo{byID: byID},
		coupons:  &mockCouponRepo{},
		orders:   &mockOrderRepo{},
		payments: &mockPaymentClient{
			session: &payment.Session{
				ID:              "cs_test_1",
				URL:             "https://pay.example/cs_test_1",
				PaymentIntentID: "pi_1",
			},
		},
	}
	f.svc = NewService(
		testConfig(),
		f.products,
		coupon.NewRepoValidator(f.coupons),
		f.coupons,
		f.orders,
		f.payments,
		ledger.NewMemory(),
	)
	return f
}

// --- Tests ---

func TestCheckout_NoCoupon(t *testing.T) {
	f := newFixture(
		newTestProduct("a", "Millefiori", "10.00", 10),
		newTestProduct("b", "Castagno", "25.00", 10),
	)

	result, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: "a", Quantity: 2},
			{ProductID: "b", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_1", result.CheckoutURL)

	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Equal(t, order.StatusPendingPayment, o.Status)
	assert.True(t, decimal.RequireFromString("45.00").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, decimal.RequireFromString("5.99").Equal(o.ShippingCost), "shipping %s", o.ShippingCost)
	assert.True(t, decimal.RequireFromString("50.99").Equal(o.Total), "total %s", o.Total)
	assert.Len(t, o.Items, 2)

	// Session attached to the order after creation.
	assert.Equal(t, [2]string{"cs_test_1", "pi_1"}, f.orders.sessions[o.ID])
}

func TestCheckout_PercentageCoupon(t *testing.T) {
	f := newFixture(
		newTestProduct("a", "Millefiori", "10.00", 10),
		newTestProduct("b", "Castagno", "25.00", 10),
	)
	f.coupons.rule = &coupon.Rule{
		Code:  "SAVE10",
		Type:  coupon.DiscountPercentage,
		Value: decimal.NewFromInt(10),
	}

	result, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: "a", Quantity: 2},
			{ProductID: "b", Quantity: 1},
		},
		CouponCode: "SAVE10",
	})

	require.NoError(t, err)
	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	// 45.00 - 4.50 = 40.50 < 50.00 threshold, so shipping still applies.
	assert.True(t, decimal.RequireFromString("4.50").Equal(o.DiscountAmount), "discount %s", o.DiscountAmount)
	assert.True(t, decimal.RequireFromString("5.99").Equal(o.ShippingCost), "shipping %s", o.ShippingCost)
	assert.True(t, decimal.RequireFromString("46.49").Equal(o.Total), "total %s", o.Total)

	assert.Equal(t, []string{"SAVE10"}, f.coupons.incremented)
	_ = result
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 2))

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "a", Quantity: 3}},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, 2, isErr.Available)
	assert.Equal(t, 3, isErr.Requested)

	// No order row is created before validation passes.
	assert.Empty(t, f.orders.created)
}

func TestCheckout_SkipsMissingAndInactive(t *testing.T) {
	inactive := newTestProduct("c", "Acacia", "15.00", 5)
	inactive.Active = false
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 10), inactive)

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items: []ItemRequest{
			{ProductID: "a", Quantity: 6}, // 60.00, free shipping
			{ProductID: "c", Quantity: 1}, // inactive, skipped
			{ProductID: "ghost", Quantity: 1},
		},
	})

	require.NoError(t, err)
	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Len(t, o.Items, 1)
	assert.True(t, decimal.RequireFromString("60.00").Equal(o.Total), "total %s", o.Total)
	assert.True(t, o.ShippingCost.IsZero())
}

func TestCheckout_NoValidItems(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "ghost", Quantity: 1}},
	})

	require.ErrorIs(t, err, ErrNoValidItems)
}

func TestCheckout_EmptyItems(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Checkout(context.Background(), Request{UserID: "user-1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 10))

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "a", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "a", iqErr.ProductID)
}

func TestCheckout_RateLimited(t *testing.T) {
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 100))
	req := Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "a", Quantity: 1}},
	}

	for i := range 5 {
		_, err := f.svc.Checkout(context.Background(), req)
		require.NoError(t, err, "attempt %d", i+1)
	}

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrRateLimited)

	// A different user is unaffected.
	req.UserID = "user-2"
	_, err = f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
}

func TestCheckout_SessionFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 10))
	f.payments.err = errors.New("processor unreachable")

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "a", Quantity: 1}},
	})

	require.Error(t, err)
	// The order row survives in pending_payment with no session attached;
	// with no session it can receive no events and is safely abandoned.
	require.Len(t, f.orders.created, 1)
	assert.Equal(t, order.StatusPendingPayment, f.orders.created[0].Status)
	assert.Empty(t, f.orders.sessions)
	assert.Empty(t, f.coupons.incremented)
}

func TestCheckout_SessionMetadata(t *testing.T) {
	f := newFixture(newTestProduct("a", "Millefiori", "10.00", 10))

	_, err := f.svc.Checkout(context.Background(), Request{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "a", Quantity: 2}},
	})
	require.NoError(t, err)

	req := f.payments.lastReq
	require.Len(t, req.LineItems, 1)
	assert.Equal(t, int64(1000), req.LineItems[0].UnitAmount)
	assert.Equal(t, 2, req.LineItems[0].Quantity)

	o := f.orders.created[0]
	assert.Equal(t, o.ID, req.Metadata["order_id"])
	assert.Equal(t, "user-1", req.Metadata["user_id"])
	assert.Equal(t, "1", req.Metadata["items_count"])
	assert.Equal(t, "25.99", req.Metadata["total_amount"])
}
