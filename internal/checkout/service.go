// Package checkout turns a client cart into a durable pending order and a
// hosted payment session: stock validation, pricing, atomic order persistence,
// and session initiation with the payment processor.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mieledautore/shop-backend/internal/domain/coupon"
	"github.com/mieledautore/shop-backend/internal/domain/order"
	"github.com/mieledautore/shop-backend/internal/domain/product"
	"github.com/mieledautore/shop-backend/internal/ledger"
	"github.com/mieledautore/shop-backend/internal/payment"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrEmptyItems   = errors.New("items required")
	ErrNoValidItems = errors.New("no valid products found")
	ErrRateLimited  = errors.New("too many checkout attempts")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates an explicit request for more units than
// available. Unlike a stale reference to a deleted product, this must surface
// to the user as an actionable error.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}

// Config holds pricing and session parameters for the checkout pipeline.
type Config struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	MaxTotal              decimal.Decimal
	Currency              string
	SuccessURL            string
	CancelURL             string
	RateLimit             int
	RateWindow            time.Duration
}

// Service encapsulates the checkout pipeline.
type Service struct {
	cfg      Config
	products product.Repository
	coupons  coupon.Validator
	usage    coupon.Repository
	orders   order.Repository
	payments payment.Client
	limiter  ledger.Ledger
}

// NewService creates a checkout Service with the required collaborators.
func NewService(
	cfg Config,
	products product.Repository,
	coupons coupon.Validator,
	usage coupon.Repository,
	orders order.Repository,
	payments payment.Client,
	limiter ledger.Ledger,
) *Service {
	return &Service{
		cfg:      cfg,
		products: products,
		coupons:  coupons,
		usage:    usage,
		orders:   orders,
		payments: payments,
		limiter:  limiter,
	}
}

// ItemRequest is one cart entry as sent by the client.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Request holds the input for a checkout.
type Request struct {
	UserID          string
	Items           []ItemRequest
	CouponCode      string
	ShippingAddress order.Address
}

// Result holds the output of a successfully initiated checkout.
type Result struct {
	OrderID     string
	SessionID   string
	CheckoutURL string
}

// validatedItem pairs a cart entry with its fetched product snapshot.
type validatedItem struct {
	product  product.Product
	quantity int
}

// Checkout runs the full pipeline: rate limit, validate, price, persist the
// pending order, create the payment session, and attach the session to the
// order.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	allowed, err := s.limiter.Allow(ctx, "checkout:"+req.UserID, s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		return nil, errors.Wrap(err, "rate limit check")
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	items, err := s.validateItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	quote, err := s.price(ctx, items, req.CouponCode)
	if err != nil {
		return nil, err
	}

	o := buildOrder(req, items, quote)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	session, err := s.payments.CreateCheckoutSession(ctx, s.sessionRequest(o, items))
	if err != nil {
		// The pending_payment order is left behind on purpose: with no
		// session it can receive no events and is safely abandoned.
		return nil, errors.Wrap(err, "create checkout session")
	}

	if err := s.orders.SetPaymentSession(ctx, o.ID, session.ID, session.PaymentIntentID); err != nil {
		return nil, errors.Wrap(err, "attach payment session")
	}

	if req.CouponCode != "" && (quote.Discount.IsPositive() || quote.FreeShipping) {
		if err := s.usage.IncrementUsage(ctx, req.CouponCode); err != nil {
			zctx.From(ctx).Warn("coupon usage increment failed",
				zap.String("code", req.CouponCode), zap.Error(err))
		}
	}

	return &Result{
		OrderID:     o.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// validateItems fetches the requested products in one batch and filters the
// cart. Missing or inactive products are skipped so a stale client cart does
// not block the rest of the purchase, but requesting more than the available
// stock fails the whole request.
func (s *Service) validateItems(ctx context.Context, items []ItemRequest) ([]validatedItem, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	validated := make([]validatedItem, 0, len(items))
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok || !p.Active {
			zctx.From(ctx).Debug("skipping missing or inactive product",
				zap.String("product_id", item.ProductID))
			continue
		}
		if p.Stock < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: item.Quantity,
			}
		}
		validated = append(validated, validatedItem{product: p, quantity: item.Quantity})
	}

	if len(validated) == 0 {
		return nil, ErrNoValidItems
	}
	return validated, nil
}

// buildOrder assembles the pending order with price-snapshot line items.
func buildOrder(req Request, items []validatedItem, q *Quote) *order.Order {
	lineItems := make([]order.LineItem, len(items))
	for i, it := range items {
		qty := decimal.NewFromInt(int64(it.quantity))
		lineItems[i] = order.LineItem{
			ID:         uuid.New().String(),
			ProductID:  it.product.ID,
			Quantity:   it.quantity,
			Price:      it.product.Price,
			TotalPrice: it.product.Price.Mul(qty).Round(2),
			Snapshot: order.ProductSnapshot{
				Name:     it.product.Name,
				Price:    it.product.Price,
				ImageURL: it.product.ImageURL,
			},
		}
	}

	return &order.Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Status:          order.StatusPendingPayment,
		Subtotal:        q.Subtotal,
		DiscountAmount:  q.Discount,
		ShippingCost:    q.Shipping,
		Total:           q.Total,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.ShippingAddress,
		Items:           lineItems,
	}
}

// sessionRequest translates the priced order into a processor session
// request with traceability metadata for the reconciler.
func (s *Service) sessionRequest(o *order.Order, items []validatedItem) payment.SessionRequest {
	lines := make([]payment.SessionLineItem, len(items))
	for i, it := range items {
		lines[i] = payment.SessionLineItem{
			Name:       it.product.Name,
			ImageURL:   it.product.ImageURL,
			UnitAmount: payment.MinorUnits(it.product.Price),
			Quantity:   it.quantity,
		}
	}

	return payment.SessionRequest{
		LineItems:  lines,
		Currency:   s.cfg.Currency,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata: map[string]string{
			"order_id":     o.ID,
			"user_id":      o.UserID,
			"items_count":  strconv.Itoa(len(items)),
			"total_amount": o.Total.StringFixed(2),
		},
	}
}
