package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mieledautore/shop-backend/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, status, subtotal, discount_amount,
			shipping_cost, total, coupon_code, shipping_address, billing_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity,
			price, total_price, product_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	setPaymentSessionSQL = `UPDATE orders SET stripe_session_id = $2, payment_intent_id = $3,
			updated_at = now()
		WHERE id = $1`

	selectOrderSQL = `SELECT id, user_id, status, subtotal, discount_amount, shipping_cost,
			total, coupon_code, stripe_session_id, payment_intent_id,
			shipping_address, billing_address, admin_notes, created_at, updated_at
		FROM orders`

	getOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price, total_price, product_snapshot
		FROM order_items WHERE order_id = $1`

	// The status predicate makes the transition conditional: under concurrent
	// event delivery exactly one caller observes a row change.
	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	// Processor-confirmed details replace billing wholesale but only merge
	// into shipping, preserving the address collected at checkout.
	setConfirmedDetailsSQL = `UPDATE orders SET billing_address = $2,
			shipping_address = shipping_address || $3::jsonb, updated_at = now()
		WHERE id = $1`

	appendAdminNoteSQL = `UPDATE orders SET admin_notes = CASE
			WHEN admin_notes = '' THEN $2
			ELSE admin_notes || E'\n' || $2
		END, updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and all line items in a single
// transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Status, o.Subtotal, o.DiscountAmount,
		o.ShippingCost, o.Total, o.CouponCode, shippingJSON, billingJSON,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		snapshotJSON, err := json.Marshal(item.Snapshot)
		if err != nil {
			return fmt.Errorf("marshaling product snapshot: %w", err)
		}
		batch.Queue(createOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.Quantity,
			item.Price, item.TotalPrice, snapshotJSON,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items for order %q: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// SetPaymentSession attaches the processor's session and payment intent
// identifiers to the order.
func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID, paymentIntentID string) error {
	_, err := r.pool.Exec(ctx, setPaymentSessionSQL, orderID, sessionID, paymentIntentID)
	if err != nil {
		return fmt.Errorf("setting payment session for order %q: %w", orderID, err)
	}
	return nil
}

// FindBySessionID returns the order attached to a checkout session.
func (r *OrderRepository) FindBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.findOne(ctx, selectOrderSQL+` WHERE stripe_session_id = $1`, sessionID)
}

// FindByPaymentIntentID returns the order attached to a payment intent.
func (r *OrderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*order.Order, error) {
	return r.findOne(ctx, selectOrderSQL+` WHERE payment_intent_id = $1`, paymentIntentID)
}

func (r *OrderRepository) findOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}
	return &o, nil
}

// Items returns the line items belonging to an order.
func (r *OrderRepository) Items(ctx context.Context, orderID string) ([]order.LineItem, error) {
	rows, err := r.pool.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLineItem)
}

// Transition performs a conditional status update. It rejects transitions
// outside the lifecycle table before touching the database.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, from, to order.Status) (bool, error) {
	if err := order.CheckTransition(from, to); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, transitionOrderSQL, orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("transitioning order %q to %s: %w", orderID, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetConfirmedDetails stores the billing and shipping details confirmed by
// the payment processor.
func (r *OrderRepository) SetConfirmedDetails(ctx context.Context, orderID string, billing, shipping order.Address) error {
	billingJSON, err := json.Marshal(billing)
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}
	shippingJSON, err := json.Marshal(shipping)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, setConfirmedDetailsSQL, orderID, billingJSON, shippingJSON)
	if err != nil {
		return fmt.Errorf("setting confirmed details for order %q: %w", orderID, err)
	}
	return nil
}

// AppendAdminNote appends a line to the order's free-text admin notes.
func (r *OrderRepository) AppendAdminNote(ctx context.Context, orderID, note string) error {
	_, err := r.pool.Exec(ctx, appendAdminNoteSQL, orderID, note)
	if err != nil {
		return fmt.Errorf("appending admin note for order %q: %w", orderID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		shippingJSON []byte
		billingJSON  []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.DiscountAmount, &o.ShippingCost,
		&o.Total, &o.CouponCode, &o.StripeSessionID, &o.PaymentIntentID,
		&shippingJSON, &billingJSON, &o.AdminNotes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	return o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		item         order.LineItem
		snapshotJSON []byte
	)
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
		&item.Price, &item.TotalPrice, &snapshotJSON,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(snapshotJSON, &item.Snapshot); err != nil {
		return item, fmt.Errorf("unmarshaling product snapshot: %w", err)
	}
	return item, nil
}
