// Package webhook reconciles asynchronous payment-lifecycle events into store
// state: order status, product stock, loyalty points, and the customer
// confirmation email. Events are authenticated, deduplicated, and applied
// through conditional writes so redelivery and out-of-order arrival are safe.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mieledautore/shop-backend/internal/domain/order"
	"github.com/mieledautore/shop-backend/internal/domain/product"
	"github.com/mieledautore/shop-backend/internal/ledger"
	"github.com/mieledautore/shop-backend/internal/notify"
	"github.com/mieledautore/shop-backend/internal/payment"
)

// EventStore persists processed event identifiers and processing failures.
type EventStore interface {
	// InsertOnce durably records the event id. It returns false when the id
	// was already recorded, which callers treat as a duplicate delivery.
	InsertOnce(ctx context.Context, eventID, eventType string) (bool, error)

	// RecordError stores a processing failure for diagnostics.
	RecordError(ctx context.Context, eventID, eventType, message string) error

	// Prune deletes event records older than the retention window and
	// returns the number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LoyaltyStore accrues loyalty points per user.
type LoyaltyStore interface {
	AddPoints(ctx context.Context, userID string, points int) error
}

// Config holds reconciler tunables.
type Config struct {
	// LowStockThreshold triggers an admin alert log when a product's
	// remaining stock falls to or below it.
	LowStockThreshold int
	// EventRetention bounds how long processed event ids are kept. The
	// processor retries for a bounded time, so 24h is sufficient.
	EventRetention time.Duration
}

// Outcome describes the result of processing one event.
type Outcome struct {
	EventID   string
	EventType string
	Duplicate bool
}

// Reconciler drives the order state machine from inbound payment events.
type Reconciler struct {
	cfg      Config
	verifier *payment.SignatureVerifier
	fastpath ledger.Ledger
	events   EventStore
	orders   order.Repository
	products product.Repository
	loyalty  LoyaltyStore
	email    notify.Sender

	processed metric.Int64Counter
}

// New creates a Reconciler with the required collaborators.
func New(
	cfg Config,
	verifier *payment.SignatureVerifier,
	fastpath ledger.Ledger,
	events EventStore,
	orders order.Repository,
	products product.Repository,
	loyalty LoyaltyStore,
	email notify.Sender,
	meter metric.Meter,
) (*Reconciler, error) {
	processed, err := meter.Int64Counter("webhook.events.processed",
		metric.WithDescription("Webhook events processed by type and outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Reconciler{
		cfg:       cfg,
		verifier:  verifier,
		fastpath:  fastpath,
		events:    events,
		orders:    orders,
		products:  products,
		loyalty:   loyalty,
		email:     email,
		processed: processed,
	}, nil
}

// Process authenticates, deduplicates, and dispatches one raw event payload.
//
// The event id is recorded durably before any side effect, so a crash
// mid-dispatch still prevents a later redelivery from re-running side effects
// that happened to complete. Dispatch errors are recorded and returned; the
// processor's retry is safe because every mutation is conditional.
func (r *Reconciler) Process(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	if err := r.verifier.Verify(payload, sigHeader); err != nil {
		r.count(ctx, "unknown", "invalid_signature")
		return nil, err
	}

	evt, err := payment.ParseEvent(payload)
	if err != nil {
		r.count(ctx, "unknown", "malformed")
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
	)

	// Fast path for redelivery bursts: no datastore round trip.
	if seen, err := r.fastpath.Seen(ctx, evt.ID); err == nil && seen {
		lg.Debug("duplicate event suppressed by ledger")
		r.count(ctx, evt.Type, "duplicate")
		return &Outcome{EventID: evt.ID, EventType: evt.Type, Duplicate: true}, nil
	}

	inserted, err := r.events.InsertOnce(ctx, evt.ID, evt.Type)
	if err != nil {
		return nil, errors.Wrap(err, "record event")
	}
	if !inserted {
		lg.Info("duplicate event delivery")
		r.count(ctx, evt.Type, "duplicate")
		return &Outcome{EventID: evt.ID, EventType: evt.Type, Duplicate: true}, nil
	}

	if err := r.fastpath.Record(ctx, evt.ID, r.cfg.EventRetention); err != nil {
		lg.Warn("ledger record failed", zap.Error(err))
	}

	if err := r.dispatch(zctx.Base(ctx, lg), evt); err != nil {
		if rerr := r.events.RecordError(ctx, evt.ID, evt.Type, err.Error()); rerr != nil {
			lg.Error("record webhook error failed", zap.Error(rerr))
		}
		r.count(ctx, evt.Type, "error")
		return nil, err
	}

	r.count(ctx, evt.Type, "ok")
	return &Outcome{EventID: evt.ID, EventType: evt.Type}, nil
}

func (r *Reconciler) dispatch(ctx context.Context, evt *payment.Event) error {
	switch evt.Type {
	case payment.EventCheckoutSessionCompleted:
		return r.handleSessionCompleted(ctx, evt.Session)
	case payment.EventPaymentIntentSucceeded:
		return r.handlePaymentSucceeded(ctx, evt.PaymentIntent)
	case payment.EventPaymentIntentFailed:
		return r.handlePaymentFailed(ctx, evt.PaymentIntent)
	case payment.EventChargeDisputeCreated:
		return r.handleDisputeCreated(ctx, evt.Dispute)
	default:
		// The processor is free to send types we never subscribed to;
		// acknowledge without failing.
		zctx.From(ctx).Info("unhandled event type acknowledged")
		return nil
	}
}

// handleSessionCompleted is the main confirmation path: transition the order,
// attach confirmed customer details, decrement stock, accrue loyalty points,
// and send the confirmation email.
func (r *Reconciler) handleSessionCompleted(ctx context.Context, session *payment.CheckoutSession) error {
	lg := zctx.From(ctx)

	o, err := r.orders.FindBySessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// The session may belong to an unrelated integration sharing the
			// same endpoint; not an error.
			lg.Info("no order for session", zap.String("session_id", session.ID))
			return nil
		}
		return errors.Wrap(err, "find order by session")
	}

	transitioned, err := r.orders.Transition(ctx, o.ID, order.StatusPendingPayment, order.StatusInCorso)
	if err != nil {
		return errors.Wrap(err, "transition order")
	}
	if !transitioned {
		// A concurrent or earlier event already confirmed this order; all
		// side effects belong to the winner of the conditional update.
		lg.Info("order already confirmed", zap.String("order_id", o.ID))
		return nil
	}

	confirmed := order.Address{
		Name:  session.CustomerName,
		Email: session.CustomerEmail,
		Phone: session.CustomerPhone,
	}
	if err := r.orders.SetConfirmedDetails(ctx, o.ID, confirmed, confirmed); err != nil {
		lg.Error("set confirmed details failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	items, err := r.orders.Items(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}

	r.decrementStock(ctx, o.ID, items)

	if points := int(o.Total.IntPart()); points > 0 {
		if err := r.loyalty.AddPoints(ctx, o.UserID, points); err != nil {
			lg.Error("loyalty accrual failed",
				zap.String("user_id", o.UserID), zap.Int("points", points), zap.Error(err))
		}
	}

	r.sendConfirmation(ctx, o, items, session)

	lg.Info("order confirmed",
		zap.String("order_id", o.ID),
		zap.String("total", o.Total.StringFixed(2)))
	return nil
}

// decrementStock applies per-item conditional decrements. A failed item is
// logged and recorded for manual reconciliation; sibling decrements are not
// rolled back.
func (r *Reconciler) decrementStock(ctx context.Context, orderID string, items []order.LineItem) {
	lg := zctx.From(ctx)

	for _, item := range items {
		remaining, name, err := r.products.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			lg.Error("stock decrement failed",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			continue
		}

		switch {
		case remaining == 0:
			if err := r.products.Deactivate(ctx, item.ProductID); err != nil {
				lg.Error("deactivate out-of-stock product failed",
					zap.String("product_id", item.ProductID), zap.Error(err))
			}
			lg.Warn("product out of stock, deactivated",
				zap.String("product_id", item.ProductID), zap.String("name", name))
		case remaining <= r.cfg.LowStockThreshold:
			lg.Warn("product low on stock",
				zap.String("product_id", item.ProductID),
				zap.String("name", name),
				zap.Int("remaining", remaining))
		}
	}
}

func (r *Reconciler) sendConfirmation(ctx context.Context, o *order.Order, items []order.LineItem, session *payment.CheckoutSession) {
	confirmation := notify.OrderConfirmation{
		OrderID:       o.ID,
		CustomerName:  session.CustomerName,
		CustomerEmail: session.CustomerEmail,
		Total:         o.Total,
	}
	for _, item := range items {
		confirmation.Items = append(confirmation.Items, notify.ConfirmationItem{
			Name:     item.Snapshot.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	if err := r.email.SendOrderConfirmation(ctx, confirmation); err != nil {
		// Best-effort only; never escalate to a webhook failure.
		zctx.From(ctx).Warn("confirmation email failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}
}

// handlePaymentSucceeded is the redundant confirmation path: it only acts
// when checkout.session.completed has not already confirmed the order.
func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, pi *payment.PaymentIntent) error {
	lg := zctx.From(ctx)

	o, err := r.orders.FindByPaymentIntentID(ctx, pi.ID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			lg.Info("no order for payment intent", zap.String("payment_intent_id", pi.ID))
			return nil
		}
		return errors.Wrap(err, "find order by payment intent")
	}

	transitioned, err := r.orders.Transition(ctx, o.ID, order.StatusPendingPayment, order.StatusInCorso)
	if err != nil {
		return errors.Wrap(err, "transition order")
	}
	if transitioned {
		lg.Info("order confirmed via payment intent", zap.String("order_id", o.ID))
	}
	return nil
}

// handlePaymentFailed transitions the order to payment_failed. Stock was
// never decremented for a pending order, so there is nothing to restore.
func (r *Reconciler) handlePaymentFailed(ctx context.Context, pi *payment.PaymentIntent) error {
	lg := zctx.From(ctx)

	o, err := r.orders.FindByPaymentIntentID(ctx, pi.ID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			lg.Info("no order for failed payment intent", zap.String("payment_intent_id", pi.ID))
			return nil
		}
		return errors.Wrap(err, "find order by payment intent")
	}

	transitioned, err := r.orders.Transition(ctx, o.ID, order.StatusPendingPayment, order.StatusPaymentFailed)
	if err != nil {
		return errors.Wrap(err, "transition order")
	}
	if !transitioned {
		lg.Info("failed payment for non-pending order", zap.String("order_id", o.ID))
		return nil
	}

	reason := pi.FailureMessage
	if reason == "" {
		reason = "unknown error"
	}
	note := fmt.Sprintf("Payment failed: %s", reason)
	if err := r.orders.AppendAdminNote(ctx, o.ID, note); err != nil {
		lg.Error("append admin note failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	lg.Info("order payment failed", zap.String("order_id", o.ID), zap.String("reason", reason))
	return nil
}

// handleDisputeCreated annotates the order for human adjudication without
// changing its status.
func (r *Reconciler) handleDisputeCreated(ctx context.Context, d *payment.Dispute) error {
	lg := zctx.From(ctx)

	o, err := r.orders.FindByPaymentIntentID(ctx, d.PaymentIntentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			lg.Info("no order for dispute", zap.String("dispute_id", d.ID))
			return nil
		}
		return errors.Wrap(err, "find order by payment intent")
	}

	note := fmt.Sprintf("Dispute created: %s - %s", d.Reason, d.ID)
	if err := r.orders.AppendAdminNote(ctx, o.ID, note); err != nil {
		return errors.Wrap(err, "append admin note")
	}

	lg.Warn("dispute opened",
		zap.String("order_id", o.ID),
		zap.String("dispute_id", d.ID),
		zap.String("reason", d.Reason))
	return nil
}

// StartPruner launches a goroutine that periodically removes event records
// older than the retention window. It stops when ctx is cancelled.
func (r *Reconciler) StartPruner(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned, err := r.events.Prune(ctx, r.cfg.EventRetention)
				if err != nil {
					zctx.From(ctx).Error("prune webhook events failed", zap.Error(err))
					continue
				}
				if pruned > 0 {
					zctx.From(ctx).Debug("pruned webhook events", zap.Int64("count", pruned))
				}
			}
		}
	}()
}

func (r *Reconciler) count(ctx context.Context, eventType, outcome string) {
	r.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}
