// Package settlement turns signed payment webhooks into reservation commits or
// releases. Deliveries may be forged, repeated, late or concurrent; only a
// verified delivery for a PENDING order changes state.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
)

type Webhook struct {
	IntentID  string          `json:"intentId"`
	Status    payment.Outcome `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}

type Result string

const (
	ResultConfirmed Result = "confirmed"
	ResultFailed    Result = "payment_failed"
	ResultDuplicate Result = "duplicate"
	ResultRejected  Result = "rejected"

	// ResultIgnored covers unknown intents and orders that are no longer PENDING.
	ResultIgnored         Result = "ignored"
	// ResultClosedOrderPaid means money arrived for an order already cancelled.
	ResultClosedOrderPaid Result = "closed_order_paid"
)

// Deduper remembers deliveries that were settled.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

const actorID = "payment-webhook"

type Handler struct {
	log    *zap.Logger
	coord  *reservation.Coordinator
	signer *payment.Signer
	dedup  Deduper
	tracer trace.Tracer
}

// New builds a handler; dedup may be nil.
func New(log *zap.Logger, coord *reservation.Coordinator, signer *payment.Signer, dedup Deduper) *Handler {
	return &Handler{log: log, coord: coord, signer: signer, dedup: dedup, tracer: otel.Tracer("settlement")}
}

func dedupKey(w Webhook) string {
	return fmt.Sprintf("%s:%s", w.IntentID, w.Status)
}

// HandleWebhook settles one delivery. A forged delivery returns ErrBadSignature
// and changes nothing.
func (h *Handler) HandleWebhook(ctx context.Context, w Webhook) (Result, error) {
	ctx, span := h.tracer.Start(ctx, "settlement.handle_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", w.IntentID), attribute.String("payment.status", string(w.Status)))

	if !w.Status.Valid() {
		h.log.Warn("webhook with unknown status", zap.String("intent_id", w.IntentID), zap.String("status", string(w.Status)))
		return ResultRejected, orders.InvalidArgument("payment status %q", w.Status)
	}
	if !h.signer.Verify(w.IntentID, string(w.Status), w.Amount, w.Signature) {
		h.log.Warn("webhook signature mismatch", zap.String("intent_id", w.IntentID))
		return ResultRejected, orders.ErrBadSignature
	}

	key := dedupKey(w)
	if h.dedup != nil {
		seen, err := h.dedup.Seen(ctx, key)
		if err != nil {
			h.log.Warn("dedup lookup failed", zap.String("key", key), zap.Error(err))
		} else if seen {
			return ResultDuplicate, nil
		}
	}

	var res Result
	err := h.coord.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		r, err := h.settle(ctx, tx, w)
		res = r
		return err
	})
	if err != nil {
		span.RecordError(err)
		h.log.Error("webhook settlement failed", zap.String("intent_id", w.IntentID), zap.Error(err))
		return "", err
	}
	span.SetAttributes(attribute.String("settlement.result", string(res)))
	h.log.Info("webhook handled", zap.String("intent_id", w.IntentID), zap.String("result", string(res)))

	if h.dedup != nil && res != ResultIgnored {
		if err := h.dedup.Remember(ctx, key); err != nil {
			h.log.Warn("dedup remember failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}

func (h *Handler) settle(ctx context.Context, tx orders.Tx, w Webhook) (Result, error) {
	o, err := tx.Orders().GetByPaymentIntent(ctx, w.IntentID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}
	paid := w.Status == payment.OutcomeSuccess && w.Amount.Equal(o.Total)
	target := orders.StatusPaymentFailed
	if paid {
		target = orders.StatusConfirmed
	}
	if !orders.CanSettle(o.Status, target) {
		return h.late(ctx, tx, o, w)
	}

	now := h.coord.Now()
	if paid {
		if err := h.coord.Commit(ctx, tx, o); err != nil {
			return "", err
		}
		o.PaymentStatus = orders.PaymentPaid
		o.PaidAt = &now
		o.Record(target, now, actorID, orders.RoleSystem, "payment settled")
		if err := tx.Orders().Save(ctx, o); err != nil {
			return "", err
		}
		return ResultConfirmed, h.coord.Emit(ctx, tx, orders.EventOrderConfirmed, o, "")
	}

	note := "payment failed"
	if w.Status == payment.OutcomeSuccess {
		note = fmt.Sprintf("amount mismatch: paid %s of %s", w.Amount.StringFixed(2), o.Total.StringFixed(2))
		h.log.Warn("webhook amount mismatch",
			zap.String("order_id", o.ID), zap.String("paid", w.Amount.StringFixed(2)), zap.String("total", o.Total.StringFixed(2)))
	}
	if err := h.coord.Release(ctx, tx, o); err != nil {
		return "", err
	}
	o.PaymentStatus = orders.PaymentFailed
	o.Record(target, now, actorID, orders.RoleSystem, note)
	if err := tx.Orders().Save(ctx, o); err != nil {
		return "", err
	}
	return ResultFailed, h.coord.Emit(ctx, tx, orders.EventPaymentFailed, o, note)
}

// late handles a delivery for an order that already left PENDING. Only a
// successful payment for an order cancelled before it settled needs follow-up:
// the money must go back, so the order is flagged for refund.
func (h *Handler) late(ctx context.Context, tx orders.Tx, o *orders.Order, w Webhook) (Result, error) {
	if w.Status != payment.OutcomeSuccess || o.Status != orders.StatusCancelled ||
		o.PaymentStatus != orders.PaymentPending || o.RefundPending {
		return ResultIgnored, nil
	}
	o.RefundPending = true
	o.UpdatedAt = h.coord.Now()
	if err := tx.Orders().Save(ctx, o); err != nil {
		return "", err
	}
	h.log.Warn("payment received for closed order", zap.String("order_id", o.ID), zap.String("amount", w.Amount.StringFixed(2)))
	return ResultClosedOrderPaid, h.coord.Emit(ctx, tx, orders.EventPaymentForClosedOrder, o, "payment received after cancellation")
}
