// Package reservation owns every counter mutation: it creates orders against
// reserved stock, converts reservations into stock exits or releases them, and
// sweeps reservations nobody paid for.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/retry"
)

const DefaultTTL = 900 * time.Second

type Options struct {
	TTL        time.Duration
	TxAttempts int
	SweepBatch int
	// Producer is stamped on every emitted event.
	Producer string
	Now      func() time.Time
}

type Coordinator struct {
	log      *zap.Logger
	runner   orders.Runner
	signer   *payment.Signer
	policy   retry.Policy
	ttl      time.Duration
	batch    int
	producer string
	now      func() time.Time
	tracer   trace.Tracer
}

func NewCoordinator(log *zap.Logger, runner orders.Runner, signer *payment.Signer, opts Options) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TxAttempts <= 0 {
		opts.TxAttempts = 5
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Producer == "" {
		opts.Producer = "order-fulfillment"
	}
	c := &Coordinator{
		log:      log,
		runner:   runner,
		signer:   signer,
		policy:   retry.DefaultPolicy(opts.TxAttempts),
		ttl:      opts.TTL,
		batch:    opts.SweepBatch,
		producer: opts.Producer,
		now:      opts.Now,
		tracer:   otel.Tracer("reservation"),
	}
	c.policy.OnRetry = func(err error, wait time.Duration) {
		log.Warn("transaction conflict, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	return c
}

// Now is the coordinator clock in UTC.
func (c *Coordinator) Now() time.Time { return c.now().UTC() }

// Atomically runs fn in one transaction and retries it on transient conflicts.
// fn must be safe to re-run from scratch.
func (c *Coordinator) Atomically(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return retry.OnConflict(ctx, c.policy, func() error {
		return c.runner.InTx(ctx, fn)
	})
}

// Placed is the outcome of a successful checkout.
type Placed struct {
	Order  *orders.Order   `json:"order"`
	Intent *payment.Intent `json:"paymentIntent,omitempty"`
}

type PlaceRequest struct {
	UserID          string
	Quote           orders.Quote
	PaymentMethod   orders.PaymentMethod
	PaymentProvider string
	Address         orders.Address
}

func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%06d", year, seq)
}

// ReserveAndCreateOrder prices the quote, claims stock for every line and creates
// the order in a single transaction. COD orders are confirmed and their stock
// leaves on-hand immediately; ONLINE orders stay PENDING behind a signed intent.
func (c *Coordinator) ReserveAndCreateOrder(ctx context.Context, req PlaceRequest) (*Placed, error) {
	ctx, span := c.tracer.Start(ctx, "reservation.reserve_and_create_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.Int("cart.lines", len(req.Quote.Lines)),
	)

	if req.UserID == "" {
		return nil, orders.InvalidArgument("user id is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, orders.InvalidArgument("payment method %q", req.PaymentMethod)
	}
	priced, err := orders.Price(req.Quote)
	if err != nil {
		return nil, err
	}

	var placed *Placed
	err = c.Atomically(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := c.place(ctx, tx, req, priced)
		if err != nil {
			return err
		}
		placed = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", placed.Order.ID), attribute.String("order.number", placed.Order.Number))
	c.log.Info("order placed",
		zap.String("order_id", placed.Order.ID),
		zap.String("order_number", placed.Order.Number),
		zap.String("status", string(placed.Order.Status)),
		zap.String("total", placed.Order.Total.StringFixed(2)))
	return placed, nil
}

func (c *Coordinator) place(ctx context.Context, tx orders.Tx, req PlaceRequest, priced orders.Priced) (*Placed, error) {
	now := c.Now()
	o := &orders.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		PaymentStatus:   orders.PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentProvider: req.PaymentProvider,
		Currency:        priced.Currency,
		ShippingAddress: req.Address,
		Items:           priced.Items,
		Subtotal:        priced.Subtotal,
		Discount:        priced.Discount,
		Total:           priced.Total,
		CreatedAt:       now,
	}
	want := o.UnitQuantities()

	// Lock every counter in unit order first, then judge lines in cart order so the
	// shortage names the first line that cannot be served.
	checks := make(map[string]orders.Availability, len(want))
	counters := make(map[string]orders.Counter, len(want))
	for _, unit := range orders.SortedUnits(want) {
		if err := tx.Counters().EnsureExists(ctx, unit); err != nil {
			return nil, err
		}
		a, ctr, err := orders.CheckAvailability(ctx, tx.Counters(), unit, want[unit])
		if err != nil {
			return nil, err
		}
		checks[unit], counters[unit] = a, ctr
	}
	seen := make(map[string]bool, len(want))
	for _, it := range o.Items {
		if seen[it.UnitID] {
			continue
		}
		seen[it.UnitID] = true
		if !checks[it.UnitID].Available {
			avail := counters[it.UnitID].Available()
			return nil, &orders.ShortageError{UnitID: it.UnitID, Requested: want[it.UnitID], Available: max(avail, 0)}
		}
	}

	for _, unit := range orders.SortedUnits(want) {
		if err := c.adjustReserved(ctx, tx, unit, want[unit]); err != nil {
			return nil, err
		}
		err := tx.Reservations().Insert(ctx, orders.Reservation{
			ID:        uuid.NewString(),
			UnitID:    unit,
			OrderID:   o.ID,
			Qty:       want[unit],
			Status:    orders.ReservationActive,
			ExpiresAt: now.Add(c.ttl),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, err
		}
	}

	seq, err := tx.Orders().NextOrderNumber(ctx, now.Year())
	if err != nil {
		return nil, err
	}
	o.Number = FormatOrderNumber(now.Year(), seq)

	placed := &Placed{Order: o}
	events := []string{orders.EventOrderCreated}
	switch o.PaymentMethod {
	case orders.PaymentCOD:
		if err := c.Commit(ctx, tx, o); err != nil {
			return nil, err
		}
		o.PaymentStatus = orders.PaymentPaid
		o.PaidAt = &now
		o.Record(orders.StatusConfirmed, now, o.UserID, orders.RoleCustomer, "cash on delivery")
		events = append(events, orders.EventOrderConfirmed)
	case orders.PaymentOnline:
		intent := c.signer.Issue(o.Total, o.Currency, o.PaymentProvider)
		o.PaymentIntentID = intent.ID
		o.Record(orders.StatusPending, now, o.UserID, orders.RoleCustomer, "awaiting payment")
		placed.Intent = &intent
	}

	if err := tx.Orders().Insert(ctx, o); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := c.Emit(ctx, tx, ev, o, ""); err != nil {
			return nil, err
		}
	}
	return placed, nil
}

// Emit enqueues an order event in tx.
func (c *Coordinator) Emit(ctx context.Context, tx orders.Tx, eventType string, o *orders.Order, notes string) error {
	env, err := orders.NewEnvelope(eventType, c.producer, o.ID, c.Now(), orders.NewOrderEventPayload(o, notes))
	if err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, env)
}
